/*
Copyright 2024 The Kubetools Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config loads the per-project kubetools.yaml and the optional
// user settings file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"sigs.k8s.io/yaml"

	"github.com/kubetools/kubetools/internal/identity"
)

// ConfigFilename is the project configuration file looked up in each
// app directory.
const ConfigFilename = "kubetools.yaml"

// BuildError reports a project configuration that could not be loaded
// or compiled into desired state.
type BuildError struct {
	Path string
	Err  error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("building project config %s failed: %s", e.Path, e.Err.Error())
}

func (e *BuildError) Unwrap() error { return e.Err }

// Container declares one desired container of a project.
type Container struct {
	Image       string            `json:"image,omitempty"`
	Command     []string          `json:"command,omitempty"`
	Ports       []string          `json:"ports,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
	DependsOn   []string          `json:"dependsOn,omitempty"`
	Role        string            `json:"role,omitempty"`

	// Set by AllContainers from the section the container was
	// declared in, never from the file.
	IsDependency bool `json:"-"`
	IsDeployment bool `json:"-"`
}

// Hook is an upgrade or test command declared by the project, executed
// inside a named container.
type Hook struct {
	Name        string            `json:"name,omitempty"`
	Command     string            `json:"command"`
	Container   string            `json:"container,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`

	// SkipWhenTesting excludes an upgrade from test runs.
	SkipWhenTesting bool `json:"skipWhenTesting,omitempty"`
}

// Project is the desired-state declaration of one app directory.
type Project struct {
	Name         string               `json:"name"`
	Env          string               `json:"env,omitempty"`
	Dependencies map[string]Container `json:"dependencies,omitempty"`
	Deployments  map[string]Container `json:"deployments,omitempty"`
	Upgrades     []Hook               `json:"upgrades,omitempty"`
	Tests        []Hook               `json:"tests,omitempty"`

	// Dir is the directory the config was loaded from.
	Dir string `json:"-"`
}

// Load reads an app directory's kubetools.yaml. The env argument
// overrides the file's env when non-empty; defaultEnv applies when
// neither is set.
func Load(dir, env, defaultEnv string) (*Project, error) {
	path := filepath.Join(dir, ConfigFilename)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &BuildError{Path: path, Err: err}
	}

	project := &Project{}
	if err := yaml.Unmarshal(data, project); err != nil {
		return nil, &BuildError{Path: path, Err: err}
	}
	if project.Name == "" {
		return nil, &BuildError{Path: path, Err: fmt.Errorf("project name is required")}
	}

	if env != "" {
		project.Env = env
	}
	if project.Env == "" {
		project.Env = defaultEnv
	}
	project.Dir = dir

	return project, nil
}

// AllContainers merges dependencies and deployments into one map with
// the provenance flags set. Deployments shadow dependencies on name
// collision, matching the precedence of the desired-state compiler.
func (p *Project) AllContainers() map[string]Container {
	containers := make(map[string]Container, len(p.Dependencies)+len(p.Deployments))
	for name, container := range p.Dependencies {
		container.IsDependency = true
		containers[name] = container
	}
	for name, container := range p.Deployments {
		container.IsDeployment = true
		containers[name] = container
	}
	return containers
}

// HookContainer resolves the container a hook runs in: the explicit
// declaration, else the project's only deployment.
func (p *Project) HookContainer(hook Hook) (string, error) {
	if hook.Container != "" {
		return hook.Container, nil
	}
	if len(p.Deployments) == 1 {
		for name := range p.Deployments {
			return name, nil
		}
	}
	return "", &BuildError{
		Path: filepath.Join(p.Dir, ConfigFilename),
		Err:  fmt.Errorf("hook %q names no container and the project has %d deployments", hook.Name, len(p.Deployments)),
	}
}

// ComposeProjectName is the docker compose project name for the
// project's current environment.
func (p *Project) ComposeProjectName() string {
	return identity.DockeriseName(p.Name + p.Env)
}
