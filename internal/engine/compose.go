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

package engine

import (
	"fmt"
	"os"
	"path/filepath"

	composetypes "github.com/compose-spec/compose-go/v2/types"
	"github.com/docker/go-connections/nat"

	apiv1 "github.com/kubetools/kubetools/api/v1alpha1"
	"github.com/kubetools/kubetools/internal/config"
)

// GenerateComposeProject compiles a project into a docker compose
// project for the local dev environment. Every container becomes a
// compose service carrying the project env label so status aggregation
// can group containers without relying on the compose naming scheme.
//
// When sharedNetwork is non-empty the services attach to that
// pre-existing bridge network instead of the compose default, so
// containers of different projects can reach each other locally.
func GenerateComposeProject(project *config.Project, sharedNetwork string) (*composetypes.Project, error) {
	services := composetypes.Services{}

	for name, container := range project.AllContainers() {
		service := composetypes.ServiceConfig{
			Name:  name,
			Image: container.Image,
			Labels: composetypes.Labels{
				apiv1.ProjectEnvLabelKey: project.Env,
			},
			Environment: composetypes.NewMappingWithEquals(nil),
		}

		if len(container.Command) > 0 {
			service.Command = composetypes.ShellCommand(container.Command)
		}

		for key, value := range container.Environment {
			v := value
			service.Environment[key] = &v
		}

		for _, spec := range container.Ports {
			mappings, err := nat.ParsePortSpec(spec)
			if err != nil {
				return nil, fmt.Errorf("service %s: invalid port spec %q: %w", name, spec, err)
			}
			for _, mapping := range mappings {
				service.Ports = append(service.Ports, composetypes.ServicePortConfig{
					Mode:      "ingress",
					Target:    uint32(mapping.Port.Int()),
					Published: mapping.Binding.HostPort,
					Protocol:  mapping.Port.Proto(),
				})
			}
		}

		if len(container.DependsOn) > 0 {
			service.DependsOn = composetypes.DependsOnConfig{}
			for _, dep := range container.DependsOn {
				service.DependsOn[dep] = composetypes.ServiceDependency{
					Condition: composetypes.ServiceConditionStarted,
					Required:  true,
				}
			}
		}

		if sharedNetwork != "" {
			service.Networks = map[string]*composetypes.ServiceNetworkConfig{
				sharedNetwork: nil,
			}
		}

		services[name] = service
	}

	compose := &composetypes.Project{
		Name:     project.ComposeProjectName(),
		Services: services,
	}
	if sharedNetwork != "" {
		compose.Networks = composetypes.Networks{
			sharedNetwork: composetypes.NetworkConfig{
				Name:     sharedNetwork,
				External: true,
			},
		}
	}
	return compose, nil
}

// WriteComposeFile renders the compose project into the project's dev
// config directory and returns the file path.
func WriteComposeFile(project *config.Project, devDirName, sharedNetwork string) (string, error) {
	composeProject, err := GenerateComposeProject(project, sharedNetwork)
	if err != nil {
		return "", err
	}

	data, err := composeProject.MarshalYAML()
	if err != nil {
		return "", err
	}

	dir := filepath.Join(project.Dir, devDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	path := filepath.Join(dir, fmt.Sprintf("compose-%s.yaml", project.Env))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
