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

// Package identity derives the canonical (environment, logical name)
// identity of resources and containers from their labels.
package identity

import (
	"fmt"
	"strings"

	apiv1 "github.com/kubetools/kubetools/api/v1alpha1"
)

// Error reports a record whose identity could not be resolved.
type Error struct {
	Subject string
	Reason  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("cannot resolve identity of %q: %s", e.Subject, e.Reason)
}

// DockeriseName converts a project name to the form docker compose uses
// in project names and container names.
func DockeriseName(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", "")
	name = strings.ReplaceAll(name, "_", "")
	return name
}

// Environment resolves the environment of a container from its labels.
//
// The resolution order is fixed:
//  1. the explicit kubetools.project.env label;
//  2. legacy fallback for containers created before the env label
//     existed: strip the dockerised project-name prefix from the
//     compose project label.
//
// If neither applies the container cannot be attributed to an
// environment and an *Error is returned.
func Environment(labels map[string]string, projectName string) (string, error) {
	if env := labels[apiv1.ProjectEnvLabelKey]; env != "" {
		return env, nil
	}

	composeProject := labels[apiv1.ComposeProjectLabelKey]
	if composeProject == "" {
		return "", &Error{
			Subject: projectName,
			Reason:  "no environment label and no compose project label",
		}
	}

	prefix := DockeriseName(projectName)
	env := strings.TrimPrefix(composeProject, prefix)
	if env == "" || env == composeProject {
		return "", &Error{
			Subject: composeProject,
			Reason:  fmt.Sprintf("compose project does not map to an environment of project %q", projectName),
		}
	}
	return env, nil
}

// ContainerName resolves the logical container name of a runtime
// instance.
//
// The resolution order is fixed:
//  1. the compose service label, which names the service regardless of
//     the runtime's container naming scheme;
//  2. legacy fallback for containers created before compose wrote the
//     service label: the middle segment of a project_component_N
//     instance name.
func ContainerName(labels map[string]string, instanceName string) (string, error) {
	if service := labels[apiv1.ComposeServiceLabelKey]; service != "" {
		return service, nil
	}

	parts := strings.Split(instanceName, "_")
	if len(parts) < 2 || parts[1] == "" {
		return "", &Error{
			Subject: instanceName,
			Reason:  "no service label and instance name is not of the form project_component_N",
		}
	}
	return parts[1], nil
}
