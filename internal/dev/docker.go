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

// Package dev observes and drives the local docker compose dev
// environments of a project.
package dev

import (
	"context"
	"fmt"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	dockerfilters "github.com/docker/docker/api/types/filters"
	dockernetwork "github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"

	apiv1 "github.com/kubetools/kubetools/api/v1alpha1"
	"github.com/kubetools/kubetools/internal/identity"
)

// DevNetworkName is the shared bridge network dev containers attach to
// so projects can reach each other's services locally.
const DevNetworkName = "kubetools-dev"

// LiveContainer is one observed runtime container, reduced to the
// fields status aggregation needs.
type LiveContainer struct {
	// InstanceName is the runtime name, e.g. myappdev_web_1.
	InstanceName string
	ID           string
	Running      bool
	OneOff       bool
	Labels       map[string]string
	Ports        []PortMapping
}

// PortMapping is one runtime port table entry. Host is zero when the
// port is not bound on the host.
type PortMapping struct {
	Local uint16
	Host  uint16
}

// String renders "local:host", or just "local" for unbound ports.
func (p PortMapping) String() string {
	if p.Host == 0 {
		return fmt.Sprintf("%d", p.Local)
	}
	return fmt.Sprintf("%d:%d", p.Local, p.Host)
}

// Docker observes the local container runtime.
type Docker struct {
	cli *client.Client
}

// NewDocker creates a runtime client from the environment.
func NewDocker() (*Docker, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &Docker{cli: cli}, nil
}

// EnsureDevNetwork creates the shared dev bridge network if absent.
func (d *Docker) EnsureDevNetwork(ctx context.Context) error {
	_, err := d.cli.NetworkInspect(ctx, DevNetworkName, dockernetwork.InspectOptions{})
	if err == nil {
		return nil
	}
	if !errdefs.IsNotFound(err) {
		return fmt.Errorf("inspect network %q: %w", DevNetworkName, err)
	}

	_, err = d.cli.NetworkCreate(ctx, DevNetworkName, dockernetwork.CreateOptions{
		Driver: "bridge",
	})
	if err != nil {
		return fmt.Errorf("create network %q: %w", DevNetworkName, err)
	}
	return nil
}

// ListProjectContainers returns every compose-managed container, live
// or stopped, belonging to any environment of the named project.
func (d *Docker) ListProjectContainers(ctx context.Context, projectName string) ([]LiveContainer, error) {
	filters := dockerfilters.NewArgs()
	filters.Add("label", apiv1.ComposeProjectLabelKey)

	list, err := d.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters,
	})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	prefix := identity.DockeriseName(projectName)

	var containers []LiveContainer
	for _, c := range list {
		if !strings.HasPrefix(c.Labels[apiv1.ComposeProjectLabelKey], prefix) {
			continue
		}

		live := LiveContainer{
			ID:      c.ID,
			Running: c.State == "running",
			OneOff:  strings.EqualFold(c.Labels[apiv1.ComposeOneOffLabelKey], "true"),
			Labels:  c.Labels,
		}
		if len(c.Names) > 0 {
			live.InstanceName = strings.TrimPrefix(c.Names[0], "/")
		}
		for _, p := range c.Ports {
			live.Ports = append(live.Ports, PortMapping{
				Local: p.PrivatePort,
				Host:  p.PublicPort,
			})
		}
		containers = append(containers, live)
	}
	return containers, nil
}
