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

package dev

import (
	"fmt"

	"github.com/kubetools/kubetools/internal/config"
	"github.com/kubetools/kubetools/internal/identity"
)

// ConsistencyError reports two live containers resolving to the same
// logical name within one environment. Aggregation never picks a
// winner; the conflict is surfaced instead.
type ConsistencyError struct {
	Environment string
	Name        string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("duplicate container %q in environment %q", e.Name, e.Environment)
}

// ContainerRecord is the merged live/desired status of one logical
// container. Up is nil when the container was never observed.
type ContainerRecord struct {
	Name         string
	ID           string
	Up           *bool
	Ports        []string
	Labels       map[string]string
	IsDependency bool
	IsDeployment bool
}

// EnvironmentMap is the aggregated status keyed by environment, then
// logical container name.
type EnvironmentMap map[string]map[string]*ContainerRecord

// Aggregate merges observed containers with the desired container set
// into a complete per-environment status map.
//
// Live containers are grouped by resolved environment, one-off
// invocations excluded. Every desired container appears in every
// environment of the result, synthesized as absent when never
// observed; the scope environment is always present even when empty.
// An unresolvable identity or a duplicate logical name aborts the
// whole aggregation.
func Aggregate(desired map[string]config.Container, live []LiveContainer,
	projectName, scopeEnv string, allEnvironments bool) (EnvironmentMap, error) {

	result := EnvironmentMap{}

	for _, c := range live {
		if c.OneOff {
			continue
		}

		env, err := identity.Environment(c.Labels, projectName)
		if err != nil {
			return nil, err
		}
		if !allEnvironments && env != scopeEnv {
			continue
		}

		name, err := identity.ContainerName(c.Labels, c.InstanceName)
		if err != nil {
			return nil, err
		}

		if result[env] == nil {
			result[env] = map[string]*ContainerRecord{}
		}
		if _, exists := result[env][name]; exists {
			return nil, &ConsistencyError{Environment: env, Name: name}
		}

		up := c.Running
		record := &ContainerRecord{
			Name:   name,
			ID:     c.ID,
			Up:     &up,
			Labels: c.Labels,
			Ports:  []string{},
		}
		for _, port := range c.Ports {
			record.Ports = append(record.Ports, port.String())
		}
		result[env][name] = record
	}

	if result[scopeEnv] == nil {
		result[scopeEnv] = map[string]*ContainerRecord{}
	}

	for env := range result {
		for name, container := range desired {
			record, exists := result[env][name]
			if !exists {
				record = &ContainerRecord{Name: name, Ports: []string{}}
				result[env][name] = record
			}
			record.IsDependency = container.IsDependency
			record.IsDeployment = container.IsDeployment
		}
	}

	if !allEnvironments {
		return EnvironmentMap{scopeEnv: result[scopeEnv]}, nil
	}
	return result, nil
}
