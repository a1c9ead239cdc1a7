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
	"errors"
	"testing"

	. "github.com/onsi/gomega"

	apiv1 "github.com/kubetools/kubetools/api/v1alpha1"
	"github.com/kubetools/kubetools/internal/config"
	"github.com/kubetools/kubetools/internal/identity"
)

func devContainer(env, service string, running bool, ports ...PortMapping) LiveContainer {
	return LiveContainer{
		InstanceName: "myapp" + env + "_" + service + "_1",
		ID:           env + "-" + service + "-id",
		Running:      running,
		Labels: map[string]string{
			apiv1.ComposeProjectLabelKey: "myapp" + env,
			apiv1.ComposeServiceLabelKey: service,
			apiv1.ProjectEnvLabelKey:     env,
		},
		Ports: ports,
	}
}

func Test_Aggregate(t *testing.T) {
	desired := map[string]config.Container{
		"web": {IsDeployment: true},
		"db":  {IsDependency: true},
	}

	t.Run("merges live records with synthesized absent ones", func(t *testing.T) {
		g := NewWithT(t)

		live := []LiveContainer{
			devContainer("dev", "web", true, PortMapping{Local: 8000, Host: 32000}),
		}

		result, err := Aggregate(desired, live, "my-app", "dev", false)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(result).To(HaveLen(1))

		web := result["dev"]["web"]
		g.Expect(web.Up).ToNot(BeNil())
		g.Expect(*web.Up).To(BeTrue())
		g.Expect(web.Ports).To(Equal([]string{"8000:32000"}))
		g.Expect(web.ID).To(Equal("dev-web-id"))
		g.Expect(web.IsDeployment).To(BeTrue())

		db := result["dev"]["db"]
		g.Expect(db.Up).To(BeNil())
		g.Expect(db.ID).To(BeEmpty())
		g.Expect(db.Ports).To(BeEmpty())
		g.Expect(db.IsDependency).To(BeTrue())
	})

	t.Run("unbound ports render without a host part", func(t *testing.T) {
		g := NewWithT(t)

		live := []LiveContainer{
			devContainer("dev", "db", true, PortMapping{Local: 5432}),
		}

		result, err := Aggregate(desired, live, "my-app", "dev", false)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(result["dev"]["db"].Ports).To(Equal([]string{"5432"}))
	})

	t.Run("scope environment is present even with no live containers", func(t *testing.T) {
		g := NewWithT(t)

		result, err := Aggregate(desired, nil, "my-app", "dev", false)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(result).To(HaveKey("dev"))
		g.Expect(result["dev"]).To(HaveLen(2))
		g.Expect(result["dev"]["web"].Up).To(BeNil())
	})

	t.Run("one-off containers are excluded from grouping", func(t *testing.T) {
		g := NewWithT(t)

		oneOff := devContainer("dev", "web", true)
		oneOff.OneOff = true

		result, err := Aggregate(desired, []LiveContainer{oneOff}, "my-app", "dev", false)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(result["dev"]["web"].Up).To(BeNil())
	})

	t.Run("all environments returns every observed group, completed", func(t *testing.T) {
		g := NewWithT(t)

		live := []LiveContainer{
			devContainer("dev", "web", true),
			devContainer("test", "web", false),
		}

		result, err := Aggregate(desired, live, "my-app", "dev", true)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(result).To(HaveLen(2))
		g.Expect(*result["dev"]["web"].Up).To(BeTrue())
		g.Expect(*result["test"]["web"].Up).To(BeFalse())
		g.Expect(result["test"]["db"].Up).To(BeNil())
	})

	t.Run("dash-named containers resolve through the service label", func(t *testing.T) {
		g := NewWithT(t)

		// docker compose v2 names containers project-service-N.
		v2 := devContainer("dev", "web", true)
		v2.InstanceName = "myappdev-web-1"

		result, err := Aggregate(desired, []LiveContainer{v2}, "my-app", "dev", false)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(*result["dev"]["web"].Up).To(BeTrue())
	})

	t.Run("environments resolve through the legacy naming fallback", func(t *testing.T) {
		g := NewWithT(t)

		legacy := devContainer("dev", "web", true)
		delete(legacy.Labels, apiv1.ProjectEnvLabelKey)

		result, err := Aggregate(desired, []LiveContainer{legacy}, "my-app", "dev", false)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(*result["dev"]["web"].Up).To(BeTrue())
	})

	t.Run("an unresolvable container aborts aggregation", func(t *testing.T) {
		g := NewWithT(t)

		stray := devContainer("dev", "web", true)
		delete(stray.Labels, apiv1.ProjectEnvLabelKey)
		stray.Labels[apiv1.ComposeProjectLabelKey] = "otherproject"

		_, err := Aggregate(desired, []LiveContainer{stray}, "my-app", "dev", false)
		g.Expect(err).To(HaveOccurred())

		var identityErr *identity.Error
		g.Expect(errors.As(err, &identityErr)).To(BeTrue())
	})

	t.Run("duplicate logical names are a consistency error", func(t *testing.T) {
		g := NewWithT(t)

		first := devContainer("dev", "web", true)
		second := devContainer("dev", "web", false)
		second.InstanceName = "myappdev_web_2"
		second.ID = "dev-web-id-2"

		_, err := Aggregate(desired, []LiveContainer{first, second}, "my-app", "dev", false)
		g.Expect(err).To(HaveOccurred())

		var consistencyErr *ConsistencyError
		g.Expect(errors.As(err, &consistencyErr)).To(BeTrue())
		g.Expect(consistencyErr.Environment).To(Equal("dev"))
		g.Expect(consistencyErr.Name).To(Equal("web"))
	})
}
