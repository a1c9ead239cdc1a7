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

package v1alpha1

import (
	"fmt"

	"k8s.io/apimachinery/pkg/runtime/schema"
)

// ObjectKind enumerates the Kubernetes object kinds kubetools manages.
// All kind-specific behaviour is resolved through this type at a single
// boundary instead of scattered string comparisons.
type ObjectKind string

const (
	ServiceKind    ObjectKind = "Service"
	DeploymentKind ObjectKind = "Deployment"
	JobKind        ObjectKind = "Job"
)

// Kinds lists the managed kinds in submission order: services first,
// then deployments, then jobs.
func Kinds() []ObjectKind {
	return []ObjectKind{ServiceKind, DeploymentKind, JobKind}
}

// GroupVersionKind returns the schema identity for the kind.
func (k ObjectKind) GroupVersionKind() schema.GroupVersionKind {
	switch k {
	case ServiceKind:
		return schema.GroupVersionKind{Version: "v1", Kind: "Service"}
	case DeploymentKind:
		return schema.GroupVersionKind{Group: "apps", Version: "v1", Kind: "Deployment"}
	case JobKind:
		return schema.GroupVersionKind{Group: "batch", Version: "v1", Kind: "Job"}
	}
	panic(fmt.Sprintf("unknown object kind %q", string(k)))
}

// Ephemeral reports whether objects of this kind may legitimately be
// absent from the cluster. Jobs are cleaned up by the backend after
// completion, so removal never treats a missing job as an error.
func (k ObjectKind) Ephemeral() bool {
	return k == JobKind
}

func (k ObjectKind) String() string {
	return string(k)
}
