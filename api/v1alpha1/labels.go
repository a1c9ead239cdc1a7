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

// FieldManager is the name of the server-side apply field owner.
const FieldManager = "kubetools"

// ManagedByValue marks objects created by kubetools, set under the
// app.kubernetes.io/managed-by label.
const ManagedByValue = "kubetools"

// Labels attached to every managed Kubernetes object.
const (
	NameLabelKey        = "kubetools/name"
	ProjectNameLabelKey = "kubetools/project_name"
	RoleLabelKey        = "kubetools/role"
	ManagedByLabelKey   = "app.kubernetes.io/managed-by"
)

// Annotations recording build provenance.
const (
	EnvAnnotationKey       = "kubetools/env"
	NamespaceAnnotationKey = "kubetools/namespace"
	GitCommitAnnotationKey = "kubetools/git_commit"
	GitBranchAnnotationKey = "kubetools/git_branch"
	GitTagAnnotationKey    = "kubetools/git_tag"
)

// Environment variables injected into deployed workloads.
const (
	EnvVarKube          = "KUBE"
	EnvVarKubeNamespace = "KUBE_NAMESPACE"
	EnvVarKubeEnv       = "KUBE_ENV"
)

// Docker labels used to identify dev environment containers.
// The compose labels are written by docker compose itself; the env label
// is attached by kubetools so containers can be grouped without relying
// on the compose project naming convention.
const (
	ComposeProjectLabelKey = "com.docker.compose.project"
	ComposeServiceLabelKey = "com.docker.compose.service"
	ComposeOneOffLabelKey  = "com.docker.compose.oneoff"
	ProjectEnvLabelKey     = "kubetools.project.env"
)

// IsKubetoolsObject reports whether the given labels belong to an
// object managed by kubetools.
func IsKubetoolsObject(labels map[string]string) bool {
	return labels[ManagedByLabelKey] == ManagedByValue
}
