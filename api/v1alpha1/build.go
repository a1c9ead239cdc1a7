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

// Build is the (environment, namespace) pair threaded through every
// reconciliation call. It is constructed once per command invocation
// and never mutated.
type Build struct {
	// Env is the deployment environment name, e.g. "staging".
	Env string

	// Namespace is the cluster namespace objects are submitted to.
	Namespace string
}
