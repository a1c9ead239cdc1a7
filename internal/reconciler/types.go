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

package reconciler

import (
	"context"
	"fmt"
	"strings"

	"github.com/fluxcd/pkg/ssa"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// ValidationError rejects a removal request before any mutation is
// attempted: conflicting flags, or requested names with no live match.
type ValidationError struct {
	Message  string
	Leftover []string
}

func (e *ValidationError) Error() string {
	if len(e.Leftover) > 0 {
		return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Leftover, ", "))
	}
	return e.Message
}

// applier is the mutation surface of the ssa resource manager.
type applier interface {
	Apply(ctx context.Context, object *unstructured.Unstructured, opts ssa.ApplyOptions) (*ssa.ChangeSetEntry, error)
	Delete(ctx context.Context, object *unstructured.Unstructured, opts ssa.DeleteOptions) (*ssa.ChangeSetEntry, error)
}

// Reconciler diffs desired objects against the cluster and submits
// create/update/delete mutations under label-based identity.
type Reconciler struct {
	kubeClient client.Reader
	applier    applier
}

// NewReconciler wraps a resource manager built by runtime.NewResourceManager.
func NewReconciler(manager *ssa.ResourceManager) *Reconciler {
	return &Reconciler{
		kubeClient: manager.Client(),
		applier:    manager,
	}
}
