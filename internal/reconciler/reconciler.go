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

// Package reconciler maps a desired set of Kubernetes objects onto
// observed cluster state: create or in-place update on deploy, guarded
// bulk deletion on remove.
package reconciler

import (
	"context"
	"sort"

	"github.com/fluxcd/pkg/ssa"
	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/controller-runtime/pkg/client"

	apiv1 "github.com/kubetools/kubetools/api/v1alpha1"
)

// DeployOrUpgrade submits every object in caller-supplied order:
// services, then deployments, then jobs. Objects that already exist
// server-side are updated in place through server-side apply, which
// treats the declared fields as authoritative and leaves
// server-managed fields untouched; absent objects are created.
//
// Outcomes are independent: a failure surfaces immediately but objects
// already applied stay applied. Idempotent re-invocation is the
// recovery path.
func (r *Reconciler) DeployOrUpgrade(ctx context.Context, build apiv1.Build, log logr.Logger,
	services, deployments, jobs []*unstructured.Unstructured) error {

	opts := ssa.DefaultApplyOptions()

	for _, objects := range [][]*unstructured.Unstructured{services, deployments, jobs} {
		for _, object := range objects {
			if object.GetNamespace() == "" {
				object.SetNamespace(build.Namespace)
			}
			change, err := r.applier.Apply(ctx, object, opts)
			if err != nil {
				return err
			}
			log.Info(change.String())
		}
	}
	return nil
}

// ValidateRemovalRequest enforces the mutual exclusion rule: exactly
// one of explicit names or the remove-all flag must be set. It runs
// before any listing or deletion.
func ValidateRemovalRequest(names []string, removeAll bool) error {
	if len(names) == 0 && !removeAll {
		return &ValidationError{Message: "must either provide app names or the --all flag"}
	}
	if len(names) > 0 && removeAll {
		return &ValidationError{Message: "cannot provide both app names and the --all flag"}
	}
	return nil
}

// PlanRemoval lists removal candidates across every managed kind, in
// submission order, before anything is deleted. Leftover validation
// runs for all non-ephemeral kinds up front, so a requested name that
// matches nothing fails the plan while the cluster is still untouched.
func (r *Reconciler) PlanRemoval(ctx context.Context, build apiv1.Build,
	removeAll bool, names []string) ([]*unstructured.Unstructured, error) {

	var candidates []*unstructured.Unstructured
	for _, kind := range apiv1.Kinds() {
		// Jobs are ephemeral; requested names legitimately may not
		// match any live job.
		checkLeftovers := !kind.Ephemeral()

		kindCandidates, err := r.ListForRemoval(ctx, kind, build, removeAll, names, checkLeftovers)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, kindCandidates...)
	}
	return candidates, nil
}

// ListForRemoval fetches the live kubetools-managed objects of the
// given kind in the build's namespace and selects removal candidates.
func (r *Reconciler) ListForRemoval(ctx context.Context, kind apiv1.ObjectKind, build apiv1.Build,
	removeAll bool, names []string, checkLeftovers bool) ([]*unstructured.Unstructured, error) {

	objects, err := r.listKind(ctx, kind, build,
		client.MatchingLabels{apiv1.ManagedByLabelKey: apiv1.ManagedByValue})
	if err != nil {
		return nil, err
	}
	return SelectForRemoval(kind, objects, removeAll, names, checkLeftovers)
}

// ListObjects fetches every object of the kind in the build's
// namespace, kubetools-managed or not. Observation surfaces flag
// unmanaged objects instead of hiding them.
func (r *Reconciler) ListObjects(ctx context.Context, kind apiv1.ObjectKind,
	build apiv1.Build) ([]*unstructured.Unstructured, error) {

	return r.listKind(ctx, kind, build)
}

func (r *Reconciler) listKind(ctx context.Context, kind apiv1.ObjectKind, build apiv1.Build,
	opts ...client.ListOption) ([]*unstructured.Unstructured, error) {

	list := &unstructured.UnstructuredList{}
	gvk := kind.GroupVersionKind()
	gvk.Kind += "List"
	list.SetGroupVersionKind(gvk)

	opts = append(opts, client.InNamespace(build.Namespace))
	if err := r.kubeClient.List(ctx, list, opts...); err != nil {
		return nil, err
	}

	objects := make([]*unstructured.Unstructured, 0, len(list.Items))
	for i := range list.Items {
		objects = append(objects, &list.Items[i])
	}
	return objects, nil
}

// SelectForRemoval filters live objects down to removal candidates.
//
// With removeAll every object is a candidate. Otherwise objects whose
// logical-name label is in names are selected, and with checkLeftovers
// the requested names that matched nothing fail the whole request.
// Leftover detection prevents a typo from deleting nothing while
// reporting success; it is skipped for ephemeral kinds (jobs).
func SelectForRemoval(kind apiv1.ObjectKind, objects []*unstructured.Unstructured,
	removeAll bool, names []string, checkLeftovers bool) ([]*unstructured.Unstructured, error) {

	requested := make(map[string]bool, len(names))
	for _, name := range names {
		requested[name] = true
	}

	var candidates []*unstructured.Unstructured
	matched := make(map[string]bool)
	for _, object := range objects {
		// Objects not managed by kubetools are never candidates,
		// regardless of how the input list was produced.
		if !apiv1.IsKubetoolsObject(object.GetLabels()) {
			continue
		}
		if removeAll {
			candidates = append(candidates, object)
			continue
		}
		appName := object.GetLabels()[apiv1.NameLabelKey]
		if requested[appName] {
			candidates = append(candidates, object)
			matched[appName] = true
		}
	}

	if removeAll {
		return candidates, nil
	}

	if checkLeftovers {
		var leftover []string
		for _, name := range names {
			if !matched[name] {
				leftover = append(leftover, name)
			}
		}
		if len(leftover) > 0 {
			sort.Strings(leftover)
			return nil, &ValidationError{
				Message:  kind.String() + " not found",
				Leftover: leftover,
			}
		}
	}

	return candidates, nil
}

// DeleteAll deletes each candidate independently. The first failure
// surfaces immediately; earlier deletions are not rolled back.
func (r *Reconciler) DeleteAll(ctx context.Context, log logr.Logger,
	candidates []*unstructured.Unstructured) error {

	for _, object := range candidates {
		change, err := r.applier.Delete(ctx, object, ssa.DefaultDeleteOptions())
		if err != nil {
			return err
		}
		log.Info(change.String())
	}
	return nil
}
