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
	"errors"
	"fmt"
	"testing"

	"github.com/fluxcd/pkg/ssa"
	"github.com/go-logr/logr"
	. "github.com/onsi/gomega"
	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	apiv1 "github.com/kubetools/kubetools/api/v1alpha1"
)

func testObject(kind apiv1.ObjectKind, namespace, name, appName string) *unstructured.Unstructured {
	object := &unstructured.Unstructured{}
	object.SetGroupVersionKind(kind.GroupVersionKind())
	object.SetNamespace(namespace)
	object.SetName(name)
	object.SetLabels(map[string]string{
		apiv1.ManagedByLabelKey: apiv1.ManagedByValue,
		apiv1.NameLabelKey:      appName,
	})
	return object
}

func objectKey(object *unstructured.Unstructured) string {
	return fmt.Sprintf("%s/%s/%s", object.GetKind(), object.GetNamespace(), object.GetName())
}

// fakeApplier records mutations and reports Created for unknown
// identities, Configured for observed ones.
type fakeApplier struct {
	observed map[string]bool
	applied  []string
	deleted  []string
	failOn   string
}

func (f *fakeApplier) Apply(_ context.Context, object *unstructured.Unstructured, _ ssa.ApplyOptions) (*ssa.ChangeSetEntry, error) {
	key := objectKey(object)
	if key == f.failOn {
		return nil, errors.New("apply failed for " + key)
	}
	action := ssa.CreatedAction
	if f.observed[key] {
		action = ssa.ConfiguredAction
	}
	f.applied = append(f.applied, fmt.Sprintf("%s %s", key, action))
	return &ssa.ChangeSetEntry{Subject: key, Action: action}, nil
}

func (f *fakeApplier) Delete(_ context.Context, object *unstructured.Unstructured, _ ssa.DeleteOptions) (*ssa.ChangeSetEntry, error) {
	key := objectKey(object)
	if key == f.failOn {
		return nil, errors.New("delete failed for " + key)
	}
	f.deleted = append(f.deleted, key)
	return &ssa.ChangeSetEntry{Subject: key, Action: ssa.DeletedAction}, nil
}

func Test_DeployOrUpgrade(t *testing.T) {
	build := apiv1.Build{Env: "staging", Namespace: "apps"}

	t.Run("creates absent objects and updates observed ones", func(t *testing.T) {
		g := NewWithT(t)

		web := testObject(apiv1.DeploymentKind, "apps", "web", "web")
		db := testObject(apiv1.DeploymentKind, "apps", "db", "db")
		webSvc := testObject(apiv1.ServiceKind, "apps", "web", "web")

		fake := &fakeApplier{observed: map[string]bool{objectKey(web): true}}
		r := &Reconciler{applier: fake}

		err := r.DeployOrUpgrade(context.Background(), build, logr.Discard(),
			[]*unstructured.Unstructured{webSvc},
			[]*unstructured.Unstructured{web, db},
			nil)
		g.Expect(err).ToNot(HaveOccurred())

		g.Expect(fake.applied).To(Equal([]string{
			"Service/apps/web created",
			"Deployment/apps/web configured",
			"Deployment/apps/db created",
		}))
		g.Expect(fake.deleted).To(BeEmpty())
	})

	t.Run("a failure surfaces without rolling back prior objects", func(t *testing.T) {
		g := NewWithT(t)

		web := testObject(apiv1.DeploymentKind, "apps", "web", "web")
		db := testObject(apiv1.DeploymentKind, "apps", "db", "db")

		fake := &fakeApplier{failOn: objectKey(db)}
		r := &Reconciler{applier: fake}

		err := r.DeployOrUpgrade(context.Background(), build, logr.Discard(),
			nil, []*unstructured.Unstructured{web, db}, nil)
		g.Expect(err).To(HaveOccurred())
		g.Expect(fake.applied).To(Equal([]string{"Deployment/apps/web created"}))
	})

	t.Run("defaults the namespace from the build context", func(t *testing.T) {
		g := NewWithT(t)

		job := testObject(apiv1.JobKind, "", "migrate", "migrate")
		fake := &fakeApplier{}
		r := &Reconciler{applier: fake}

		err := r.DeployOrUpgrade(context.Background(), build, logr.Discard(),
			nil, nil, []*unstructured.Unstructured{job})
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(job.GetNamespace()).To(Equal("apps"))
	})
}

func Test_ValidateRemovalRequest(t *testing.T) {
	t.Run("requires exactly one of names or remove-all", func(t *testing.T) {
		g := NewWithT(t)
		g.Expect(ValidateRemovalRequest(nil, false)).To(HaveOccurred())
		g.Expect(ValidateRemovalRequest([]string{"web"}, true)).To(HaveOccurred())
		g.Expect(ValidateRemovalRequest([]string{"web"}, false)).To(Succeed())
		g.Expect(ValidateRemovalRequest(nil, true)).To(Succeed())
	})

	t.Run("rejections are validation errors", func(t *testing.T) {
		g := NewWithT(t)
		err := ValidateRemovalRequest(nil, false)

		var validationErr *ValidationError
		g.Expect(errors.As(err, &validationErr)).To(BeTrue())
	})
}

func Test_SelectForRemoval(t *testing.T) {
	live := []*unstructured.Unstructured{
		testObject(apiv1.DeploymentKind, "apps", "api-v2", "api"),
		testObject(apiv1.DeploymentKind, "apps", "worker-v1", "worker"),
	}

	t.Run("remove-all selects every live object", func(t *testing.T) {
		g := NewWithT(t)
		candidates, err := SelectForRemoval(apiv1.DeploymentKind, live, true, nil, true)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(candidates).To(HaveLen(2))
	})

	t.Run("explicit names match on the logical-name label", func(t *testing.T) {
		g := NewWithT(t)
		candidates, err := SelectForRemoval(apiv1.DeploymentKind, live, false, []string{"api"}, true)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(candidates).To(HaveLen(1))
		g.Expect(candidates[0].GetName()).To(Equal("api-v2"))
	})

	t.Run("leftover names fail listing exactly the unmatched set", func(t *testing.T) {
		g := NewWithT(t)
		_, err := SelectForRemoval(apiv1.DeploymentKind, live, false, []string{"web", "api"}, true)
		g.Expect(err).To(HaveOccurred())

		var validationErr *ValidationError
		g.Expect(errors.As(err, &validationErr)).To(BeTrue())
		g.Expect(validationErr.Leftover).To(Equal([]string{"web"}))
	})

	t.Run("leftover check disabled tolerates unmatched names", func(t *testing.T) {
		g := NewWithT(t)
		candidates, err := SelectForRemoval(apiv1.JobKind, live, false, []string{"web", "api"}, false)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(candidates).To(HaveLen(1))
	})
}

func fakeCluster(objects ...*unstructured.Unstructured) client.Reader {
	scheme := runtime.NewScheme()
	_ = corev1.AddToScheme(scheme)
	_ = appsv1.AddToScheme(scheme)
	_ = batchv1.AddToScheme(scheme)

	clientObjects := make([]client.Object, 0, len(objects))
	for _, object := range objects {
		clientObjects = append(clientObjects, object)
	}
	return fake.NewClientBuilder().WithScheme(scheme).WithObjects(clientObjects...).Build()
}

func Test_PlanRemoval(t *testing.T) {
	build := apiv1.Build{Namespace: "apps"}

	t.Run("collects candidates across kinds in submission order", func(t *testing.T) {
		g := NewWithT(t)

		r := &Reconciler{
			kubeClient: fakeCluster(
				testObject(apiv1.DeploymentKind, "apps", "web", "web"),
				testObject(apiv1.ServiceKind, "apps", "web", "web"),
			),
			applier: &fakeApplier{},
		}

		candidates, err := r.PlanRemoval(context.Background(), build, false, []string{"web"})
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(candidates).To(HaveLen(2))
		g.Expect(candidates[0].GetKind()).To(Equal("Service"))
		g.Expect(candidates[1].GetKind()).To(Equal("Deployment"))
	})

	t.Run("a leftover on any kind fails before anything is deleted", func(t *testing.T) {
		g := NewWithT(t)

		// worker has a service but no deployment, so the plan fails on
		// the Deployment kind after Service candidates were collected.
		fakeDeleter := &fakeApplier{}
		r := &Reconciler{
			kubeClient: fakeCluster(
				testObject(apiv1.ServiceKind, "apps", "web", "web"),
				testObject(apiv1.ServiceKind, "apps", "worker", "worker"),
				testObject(apiv1.DeploymentKind, "apps", "web", "web"),
			),
			applier: fakeDeleter,
		}

		_, err := r.PlanRemoval(context.Background(), build, false, []string{"web", "worker"})
		g.Expect(err).To(HaveOccurred())

		var validationErr *ValidationError
		g.Expect(errors.As(err, &validationErr)).To(BeTrue())
		g.Expect(validationErr.Leftover).To(Equal([]string{"worker"}))
		g.Expect(fakeDeleter.deleted).To(BeEmpty())
	})

	t.Run("remove-all plans every managed object and no job leftover check", func(t *testing.T) {
		g := NewWithT(t)

		r := &Reconciler{
			kubeClient: fakeCluster(
				testObject(apiv1.ServiceKind, "apps", "web", "web"),
				testObject(apiv1.DeploymentKind, "apps", "web", "web"),
				testObject(apiv1.JobKind, "apps", "web-upgrade-abc1234", "web"),
			),
			applier: &fakeApplier{},
		}

		candidates, err := r.PlanRemoval(context.Background(), build, true, nil)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(candidates).To(HaveLen(3))
	})
}

func Test_ListObjects(t *testing.T) {
	build := apiv1.Build{Namespace: "apps"}

	t.Run("returns unmanaged objects alongside managed ones", func(t *testing.T) {
		g := NewWithT(t)

		managed := testObject(apiv1.DeploymentKind, "apps", "web", "web")
		unmanaged := &unstructured.Unstructured{}
		unmanaged.SetGroupVersionKind(apiv1.DeploymentKind.GroupVersionKind())
		unmanaged.SetNamespace("apps")
		unmanaged.SetName("legacy")

		r := &Reconciler{
			kubeClient: fakeCluster(managed, unmanaged),
			applier:    &fakeApplier{},
		}

		objects, err := r.ListObjects(context.Background(), apiv1.DeploymentKind, build)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(objects).To(HaveLen(2))

		names := []string{objects[0].GetName(), objects[1].GetName()}
		g.Expect(names).To(ContainElements("web", "legacy"))
	})

	t.Run("scopes the listing to the build namespace", func(t *testing.T) {
		g := NewWithT(t)

		r := &Reconciler{
			kubeClient: fakeCluster(
				testObject(apiv1.ServiceKind, "apps", "web", "web"),
				testObject(apiv1.ServiceKind, "other", "web", "web"),
			),
			applier: &fakeApplier{},
		}

		objects, err := r.ListObjects(context.Background(), apiv1.ServiceKind, build)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(objects).To(HaveLen(1))
		g.Expect(objects[0].GetNamespace()).To(Equal("apps"))
	})
}

func Test_DeleteAll(t *testing.T) {
	t.Run("deletes candidates independently until the first failure", func(t *testing.T) {
		g := NewWithT(t)

		one := testObject(apiv1.ServiceKind, "apps", "one", "one")
		two := testObject(apiv1.ServiceKind, "apps", "two", "two")
		three := testObject(apiv1.ServiceKind, "apps", "three", "three")

		fake := &fakeApplier{failOn: objectKey(two)}
		r := &Reconciler{applier: fake}

		err := r.DeleteAll(context.Background(), logr.Discard(),
			[]*unstructured.Unstructured{one, two, three})
		g.Expect(err).To(HaveOccurred())
		g.Expect(fake.deleted).To(Equal([]string{"Service/apps/one"}))
	})
}
