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

// Package engine compiles project configuration into desired state:
// Kubernetes objects for cluster deploys and compose projects for local
// dev environments.
package engine

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/intstr"

	apiv1 "github.com/kubetools/kubetools/api/v1alpha1"
	"github.com/kubetools/kubetools/internal/config"
	"github.com/kubetools/kubetools/internal/identity"
)

// BuildOptions tune the generated cluster objects.
type BuildOptions struct {
	// Replicas overrides the deployment replica count when positive.
	Replicas int

	// Registry, when set, is prefixed onto images that do not
	// already name it.
	Registry string

	// Git stamps provenance annotations onto every object.
	Git GitMetadata
}

// ObjectSet is the compiled desired state of one project, ordered the
// way it is submitted to the cluster.
type ObjectSet struct {
	Services    []*unstructured.Unstructured
	Deployments []*unstructured.Unstructured
	Jobs        []*unstructured.Unstructured
}

// GenerateObjects compiles a project into its Kubernetes objects: a
// deployment per container, a service per container that exposes
// ports, and a job per upgrade hook.
func GenerateObjects(project *config.Project, build apiv1.Build, opts BuildOptions) (*ObjectSet, error) {
	set := &ObjectSet{}

	containers := project.AllContainers()
	names := make([]string, 0, len(containers))
	for name := range containers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		container := containers[name]

		deployment, err := buildDeployment(project, build, opts, name, container)
		if err != nil {
			return nil, err
		}
		set.Deployments = append(set.Deployments, deployment)

		if len(container.Ports) > 0 {
			service, err := buildService(project, build, opts, name, container)
			if err != nil {
				return nil, err
			}
			set.Services = append(set.Services, service)
		}
	}

	for _, hook := range project.Upgrades {
		job, err := buildJob(project, build, opts, hook)
		if err != nil {
			return nil, err
		}
		set.Jobs = append(set.Jobs, job)
	}

	return set, nil
}

func objectMeta(project *config.Project, build apiv1.Build, opts BuildOptions, name, role string) metav1.ObjectMeta {
	annotations := map[string]string{
		apiv1.EnvAnnotationKey:       build.Env,
		apiv1.NamespaceAnnotationKey: build.Namespace,
	}
	if opts.Git.Commit != "" {
		annotations[apiv1.GitCommitAnnotationKey] = opts.Git.Commit
	}
	if opts.Git.Branch != "" {
		annotations[apiv1.GitBranchAnnotationKey] = opts.Git.Branch
	}
	if opts.Git.Tag != "" {
		annotations[apiv1.GitTagAnnotationKey] = opts.Git.Tag
	}

	return metav1.ObjectMeta{
		Name:      name,
		Namespace: build.Namespace,
		Labels: map[string]string{
			apiv1.NameLabelKey:        name,
			apiv1.ProjectNameLabelKey: project.Name,
			apiv1.RoleLabelKey:        role,
			apiv1.ManagedByLabelKey:   apiv1.ManagedByValue,
		},
		Annotations: annotations,
	}
}

func containerRole(container config.Container) string {
	if container.Role != "" {
		return container.Role
	}
	if container.IsDependency {
		return "dependency"
	}
	return "app"
}

// containerEnv injects the cluster context variables ahead of the
// container's own, sorted for stable object output.
func containerEnv(build apiv1.Build, container config.Container) []corev1.EnvVar {
	env := []corev1.EnvVar{
		{Name: apiv1.EnvVarKube, Value: "true"},
		{Name: apiv1.EnvVarKubeNamespace, Value: build.Namespace},
		{Name: apiv1.EnvVarKubeEnv, Value: build.Env},
	}

	keys := make([]string, 0, len(container.Environment))
	for key := range container.Environment {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		env = append(env, corev1.EnvVar{Name: key, Value: container.Environment[key]})
	}
	return env
}

func containerImage(opts BuildOptions, image string) string {
	if opts.Registry == "" || strings.HasPrefix(image, opts.Registry+"/") {
		return image
	}
	return opts.Registry + "/" + image
}

func buildDeployment(project *config.Project, build apiv1.Build, opts BuildOptions,
	name string, container config.Container) (*unstructured.Unstructured, error) {

	ports, err := containerPorts(container.Ports)
	if err != nil {
		return nil, fmt.Errorf("deployment %s: %w", name, err)
	}

	replicas := int32(1)
	if opts.Replicas > 0 {
		replicas = int32(opts.Replicas)
	}

	selector := map[string]string{apiv1.NameLabelKey: name}
	meta := objectMeta(project, build, opts, name, containerRole(container))

	deployment := &appsv1.Deployment{
		TypeMeta:   metav1.TypeMeta{APIVersion: "apps/v1", Kind: "Deployment"},
		ObjectMeta: meta,
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: selector},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels:      meta.Labels,
					Annotations: meta.Annotations,
				},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{
						Name:    name,
						Image:   containerImage(opts, container.Image),
						Command: container.Command,
						Ports:   ports,
						Env:     containerEnv(build, container),
					}},
				},
			},
		},
	}

	return toUnstructured(deployment)
}

func buildService(project *config.Project, build apiv1.Build, opts BuildOptions,
	name string, container config.Container) (*unstructured.Unstructured, error) {

	var ports []corev1.ServicePort
	for _, spec := range container.Ports {
		port, err := parsePort(spec)
		if err != nil {
			return nil, fmt.Errorf("service %s: %w", name, err)
		}
		ports = append(ports, corev1.ServicePort{
			Name:       fmt.Sprintf("port-%d", port),
			Port:       port,
			TargetPort: intstr.FromInt32(port),
		})
	}

	service := &corev1.Service{
		TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: "Service"},
		ObjectMeta: objectMeta(project, build, opts, name, containerRole(container)),
		Spec: corev1.ServiceSpec{
			Selector: map[string]string{apiv1.NameLabelKey: name},
			Ports:    ports,
		},
	}

	return toUnstructured(service)
}

func buildJob(project *config.Project, build apiv1.Build, opts BuildOptions,
	hook config.Hook) (*unstructured.Unstructured, error) {

	containerName, err := project.HookContainer(hook)
	if err != nil {
		return nil, err
	}
	container, ok := project.AllContainers()[containerName]
	if !ok {
		return nil, fmt.Errorf("hook %q references unknown container %q", hook.Name, containerName)
	}

	args, err := shellwords.Parse(hook.Command)
	if err != nil {
		return nil, fmt.Errorf("hook %q: parsing command: %w", hook.Name, err)
	}

	env := containerEnv(build, container)
	keys := make([]string, 0, len(hook.Environment))
	for key := range hook.Environment {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		env = append(env, corev1.EnvVar{Name: key, Value: hook.Environment[key]})
	}

	backoffLimit := int32(0)
	job := &batchv1.Job{
		TypeMeta:   metav1.TypeMeta{APIVersion: "batch/v1", Kind: "Job"},
		ObjectMeta: objectMeta(project, build, opts, jobName(project, opts, hook), "upgrade"),
		Spec: batchv1.JobSpec{
			BackoffLimit: &backoffLimit,
			Template: corev1.PodTemplateSpec{
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{{
						Name:    containerName,
						Image:   containerImage(opts, container.Image),
						Command: args,
						Env:     env,
					}},
				},
			},
		},
	}

	return toUnstructured(job)
}

// jobName builds a unique, rerunnable job identity from the hook and
// the revision being deployed.
func jobName(project *config.Project, opts BuildOptions, hook config.Hook) string {
	slug := identity.DockeriseName(hook.Name)
	if slug == "" {
		slug = "upgrade"
	}
	suffix := opts.Git.Commit
	if suffix == "" {
		suffix = strconv.FormatInt(time.Now().Unix(), 36)
	}
	return fmt.Sprintf("%s-%s-%s", project.Name, slug, suffix)
}

func containerPorts(specs []string) ([]corev1.ContainerPort, error) {
	var ports []corev1.ContainerPort
	for _, spec := range specs {
		port, err := parsePort(spec)
		if err != nil {
			return nil, err
		}
		ports = append(ports, corev1.ContainerPort{ContainerPort: port})
	}
	return ports, nil
}

// parsePort extracts the container-side port from a "port" or
// "host:port" spec.
func parsePort(spec string) (int32, error) {
	parts := strings.Split(spec, ":")
	port, err := strconv.Atoi(strings.TrimSpace(parts[len(parts)-1]))
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port spec %q", spec)
	}
	return int32(port), nil
}

func toUnstructured(object runtime.Object) (*unstructured.Unstructured, error) {
	data, err := runtime.DefaultUnstructuredConverter.ToUnstructured(object)
	if err != nil {
		return nil, err
	}
	return &unstructured.Unstructured{Object: data}, nil
}
