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

package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fluxcd/cli-utils/pkg/kstatus/status"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	apiv1 "github.com/kubetools/kubetools/api/v1alpha1"
	"github.com/kubetools/kubetools/internal/logger"
	"github.com/kubetools/kubetools/internal/reconciler"
	"github.com/kubetools/kubetools/internal/runtime"
)

var showCmd = &cobra.Command{
	Use:   "show NAMESPACE [APP_NAME]",
	Short: "Print tables of the apps running in a namespace",
	Example: `  # Show everything running in the apps namespace
  kubetools show apps

  # Show only the web app's objects
  kubetools show apps web
`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runShowCmd,
}

func init() {
	rootCmd.AddCommand(showCmd)
}

func runShowCmd(cmd *cobra.Command, args []string) error {
	namespace := args[0]
	app := ""
	if len(args) > 1 {
		app = args[1]
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), rootArgs.timeout)
	defer cancel()

	manager, err := runtime.NewResourceManager(kubeconfigArgs)
	if err != nil {
		return err
	}
	rec := reconciler.NewReconciler(manager)

	build := apiv1.Build{Namespace: namespace}
	writer := cmd.OutOrStdout()

	if app != "" {
		fmt.Fprintf(writer, "--> Filtering by app=%s\n", app)
	}

	for _, kind := range apiv1.Kinds() {
		objects, err := rec.ListObjects(ctx, kind, build)
		if err != nil {
			return err
		}
		objects = filterByApp(objects, app)
		if len(objects) == 0 {
			continue
		}

		fmt.Fprintf(writer, "--> %d %ss\n", len(objects), kind)
		printTable(writer, showHeader(kind), showRows(kind, objects))
		fmt.Fprintln(writer)
	}
	return nil
}

// objectAppName resolves the logical app name, falling back to the
// Kubernetes object name for things kubetools never labelled.
func objectAppName(object *unstructured.Unstructured) string {
	if name := object.GetLabels()[apiv1.NameLabelKey]; name != "" {
		return name
	}
	return object.GetName()
}

func filterByApp(objects []*unstructured.Unstructured, app string) []*unstructured.Unstructured {
	if app == "" {
		return objects
	}
	matched := make([]*unstructured.Unstructured, 0, len(objects))
	for _, object := range objects {
		if objectAppName(object) == app {
			matched = append(matched, object)
		}
	}
	return matched
}

func showHeader(kind apiv1.ObjectKind) []string {
	header := []string{"name", "role", "project"}
	switch kind {
	case apiv1.ServiceKind:
		header = append(header, "port(:nodePort)")
	case apiv1.DeploymentKind:
		header = append(header, "ready", "version")
	case apiv1.JobKind:
		header = append(header, "completions")
	}
	return append(header, "status")
}

func showRows(kind apiv1.ObjectKind, objects []*unstructured.Unstructured) [][]string {
	rows := make([][]string, 0, len(objects))
	for _, object := range objects {
		labels := object.GetLabels()

		project := labels[apiv1.ProjectNameLabelKey]
		if !apiv1.IsKubetoolsObject(labels) {
			project = logger.ColorizeWarning("NOT MANAGED BY KUBETOOLS")
		} else if project == "" {
			project = "unknown"
		}

		row := []string{objectAppName(object), labels[apiv1.RoleLabelKey], project}
		switch kind {
		case apiv1.ServiceKind:
			row = append(row, servicePorts(object))
		case apiv1.DeploymentKind:
			row = append(row, readyReplicas(object), versionInfo(object))
		case apiv1.JobKind:
			row = append(row, jobCompletions(object))
		}

		objectStatus := status.UnknownStatus
		if result, err := status.Compute(object); err == nil {
			objectStatus = result.Status
		}
		rows = append(rows, append(row, logger.ColorizeStatus(objectStatus)))
	}
	return rows
}

// servicePorts renders each service port, suffixing the nodePort when
// one is allocated.
func servicePorts(object *unstructured.Unstructured) string {
	ports, _, _ := unstructured.NestedSlice(object.Object, "spec", "ports")
	rendered := make([]string, 0, len(ports))
	for _, p := range ports {
		port, ok := p.(map[string]any)
		if !ok {
			continue
		}
		number, _, _ := unstructured.NestedInt64(port, "port")
		if nodePort, found, _ := unstructured.NestedInt64(port, "nodePort"); found && nodePort != 0 {
			rendered = append(rendered, fmt.Sprintf("%d:%d", number, nodePort))
		} else {
			rendered = append(rendered, fmt.Sprintf("%d", number))
		}
	}
	return strings.Join(rendered, ", ")
}

func readyReplicas(object *unstructured.Unstructured) string {
	ready, _, _ := unstructured.NestedInt64(object.Object, "status", "readyReplicas")
	replicas, _, _ := unstructured.NestedInt64(object.Object, "status", "replicas")
	return fmt.Sprintf("%d/%d", ready, replicas)
}

// versionInfo assembles the git provenance recorded at deploy time.
func versionInfo(object *unstructured.Unstructured) string {
	annotations := object.GetAnnotations()
	bits := make([]string, 0, 3)
	for _, source := range []struct {
		name string
		key  string
	}{
		{"branch", apiv1.GitBranchAnnotationKey},
		{"tag", apiv1.GitTagAnnotationKey},
		{"commit", apiv1.GitCommitAnnotationKey},
	} {
		if data := annotations[source.key]; data != "" {
			bits = append(bits, fmt.Sprintf("%s=%s", source.name, data))
		}
	}
	return strings.Join(bits, ", ")
}

func jobCompletions(object *unstructured.Unstructured) string {
	succeeded, _, _ := unstructured.NestedInt64(object.Object, "status", "succeeded")
	completions, _, _ := unstructured.NestedInt64(object.Object, "spec", "completions")
	return fmt.Sprintf("%d/%d", succeeded, completions)
}

func printTable(writer io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(writer)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)
	table.AppendBulk(rows)
	table.Render()
}
