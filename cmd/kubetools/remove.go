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
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	apiv1 "github.com/kubetools/kubetools/api/v1alpha1"
	"github.com/kubetools/kubetools/internal/logger"
	"github.com/kubetools/kubetools/internal/reconciler"
	"github.com/kubetools/kubetools/internal/runtime"
)

var removeCmd = &cobra.Command{
	Use:   "remove NAMESPACE [APP_NAME]...",
	Short: "Remove deployed apps from a cluster namespace",
	Example: `  # Remove two apps by their logical names
  kubetools remove apps web worker --yes

  # Remove everything kubetools manages in the namespace
  kubetools remove apps --all
`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRemoveCmd,
}

type removeFlags struct {
	all bool
	yes bool
}

var removeArgs removeFlags

func init() {
	removeCmd.Flags().BoolVar(&removeArgs.all, "all", false,
		"Remove every kubetools-managed object in the namespace.")
	removeCmd.Flags().BoolVar(&removeArgs.yes, "yes", false,
		"Skip the interactive confirmation.")

	rootCmd.AddCommand(removeCmd)
}

func runRemoveCmd(cmd *cobra.Command, args []string) error {
	namespace := args[0]
	names := args[1:]

	// Validated before any client is built or API call made.
	if err := reconciler.ValidateRemovalRequest(names, removeArgs.all); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), rootArgs.timeout)
	defer cancel()

	manager, err := runtime.NewResourceManager(kubeconfigArgs)
	if err != nil {
		return err
	}
	rec := reconciler.NewReconciler(manager)

	build := apiv1.Build{Namespace: namespace}
	log := LoggerFrom(ctx, "namespace", namespace)

	// The full candidate set is collected before anything is deleted,
	// so leftover validation on any kind aborts with the cluster
	// untouched.
	candidates, err := rec.PlanRemoval(ctx, build, removeArgs.all, names)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		log.Info("nothing to remove")
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), "to delete:")
	for _, object := range candidates {
		fmt.Fprintln(cmd.OutOrStdout(), " ", logger.ColorizeUnstructured(object))
	}

	if !removeArgs.yes {
		fmt.Fprintf(cmd.OutOrStdout(), "Remove these objects from namespace %s? [y/N] ", namespace)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		if !scanner.Scan() || !strings.EqualFold(strings.TrimSpace(scanner.Text()), "y") {
			return fmt.Errorf("removal aborted")
		}
	}

	if err := rec.DeleteAll(ctx, log, candidates); err != nil {
		return err
	}

	log.Info("removal finished")
	return nil
}
