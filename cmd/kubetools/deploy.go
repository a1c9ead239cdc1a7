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

	"github.com/fluxcd/cli-utils/pkg/object"
	"github.com/fluxcd/pkg/ssa"
	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/yaml"

	apiv1 "github.com/kubetools/kubetools/api/v1alpha1"
	"github.com/kubetools/kubetools/internal/config"
	"github.com/kubetools/kubetools/internal/engine"
	"github.com/kubetools/kubetools/internal/logger"
	"github.com/kubetools/kubetools/internal/reconciler"
	"github.com/kubetools/kubetools/internal/runtime"
)

var deployCmd = &cobra.Command{
	Use:   "deploy NAMESPACE [APP_DIR]...",
	Short: "Deploy or upgrade projects in a cluster namespace",
	Example: `  # Deploy the project in the current directory to the apps namespace
  kubetools deploy apps

  # Preview the objects without touching the cluster
  kubetools deploy apps ./my-app --dry

  # Deploy two projects with a replica override
  kubetools deploy apps ./my-app ./my-worker --replicas 3
`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDeployCmd,
}

type deployFlags struct {
	env      string
	dry      bool
	wait     bool
	replicas int
	registry string
}

var deployArgs deployFlags

func init() {
	deployCmd.Flags().StringVar(&deployArgs.env, "env", "",
		"The target environment name. Overrides the project config; defaults to the settings default.")
	deployCmd.Flags().BoolVar(&deployArgs.dry, "dry", false,
		"Print the generated objects without submitting them to the cluster.")
	deployCmd.Flags().BoolVar(&deployArgs.wait, "wait", true,
		"Wait for the applied objects, upgrade jobs included, to become ready.")
	deployCmd.Flags().IntVar(&deployArgs.replicas, "replicas", 0,
		"Override the replica count of every deployment.")
	deployCmd.Flags().StringVar(&deployArgs.registry, "registry", "",
		"Registry prefix applied to container images.")

	rootCmd.AddCommand(deployCmd)
}

func runDeployCmd(cmd *cobra.Command, args []string) error {
	namespace := args[0]
	dirs := args[1:]
	if len(dirs) == 0 {
		dirs = []string{"."}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), rootArgs.timeout)
	defer cancel()

	runner := settings.NewRunner(rootArgs.debug)
	for _, dir := range dirs {
		project, err := config.Load(dir, deployArgs.env, settings.DefaultEnv)
		if err != nil {
			return err
		}

		build := apiv1.Build{Env: project.Env, Namespace: namespace}

		opts := engine.BuildOptions{
			Replicas: deployArgs.replicas,
			Registry: deployArgs.registry,
		}
		// The commit annotation is the deployed revision's identity; a
		// deploy without it is refused. A dry run may preview objects
		// outside a repository, without revision annotations.
		git, err := engine.CollectGitMetadata(ctx, runner, dir)
		switch {
		case err != nil && !deployArgs.dry:
			return fmt.Errorf("reading the git revision of %s: %w", dir, err)
		case err != nil:
			loggerProject(ctx, project.Name, project.Env).
				Info("git metadata unavailable, objects will carry no revision annotations")
		default:
			opts.Git = git
		}

		set, err := engine.GenerateObjects(project, build, opts)
		if err != nil {
			return err
		}
		if deployArgs.dry {
			for _, object := range allObjects(set) {
				fmt.Fprintln(cmd.OutOrStdout(),
					logger.ColorizeJoin(object, logger.DryRunClient))
				data, err := yaml.Marshal(object.Object)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "---\n%s", data)
			}
			continue
		}

		manager, err := runtime.NewResourceManager(kubeconfigArgs)
		if err != nil {
			return err
		}

		log := loggerProject(ctx, project.Name, project.Env)
		rec := reconciler.NewReconciler(manager)
		if err := rec.DeployOrUpgrade(ctx, build, log,
			set.Services, set.Deployments, set.Jobs); err != nil {
			return err
		}

		if deployArgs.wait {
			objects := allObjects(set)
			metas := object.UnstructuredSetToObjMetadataSet(objects)
			log.Info(fmt.Sprintf("waiting for %d object(s) to become ready...", len(metas)))
			if err := manager.WaitForSet(metas, ssa.WaitOptions{
				Interval: settings.WaitInterval(),
				Timeout:  rootArgs.timeout,
			}); err != nil {
				return err
			}
		}
		log.Info("deploy finished")
	}

	return nil
}

func allObjects(set *engine.ObjectSet) []*unstructured.Unstructured {
	objects := make([]*unstructured.Unstructured, 0,
		len(set.Services)+len(set.Deployments)+len(set.Jobs))
	objects = append(objects, set.Services...)
	objects = append(objects, set.Deployments...)
	objects = append(objects, set.Jobs...)
	return objects
}
