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
	"sort"

	"github.com/spf13/cobra"

	"github.com/kubetools/kubetools/internal/config"
	"github.com/kubetools/kubetools/internal/dev"
	"github.com/kubetools/kubetools/internal/engine"
)

var devCmd = &cobra.Command{
	Use:   "dev",
	Short: "Manage the project's local docker dev environment",
}

type devFlags struct {
	env            string
	dir            string
	all            bool
	keepContainers bool
}

var devArgs devFlags

var devStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the status of the project's dev containers",
	RunE:  runDevStatusCmd,
}

var devBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the dev environment images",
	RunE:  composeAction(func(ctx context.Context, compose *dev.Compose) error { return compose.Build(ctx) }),
}

var devStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the dev environment containers",
	RunE:  composeAction(func(ctx context.Context, compose *dev.Compose) error { return compose.Start(ctx) }),
}

var devStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the dev environment without removing it",
	RunE:  composeAction(func(ctx context.Context, compose *dev.Compose) error { return compose.Stop(ctx) }),
}

var devDestroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Remove the dev environment's containers, networks and volumes",
	RunE:  composeAction(func(ctx context.Context, compose *dev.Compose) error { return compose.Down(ctx) }),
}

var devUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Create or update the dev environment and run upgrades",
	RunE:  runDevUpCmd,
}

var devReloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Recreate the dev environment's containers and re-run upgrades",
	RunE:  runDevReloadCmd,
}

var devTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Bring up a test environment, run the project's tests and tear it down",
	RunE:  runDevTestCmd,
}

func init() {
	devCmd.PersistentFlags().StringVar(&devArgs.env, "env", "",
		"The dev environment name. Defaults to the settings dev default.")
	devCmd.PersistentFlags().StringVar(&devArgs.dir, "dir", ".",
		"The project directory.")
	devStatusCmd.Flags().BoolVar(&devArgs.all, "all", false,
		"Show every environment of the project, not just the selected one.")
	devTestCmd.Flags().BoolVar(&devArgs.keepContainers, "keep-containers", false,
		"Keep the test environment's containers around after the run.")

	devCmd.AddCommand(devStatusCmd)
	devCmd.AddCommand(devBuildCmd)
	devCmd.AddCommand(devStartCmd)
	devCmd.AddCommand(devStopCmd)
	devCmd.AddCommand(devDestroyCmd)
	devCmd.AddCommand(devUpCmd)
	devCmd.AddCommand(devReloadCmd)
	devCmd.AddCommand(devTestCmd)
	rootCmd.AddCommand(devCmd)
}

func devProject() (*config.Project, error) {
	return config.Load(devArgs.dir, devArgs.env, settings.DevDefaultEnv)
}

// devCompose writes the compose file for the project's environment and
// returns the compose driver bound to it. Only the default dev
// environment joins the shared dev network; custom environments (tests
// included) stay on their own project network.
func devCompose(project *config.Project) (*dev.Compose, error) {
	file, err := engine.WriteComposeFile(project, settings.DevConfigDirName, devSharedNetwork(project))
	if err != nil {
		return nil, err
	}
	return &dev.Compose{
		Runner:      settings.NewRunner(rootArgs.debug),
		ProjectName: project.ComposeProjectName(),
		ProjectDir:  project.Dir,
		File:        file,
	}, nil
}

func devSharedNetwork(project *config.Project) string {
	if project.Env == settings.DevDefaultEnv {
		return dev.DevNetworkName
	}
	return ""
}

func composeAction(action func(context.Context, *dev.Compose) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		project, err := devProject()
		if err != nil {
			return err
		}
		compose, err := devCompose(project)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), rootArgs.timeout)
		defer cancel()
		return action(ctx, compose)
	}
}

func runDevStatusCmd(cmd *cobra.Command, args []string) error {
	project, err := devProject()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), rootArgs.timeout)
	defer cancel()

	docker, err := dev.NewDocker()
	if err != nil {
		return err
	}
	live, err := docker.ListProjectContainers(ctx, project.Name)
	if err != nil {
		return err
	}

	result, err := dev.Aggregate(project.AllContainers(), live, project.Name, project.Env, devArgs.all)
	if err != nil {
		return err
	}

	var rows [][]string
	for _, env := range sortedKeys(result) {
		containers := result[env]
		names := make([]string, 0, len(containers))
		for name := range containers {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			record := containers[name]
			up := "unknown"
			if record.Up != nil {
				up = fmt.Sprintf("%v", *record.Up)
			}
			role := "deployment"
			if record.IsDependency {
				role = "dependency"
			}
			var ports string
			for i, port := range record.Ports {
				if i > 0 {
					ports += " "
				}
				ports += port
			}
			rows = append(rows, []string{env, name, up, ports, role})
		}
	}

	printTable(cmd.OutOrStdout(), []string{"env", "name", "up", "ports", "role"}, rows)
	return nil
}

func runDevUpCmd(cmd *cobra.Command, args []string) error {
	project, err := devProject()
	if err != nil {
		return err
	}
	compose, err := devCompose(project)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), rootArgs.timeout)
	defer cancel()

	if err := ensureSharedNetwork(ctx, project); err != nil {
		return err
	}

	log := loggerProject(ctx, project.Name, project.Env)
	log.Info("starting dev environment")

	if err := compose.Build(ctx); err != nil {
		return err
	}
	if err := compose.Up(ctx); err != nil {
		return err
	}
	if err := runHooks(ctx, project, compose, project.Upgrades, false); err != nil {
		return err
	}

	log.Info("dev environment ready")
	return nil
}

// ensureSharedNetwork creates the shared dev bridge network when the
// project's environment joins it.
func ensureSharedNetwork(ctx context.Context, project *config.Project) error {
	if devSharedNetwork(project) == "" {
		return nil
	}
	docker, err := dev.NewDocker()
	if err != nil {
		return err
	}
	return docker.EnsureDevNetwork(ctx)
}

// runDevReloadCmd recreates the containers instead of restarting them,
// so the freshly written compose file takes effect.
func runDevReloadCmd(cmd *cobra.Command, args []string) error {
	project, err := devProject()
	if err != nil {
		return err
	}
	compose, err := devCompose(project)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), rootArgs.timeout)
	defer cancel()

	if err := ensureSharedNetwork(ctx, project); err != nil {
		return err
	}
	if err := compose.Reload(ctx); err != nil {
		return err
	}
	return runHooks(ctx, project, compose, project.Upgrades, false)
}

// runDevTestCmd runs the project's tests in their own environment:
// build, up, upgrade hooks with SkipWhenTesting honored, then the test
// hooks. The environment is destroyed afterwards, pass or fail, unless
// --keep-containers asks for it to stay.
func runDevTestCmd(cmd *cobra.Command, args []string) error {
	project, err := config.Load(devArgs.dir, testEnv(devArgs.env), settings.DevDefaultEnv)
	if err != nil {
		return err
	}
	compose, err := devCompose(project)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), rootArgs.timeout)
	defer cancel()

	if err := ensureSharedNetwork(ctx, project); err != nil {
		return err
	}

	log := loggerProject(ctx, project.Name, project.Env)
	log.Info("starting test environment")

	runErr := func() error {
		if err := compose.Build(ctx); err != nil {
			return err
		}
		if err := compose.Up(ctx); err != nil {
			return err
		}
		if err := runHooks(ctx, project, compose, project.Upgrades, true); err != nil {
			return err
		}
		return runHooks(ctx, project, compose, project.Tests, false)
	}()

	if !devArgs.keepContainers {
		log.Info("destroying test environment")
		if downErr := compose.Down(ctx); downErr != nil && runErr == nil {
			runErr = downErr
		}
	}
	return runErr
}

// testEnv picks the environment a test run targets: an explicit --env
// wins, otherwise tests get their own dedicated environment so they
// never touch running dev containers.
func testEnv(explicit string) string {
	if explicit != "" {
		return explicit
	}
	return "test"
}

// runHooks executes hooks in one-off containers of their target
// service, in declaration order.
func runHooks(ctx context.Context, project *config.Project, compose *dev.Compose,
	hooks []config.Hook, testing bool) error {

	for _, hook := range hooks {
		if testing && hook.SkipWhenTesting {
			continue
		}
		service, err := project.HookContainer(hook)
		if err != nil {
			return err
		}
		if err := compose.RunOneOff(ctx, service, hook.Command, hook.Environment); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(m dev.EnvironmentMap) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
