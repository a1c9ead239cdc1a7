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

package dev

import (
	"context"

	"github.com/mattn/go-shellwords"

	"github.com/kubetools/kubetools/internal/command"
)

// composeRunner is the slice of the process runner the compose driver
// needs.
type composeRunner interface {
	Run(ctx context.Context, args []string, env map[string]string, mode command.CaptureMode) (string, error)
}

// Compose drives the docker compose CLI against one generated compose
// file. All state lives in the runtime; Compose itself is stateless.
type Compose struct {
	Runner      composeRunner
	ProjectName string
	ProjectDir  string
	File        string
}

func (c *Compose) args(sub ...string) []string {
	base := []string{
		"docker", "compose",
		"--project-directory", c.ProjectDir,
		"--project-name", c.ProjectName,
		"--file", c.File,
	}
	return append(base, sub...)
}

// Build builds the images of every service.
func (c *Compose) Build(ctx context.Context) error {
	_, err := c.Runner.Run(ctx, c.args("build"), nil, command.CaptureAuto)
	return err
}

// Up creates and starts the environment in the background.
func (c *Compose) Up(ctx context.Context) error {
	_, err := c.Runner.Run(ctx, c.args("up", "-d"), nil, command.CaptureAuto)
	return err
}

// Start starts previously created containers.
func (c *Compose) Start(ctx context.Context) error {
	_, err := c.Runner.Run(ctx, c.args("start"), nil, command.CaptureAuto)
	return err
}

// Stop stops the environment without removing containers.
func (c *Compose) Stop(ctx context.Context) error {
	_, err := c.Runner.Run(ctx, c.args("stop"), nil, command.CaptureAuto)
	return err
}

// Down removes the environment's containers, networks and volumes.
func (c *Compose) Down(ctx context.Context) error {
	_, err := c.Runner.Run(ctx, c.args("down", "--volumes"), nil, command.CaptureAuto)
	return err
}

// Reload stops the environment and brings it back up. Restarting in
// place would keep the old containers; only a recreate picks up a
// regenerated compose file.
func (c *Compose) Reload(ctx context.Context) error {
	if err := c.Stop(ctx); err != nil {
		return err
	}
	if err := c.Build(ctx); err != nil {
		return err
	}
	return c.Up(ctx)
}

// RunOneOff runs a shell command in a one-off container of the given
// service, streaming its output. The container is removed afterwards.
func (c *Compose) RunOneOff(ctx context.Context, service, shellCommand string, env map[string]string) error {
	parsed, err := shellwords.Parse(shellCommand)
	if err != nil {
		return err
	}

	args := c.args("run", "--rm")
	for key := range env {
		args = append(args, "--env", key+"="+env[key])
	}
	args = append(args, service)
	args = append(args, parsed...)

	_, err = c.Runner.Run(ctx, args, nil, command.CaptureNever)
	return err
}
