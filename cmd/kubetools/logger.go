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

	"github.com/go-logr/logr"

	"github.com/kubetools/kubetools/internal/logger"
)

// NewConsoleLogger builds the console logger from the root flags.
func NewConsoleLogger() logr.Logger {
	return logger.NewConsoleLogger(rootArgs.coloredLog, rootArgs.prettyLog)
}

// loggerProject returns a logger scoped to one project and environment.
func loggerProject(ctx context.Context, project, env string) logr.Logger {
	return LoggerFrom(ctx, "project", project, "env", env)
}

// LoggerFrom returns a logr.Logger with predefined values from a context.Context.
func LoggerFrom(ctx context.Context, keysAndValues ...interface{}) logr.Logger {
	if cliLogger.IsZero() {
		cliLogger = logger.NewConsoleLogger(false, false)
	}
	newLogger := cliLogger
	if ctx != nil {
		if l, err := logr.FromContext(ctx); err == nil {
			newLogger = l
		}
	}
	return newLogger.WithValues(keysAndValues...)
}
