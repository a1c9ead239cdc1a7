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

package config

import (
	"os"
	"path/filepath"
	"time"

	"sigs.k8s.io/yaml"

	"github.com/kubetools/kubetools/internal/command"
)

// SettingsFilename is the optional user settings file under the
// settings directory in the user's home.
const (
	SettingsDirName  = ".kubetools"
	SettingsFilename = "settings.yaml"
)

// Settings carries user-level defaults. Every field has a working
// zero-config default; the file only overrides.
type Settings struct {
	WaitIntervalSeconds int    `json:"waitIntervalSeconds,omitempty"`
	WaitMaxIterations   int    `json:"waitMaxIterations,omitempty"`
	DefaultEnv          string `json:"defaultEnv,omitempty"`
	DevDefaultEnv       string `json:"devDefaultEnv,omitempty"`
	DevConfigDirName    string `json:"devConfigDirName,omitempty"`
}

// DefaultSettings returns the built-in defaults applied when no
// settings file exists.
func DefaultSettings() Settings {
	return Settings{
		WaitIntervalSeconds: int(command.DefaultWaitInterval / time.Second),
		WaitMaxIterations:   command.DefaultWaitMaxIterations,
		DefaultEnv:          "staging",
		DevDefaultEnv:       "dev",
		DevConfigDirName:    ".kubetools",
	}
}

// LoadSettings reads the user settings file, falling back to defaults
// when the file is absent. A present but malformed file is an error.
func LoadSettings() (Settings, error) {
	settings := DefaultSettings()

	home, err := os.UserHomeDir()
	if err != nil {
		return settings, nil
	}
	path := filepath.Join(home, SettingsDirName, SettingsFilename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return settings, &BuildError{Path: path, Err: err}
	}

	if err := yaml.Unmarshal(data, &settings); err != nil {
		return settings, &BuildError{Path: path, Err: err}
	}
	return settings.withDefaults(), nil
}

func (s Settings) withDefaults() Settings {
	defaults := DefaultSettings()
	if s.WaitIntervalSeconds <= 0 {
		s.WaitIntervalSeconds = defaults.WaitIntervalSeconds
	}
	if s.WaitMaxIterations <= 0 {
		s.WaitMaxIterations = defaults.WaitMaxIterations
	}
	if s.DefaultEnv == "" {
		s.DefaultEnv = defaults.DefaultEnv
	}
	if s.DevDefaultEnv == "" {
		s.DevDefaultEnv = defaults.DevDefaultEnv
	}
	if s.DevConfigDirName == "" {
		s.DevConfigDirName = defaults.DevConfigDirName
	}
	return s
}

// WaitInterval is the readiness poll interval as a duration.
func (s Settings) WaitInterval() time.Duration {
	return time.Duration(s.WaitIntervalSeconds) * time.Second
}

// NewWaiter builds a readiness waiter from the settings' wait budget.
func (s Settings) NewWaiter() *command.Waiter {
	return command.NewWaiter(s.WaitInterval(), s.WaitMaxIterations)
}

// NewRunner builds a process runner that shares the settings' wait
// budget for captured commands.
func (s Settings) NewRunner(debug bool) *command.Runner {
	runner := command.NewRunner(debug)
	runner.Waiter = s.NewWaiter()
	return runner
}
