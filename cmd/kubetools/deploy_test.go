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
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/kubetools/kubetools/internal/config"
)

func writeTestProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	contents := `
name: my-app
env: dev
dependencies:
  db:
    image: postgres:15
    ports: ["5432"]
deployments:
  web:
    image: my-app
    ports: ["8000:80"]
`
	err := os.WriteFile(filepath.Join(dir, config.ConfigFilename), []byte(contents), 0o644)
	if err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestDeploy_DryRun(t *testing.T) {
	g := NewWithT(t)

	// Keep the captured git probes fast; the temp dir is not a repo.
	settings.WaitIntervalSeconds = 1

	dir := writeTestProject(t)
	output, err := executeCommand("deploy apps " + dir + " --dry")
	g.Expect(err).ToNot(HaveOccurred())

	g.Expect(output).To(ContainSubstring("Service/apps/web"))
	g.Expect(output).To(ContainSubstring("Deployment/apps/web"))
	g.Expect(output).To(ContainSubstring("Deployment/apps/db"))
	g.Expect(output).To(ContainSubstring("(dry run)"))

	// The generated objects themselves are printed as YAML documents.
	g.Expect(output).To(ContainSubstring("kind: Deployment"))
	g.Expect(output).To(ContainSubstring("kind: Service"))
	g.Expect(output).To(ContainSubstring("image: postgres:15"))
	g.Expect(output).To(ContainSubstring("namespace: apps"))
}

func TestDeploy_InvalidConfig(t *testing.T) {
	g := NewWithT(t)

	dir := t.TempDir()
	_, err := executeCommand("deploy apps " + dir + " --dry")
	g.Expect(err).To(HaveOccurred())
}
