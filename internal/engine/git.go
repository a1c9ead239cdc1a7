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

package engine

import (
	"context"
	"strings"

	"github.com/kubetools/kubetools/internal/command"
)

// GitMetadata is the source revision stamped onto generated objects.
// Branch is empty on a detached HEAD, Tag when the commit is untagged.
type GitMetadata struct {
	Commit string
	Branch string
	Tag    string
}

// CollectGitMetadata reads the current revision of the repository at
// dir. The commit is required; branch and tag are best effort.
func CollectGitMetadata(ctx context.Context, runner *command.Runner, dir string) (GitMetadata, error) {
	meta := GitMetadata{}

	commit, err := runner.Run(ctx,
		[]string{"git", "-C", dir, "rev-parse", "--short=7", "HEAD"},
		nil, command.CaptureAlways)
	if err != nil {
		return meta, err
	}
	meta.Commit = strings.TrimSpace(commit)

	branch, err := runner.Run(ctx,
		[]string{"git", "-C", dir, "rev-parse", "--abbrev-ref", "HEAD"},
		nil, command.CaptureAlways)
	if err == nil {
		branch = strings.TrimSpace(branch)
		// rev-parse reports the literal string HEAD when detached.
		if branch != "HEAD" {
			meta.Branch = branch
		}
	}

	tag, err := runner.Run(ctx,
		[]string{"git", "-C", dir, "tag", "--points-at", "HEAD"},
		nil, command.CaptureAlways)
	if err == nil {
		if lines := strings.Fields(tag); len(lines) > 0 {
			meta.Tag = lines[0]
		}
	}

	return meta, nil
}
