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

package command

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/onsi/gomega"
)

func testRunner() *Runner {
	return &Runner{Waiter: quietWaiter(time.Millisecond, 10000)}
}

func Test_Runner_Captured(t *testing.T) {
	t.Run("captures combined output line by line", func(t *testing.T) {
		g := NewWithT(t)
		out, err := testRunner().Run(context.Background(),
			[]string{"sh", "-c", "echo one; echo two >&2; echo three"}, nil, CaptureAlways)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(out).To(ContainSubstring("one"))
		g.Expect(out).To(ContainSubstring("two"))
		g.Expect(out).To(ContainSubstring("three"))
	})

	t.Run("strips ANSI escape sequences", func(t *testing.T) {
		g := NewWithT(t)
		out, err := testRunner().Run(context.Background(),
			[]string{"sh", "-c", `printf '\033[31mred\033[0m\n'`}, nil, CaptureAlways)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(out).To(Equal("red"))
	})

	t.Run("positive exit code yields an ExecError with the captured output", func(t *testing.T) {
		g := NewWithT(t)
		_, err := testRunner().Run(context.Background(),
			[]string{"sh", "-c", "echo broken; exit 2"}, nil, CaptureAlways)
		g.Expect(err).To(HaveOccurred())

		var execErr *ExecError
		g.Expect(errors.As(err, &execErr)).To(BeTrue())
		g.Expect(execErr.Output).To(Equal("broken"))
		g.Expect(execErr.Args).To(Equal([]string{"sh", "-c", "echo broken; exit 2"}))
	})

	t.Run("spawn failure yields an ExecError", func(t *testing.T) {
		g := NewWithT(t)
		_, err := testRunner().Run(context.Background(),
			[]string{"kubetools-no-such-binary"}, nil, CaptureAlways)
		g.Expect(err).To(HaveOccurred())

		var execErr *ExecError
		g.Expect(errors.As(err, &execErr)).To(BeTrue())
	})

	t.Run("wait budget exhaustion kills a chatty child", func(t *testing.T) {
		g := NewWithT(t)
		r := &Runner{Waiter: quietWaiter(time.Millisecond, 2)}

		// The child outproduces the line channel, so the reader is
		// parked on a blocked send when the budget runs out. The run
		// must still return instead of waiting on the reader forever.
		done := make(chan struct{})
		var runErr error
		go func() {
			defer close(done)
			_, runErr = r.Run(context.Background(),
				[]string{"sh", "-c", "while true; do echo spam; done"}, nil, CaptureAlways)
		}()

		g.Eventually(done, "10s").Should(BeClosed())

		var timeoutErr *TimeoutError
		g.Expect(errors.As(runErr, &timeoutErr)).To(BeTrue())
	})

	t.Run("environment overrides reach the child", func(t *testing.T) {
		g := NewWithT(t)
		out, err := testRunner().Run(context.Background(),
			[]string{"sh", "-c", "echo $KUBETOOLS_TEST_VAR"},
			map[string]string{"KUBETOOLS_TEST_VAR": "hello"}, CaptureAlways)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(out).To(Equal("hello"))
	})
}

func Test_Runner_Inline(t *testing.T) {
	t.Run("streams to the runner writers", func(t *testing.T) {
		g := NewWithT(t)
		var stdout bytes.Buffer
		r := testRunner()
		r.Stdout = &stdout
		r.Stderr = &stdout

		out, err := r.Run(context.Background(), []string{"sh", "-c", "echo inline"}, nil, CaptureNever)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(out).To(BeEmpty())
		g.Expect(stdout.String()).To(ContainSubstring("inline"))
	})

	t.Run("debug mode defaults to inline", func(t *testing.T) {
		g := NewWithT(t)
		var stdout bytes.Buffer
		r := testRunner()
		r.Debug = true
		r.Stdout = &stdout
		r.Stderr = &stdout

		out, err := r.Run(context.Background(), []string{"sh", "-c", "echo dbg"}, nil, CaptureAuto)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(out).To(BeEmpty())
		g.Expect(stdout.String()).To(ContainSubstring("dbg"))
	})

	t.Run("positive exit code fails", func(t *testing.T) {
		g := NewWithT(t)
		r := testRunner()
		r.Stdout = &bytes.Buffer{}
		r.Stderr = &bytes.Buffer{}

		_, err := r.Run(context.Background(), []string{"sh", "-c", "exit 1"}, nil, CaptureNever)
		g.Expect(err).To(HaveOccurred())
	})
}
