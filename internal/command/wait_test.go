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
	"errors"
	"testing"
	"time"

	. "github.com/onsi/gomega"
)

func quietWaiter(interval time.Duration, maxIterations int) *Waiter {
	w := NewWaiter(interval, maxIterations)
	w.NewProgress = func() Progress { return NoProgress{} }
	return w
}

func Test_Waiter(t *testing.T) {
	t.Run("returns the final status once the check is done", func(t *testing.T) {
		g := NewWithT(t)
		calls := 0
		status, err := quietWaiter(time.Millisecond, 10).Wait(func(previous string) (string, bool) {
			calls++
			if calls == 3 {
				return "done", true
			}
			return "working", false
		})
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(status).To(Equal("done"))
		g.Expect(calls).To(Equal(3))
	})

	t.Run("keeps the previous status when the check returns empty", func(t *testing.T) {
		g := NewWithT(t)
		calls := 0
		status, err := quietWaiter(time.Millisecond, 10).Wait(func(previous string) (string, bool) {
			calls++
			if calls == 1 {
				return "first", false
			}
			g.Expect(previous).To(Equal("first"))
			return "", true
		})
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(status).To(Equal("first"))
	})

	t.Run("times out after the iteration budget", func(t *testing.T) {
		g := NewWithT(t)
		calls := 0
		_, err := quietWaiter(time.Millisecond, 3).Wait(func(previous string) (string, bool) {
			calls++
			return previous, false
		})
		g.Expect(err).To(HaveOccurred())
		g.Expect(calls).To(Equal(3))

		var timeoutErr *TimeoutError
		g.Expect(errors.As(err, &timeoutErr)).To(BeTrue())
		g.Expect(timeoutErr.Iterations).To(Equal(3))
	})

	t.Run("non-positive budget falls back to defaults", func(t *testing.T) {
		g := NewWithT(t)
		w := NewWaiter(0, 0)
		g.Expect(w.Interval).To(Equal(DefaultWaitInterval))
		g.Expect(w.MaxIterations).To(Equal(DefaultWaitMaxIterations))
	})
}
