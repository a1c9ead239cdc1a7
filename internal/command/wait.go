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
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
)

const (
	// DefaultWaitInterval is the pause between readiness checks.
	DefaultWaitInterval = 3 * time.Second

	// DefaultWaitMaxIterations bounds the readiness polling loop,
	// giving a 300s ceiling with the default interval.
	DefaultWaitMaxIterations = 100
)

// CheckFunc inspects the awaited condition. It receives the previous
// status line and returns the new one, or the previous status to keep
// it. done terminates the wait successfully.
type CheckFunc func(previous string) (status string, done bool)

// TimeoutError reports a readiness wait that exhausted its iteration
// budget without the condition being satisfied.
type TimeoutError struct {
	Iterations int
	Interval   time.Duration
	LastStatus string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %d iterations (%s), last status: %q",
		e.Iterations, time.Duration(e.Iterations)*e.Interval, e.LastStatus)
}

// Progress displays the latest status line while a wait is in flight.
// It is display-only and never influences termination.
type Progress interface {
	Update(status string)
	Stop()
}

// NoProgress suppresses progress display.
type NoProgress struct{}

func (NoProgress) Update(string) {}
func (NoProgress) Stop()         {}

type spinnerProgress struct {
	s *spinner.Spinner
}

func (p *spinnerProgress) Update(status string) {
	if status != "" {
		p.s.Suffix = " " + status
	}
}

func (p *spinnerProgress) Stop() {
	p.s.Stop()
}

// StartSpinner starts a terminal spinner used as the default wait
// progress indicator.
func StartSpinner() Progress {
	s := spinner.New(spinner.CharSets[11], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Start()
	return &spinnerProgress{s: s}
}

// Waiter is a bounded-time polling loop over a CheckFunc.
//
// There is no cancellation beyond the iteration budget; callers wanting
// early cancellation must make the CheckFunc observe an external signal.
type Waiter struct {
	Interval      time.Duration
	MaxIterations int

	// NewProgress constructs the progress indicator for one wait.
	// Defaults to StartSpinner.
	NewProgress func() Progress
}

// NewWaiter returns a Waiter with the given budget, falling back to the
// defaults for non-positive values.
func NewWaiter(interval time.Duration, maxIterations int) *Waiter {
	if interval <= 0 {
		interval = DefaultWaitInterval
	}
	if maxIterations <= 0 {
		maxIterations = DefaultWaitMaxIterations
	}
	return &Waiter{Interval: interval, MaxIterations: maxIterations}
}

// Wait polls check every interval until it reports done, returning the
// final status. A *TimeoutError is returned once MaxIterations elapse.
// Between checks the progress indicator is refreshed at half-interval,
// which does not affect termination.
func (w *Waiter) Wait(check CheckFunc) (string, error) {
	newProgress := w.NewProgress
	if newProgress == nil {
		newProgress = StartSpinner
	}
	progress := newProgress()
	defer progress.Stop()

	status := ""
	for i := 0; i < w.MaxIterations; i++ {
		next, done := check(status)
		if next != "" {
			status = next
		}
		if done {
			return status, nil
		}
		progress.Update(status)

		half := w.Interval / 2
		time.Sleep(half)
		progress.Update(status)
		time.Sleep(w.Interval - half)
	}

	return status, &TimeoutError{
		Iterations: w.MaxIterations,
		Interval:   w.Interval,
		LastStatus: status,
	}
}
