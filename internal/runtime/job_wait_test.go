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

package runtime

import (
	"testing"

	"github.com/fluxcd/cli-utils/pkg/kstatus/status"
	. "github.com/onsi/gomega"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func upgradeJob(conditions ...batchv1.JobCondition) *batchv1.Job {
	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name: "my-app-upgrade-abc1234",
		},
		Status: batchv1.JobStatus{
			Conditions: conditions,
		},
	}
}

func jobStatus(t *testing.T, job *batchv1.Job) *status.Result {
	t.Helper()
	g := NewWithT(t)

	us, err := ToUnstructured(job)
	g.Expect(err).ToNot(HaveOccurred())
	result, err := jobConditions(us)
	g.Expect(err).ToNot(HaveOccurred())
	return result
}

func Test_jobConditions(t *testing.T) {
	t.Run("a job without conditions is in progress", func(t *testing.T) {
		g := NewWithT(t)
		result := jobStatus(t, upgradeJob())
		g.Expect(result.Status).To(Equal(status.InProgressStatus))
	})

	t.Run("a completed job is current", func(t *testing.T) {
		g := NewWithT(t)
		result := jobStatus(t, upgradeJob(batchv1.JobCondition{
			Type:   batchv1.JobComplete,
			Status: corev1.ConditionTrue,
		}))
		g.Expect(result.Status).To(Equal(status.CurrentStatus))
	})

	t.Run("a failed job stalls instead of staying in progress", func(t *testing.T) {
		g := NewWithT(t)
		result := jobStatus(t, upgradeJob(batchv1.JobCondition{
			Type:    batchv1.JobFailed,
			Status:  corev1.ConditionTrue,
			Message: "BackoffLimitExceeded",
		}))
		g.Expect(result.Status).To(Equal(status.FailedStatus))
		g.Expect(result.Message).To(ContainSubstring("BackoffLimitExceeded"))
		g.Expect(result.Conditions).To(HaveLen(1))
		g.Expect(result.Conditions[0].Type).To(Equal(status.ConditionStalled))
	})

	t.Run("a false condition does not settle the job", func(t *testing.T) {
		g := NewWithT(t)
		result := jobStatus(t, upgradeJob(batchv1.JobCondition{
			Type:   batchv1.JobFailed,
			Status: corev1.ConditionFalse,
		}))
		g.Expect(result.Status).To(Equal(status.InProgressStatus))
	})
}
