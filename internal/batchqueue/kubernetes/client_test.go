package kubernetes

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"datahandler/internal/batchqueue"
	"datahandler/internal/config"
	"datahandler/internal/logging"
)

func newTestClient(t *testing.T) (*Client, *fake.Clientset) {
	t.Helper()
	fakeClient := fake.NewSimpleClientset()
	cfg := config.Kubernetes{
		Namespace:        "geo",
		Image:            "registry.local/datahandler:latest",
		Command:          []string{"datahandler", "task"},
		TTLSeconds:       600,
		ConfigFileSecret: "dh-config",
	}
	return NewWithClient(fakeClient, cfg, logging.NewNop()), fakeClient
}

func TestSubmitCreatesOneJobPerGroup(t *testing.T) {
	client, fakeClient := newTestClient(t)
	ctx := context.Background()

	outcomes, err := client.Submit(ctx, batchqueue.KindFetch, [][]int64{{1}, {2}, {3}}, 2, true)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Len(t, outcomes[0].Tasks, 2)
	assert.Len(t, outcomes[1].Tasks, 1)

	jobs, err := fakeClient.BatchV1().Jobs("geo").List(ctx, metav1.ListOptions{})
	require.NoError(t, err)
	require.Len(t, jobs.Items, 2)

	namespace, name, ok := strings.Cut(outcomes[0].BatchID, "/")
	require.True(t, ok)
	assert.Equal(t, "geo", namespace)

	job, err := fakeClient.BatchV1().Jobs("geo").Get(ctx, name, metav1.GetOptions{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(job.Name, "dh-fetch-"))
	assert.Equal(t, int32(0), *job.Spec.BackoffLimit)
	assert.Equal(t, int32(600), *job.Spec.TTLSecondsAfterFinished)
	assert.Equal(t, corev1.RestartPolicyNever, job.Spec.Template.Spec.RestartPolicy)

	container := job.Spec.Template.Spec.Containers[0]
	assert.Equal(t, []string{"datahandler", "task", "--config", "/etc/datahandler/config.toml", "fetch", "--chain", "1", "2"}, container.Command)
	require.Len(t, container.VolumeMounts, 1)
	assert.Equal(t, "dh-config", job.Spec.Template.Spec.Volumes[0].Secret.SecretName)
}

func TestIsAliveFollowsJobConditions(t *testing.T) {
	client, fakeClient := newTestClient(t)
	ctx := context.Background()

	outcomes, err := client.Submit(ctx, batchqueue.KindExportAndAggregate, [][]int64{{9, 0, 4}}, 1, false)
	require.NoError(t, err)
	batchID := outcomes[0].BatchID

	alive, err := client.IsAlive(ctx, batchID)
	require.NoError(t, err)
	assert.True(t, alive, "fresh job should be alive")

	_, name, _ := strings.Cut(batchID, "/")
	job, err := fakeClient.BatchV1().Jobs("geo").Get(ctx, name, metav1.GetOptions{})
	require.NoError(t, err)
	job.Status.Conditions = append(job.Status.Conditions, batchv1.JobCondition{
		Type:   batchv1.JobFailed,
		Status: corev1.ConditionTrue,
	})
	_, err = fakeClient.BatchV1().Jobs("geo").UpdateStatus(ctx, job, metav1.UpdateOptions{})
	require.NoError(t, err)

	alive, err = client.IsAlive(ctx, batchID)
	require.NoError(t, err)
	assert.False(t, alive, "failed job should be dead")

	alive, err = client.IsAlive(ctx, "geo/missing")
	require.NoError(t, err)
	assert.False(t, alive, "unknown job should be dead")
}
