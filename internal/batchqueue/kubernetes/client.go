// Package kubernetes submits batches as batch/v1 Jobs and derives liveness
// from the Job's conditions.
package kubernetes

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"datahandler/internal/batchqueue"
	"datahandler/internal/config"
	"datahandler/internal/logging"
	"datahandler/internal/services"
)

const (
	labelApp      = "app"
	labelKind     = "datahandler/kind"
	appName       = "datahandler"
	configMount   = "/etc/datahandler"
	configFile    = "config.toml"
	configVolume  = "datahandler-config"
	containerName = "task"
)

// Client is a batchqueue.Client backed by a Kubernetes cluster.
type Client struct {
	client kubernetes.Interface
	cfg    config.Kubernetes
	logger *slog.Logger
}

// New connects using in-cluster credentials, falling back to the configured
// kubeconfig or the user's default kubeconfig.
func New(cfg config.Kubernetes, logger *slog.Logger) (*Client, error) {
	clientset, err := getKubernetesClient(cfg.KubeConfig)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "batchqueue", "kubernetes client", "", err)
	}
	return NewWithClient(clientset, cfg, logger), nil
}

// NewWithClient wraps an existing clientset.
func NewWithClient(client kubernetes.Interface, cfg config.Kubernetes, logger *slog.Logger) *Client {
	return &Client{
		client: client,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "batchqueue.kubernetes"),
	}
}

func getKubernetesClient(kubeconfig string) (kubernetes.Interface, error) {
	// First try in-cluster config (when running in k8s).
	restCfg, err := rest.InClusterConfig()
	if err == nil {
		return kubernetes.NewForConfig(restCfg)
	}

	if kubeconfig == "" {
		kubeconfig = clientcmd.RecommendedHomeFile
	}
	restCfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to get kubeconfig: %w", err)
	}
	return kubernetes.NewForConfig(restCfg)
}

// Submit creates one Job per group. The batch id is "namespace/name".
func (c *Client) Submit(ctx context.Context, kind batchqueue.Kind, args [][]int64, chunkSize int, chain bool) ([]batchqueue.Outcome, error) {
	groups := batchqueue.Partition(args, chunkSize)
	outcomes := make([]batchqueue.Outcome, 0, len(groups))
	for _, group := range groups {
		job, tasks := c.buildJob(kind, group, chain)
		created, err := c.client.BatchV1().Jobs(c.cfg.Namespace).Create(ctx, job, metav1.CreateOptions{})
		if err != nil {
			return outcomes, services.Wrap(services.ErrSubmission, "batchqueue", "create job", string(kind), err)
		}
		batchID := created.Namespace + "/" + created.Name
		c.logger.Debug("submitted kubernetes job",
			logging.String(logging.FieldSchedID, batchID),
			logging.String(logging.FieldTaskKind, string(kind)),
			logging.Int("tasks", len(tasks)),
		)
		outcomes = append(outcomes, batchqueue.Outcome{BatchID: batchID, Tasks: tasks})
	}
	return outcomes, nil
}

func (c *Client) buildJob(kind batchqueue.Kind, group [][]int64, chain bool) (*batchv1.Job, []batchqueue.TaskRef) {
	batchUUID := uuid.NewString()
	name := fmt.Sprintf("dh-%s-%s", strings.ReplaceAll(string(kind), "_", "-"), batchUUID[:8])

	command := append([]string(nil), c.cfg.Command...)
	if c.cfg.ConfigFileSecret != "" {
		command = append(command, "--config", configMount+"/"+configFile)
	}
	command = append(command, string(kind))
	if chain {
		command = append(command, "--chain")
	}
	tasks := make([]batchqueue.TaskRef, 0, len(group))
	for i, a := range group {
		tasks = append(tasks, batchqueue.TaskRef{ID: fmt.Sprintf("%s-%d", name, i), Args: append([]int64(nil), a...)})
		command = append(command, batchqueue.FormatArgs(a))
	}

	labels := map[string]string{labelApp: appName, labelKind: string(kind)}
	backoffLimit := int32(0)
	container := corev1.Container{
		Name:    containerName,
		Image:   c.cfg.Image,
		Command: command,
	}
	podSpec := corev1.PodSpec{
		RestartPolicy:      corev1.RestartPolicyNever,
		ServiceAccountName: c.cfg.ServiceAccount,
		Containers:         []corev1.Container{container},
	}
	if c.cfg.ConfigFileSecret != "" {
		podSpec.Volumes = []corev1.Volume{{
			Name: configVolume,
			VolumeSource: corev1.VolumeSource{
				Secret: &corev1.SecretVolumeSource{SecretName: c.cfg.ConfigFileSecret},
			},
		}}
		podSpec.Containers[0].VolumeMounts = []corev1.VolumeMount{{
			Name:      configVolume,
			MountPath: configMount,
			ReadOnly:  true,
		}}
	}

	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: c.cfg.Namespace,
			Labels:    labels,
		},
		Spec: batchv1.JobSpec{
			BackoffLimit: &backoffLimit,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec:       podSpec,
			},
		},
	}
	if c.cfg.TTLSeconds > 0 {
		ttl := int32(c.cfg.TTLSeconds)
		job.Spec.TTLSecondsAfterFinished = &ttl
	}
	if c.cfg.ActiveDeadlineSecs > 0 {
		deadline := int64(c.cfg.ActiveDeadlineSecs)
		job.Spec.ActiveDeadlineSeconds = &deadline
	}
	return job, tasks
}

// IsAlive reports false once the Job is gone or carries a Complete or Failed
// condition.
func (c *Client) IsAlive(ctx context.Context, batchID string) (bool, error) {
	namespace, name, ok := strings.Cut(batchID, "/")
	if !ok {
		namespace, name = c.cfg.Namespace, batchID
	}
	job, err := c.client.BatchV1().Jobs(namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, services.Wrap(services.ErrTransient, "batchqueue", "get job", batchID, err)
	}
	return !jobFinished(job), nil
}

func jobFinished(job *batchv1.Job) bool {
	for _, cond := range job.Status.Conditions {
		if cond.Status != corev1.ConditionTrue {
			continue
		}
		if cond.Type == batchv1.JobComplete || cond.Type == batchv1.JobFailed {
			return true
		}
	}
	return false
}
