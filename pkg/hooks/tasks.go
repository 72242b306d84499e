package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethpandaops/election-coordinator/pkg/election"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// TasksHook enqueues every transition as an asynq task so downstream redis
// workers can react to leadership changes asynchronously.
type TasksHook struct {
	log    logrus.FieldLogger
	config *TasksConfig
	client *asynq.Client
}

func NewTasksHook(log logrus.FieldLogger, redisAddress string, config *TasksConfig) *TasksHook {
	addr := strings.TrimPrefix(redisAddress, "redis://")

	return &TasksHook{
		log:    log.WithField("hook", "tasks"),
		config: config,
		client: asynq.NewClient(asynq.RedisClientOpt{Addr: addr}),
	}
}

func (h *TasksHook) Name() string {
	return "tasks"
}

func (h *TasksHook) Fire(ctx context.Context, transition election.Transition) error {
	payload, err := json.Marshal(newTransitionPayload(transition))
	if err != nil {
		return fmt.Errorf("failed to encode transition: %w", err)
	}

	task := asynq.NewTask(h.config.TaskType, payload)

	info, err := h.client.EnqueueContext(ctx, task, asynq.Queue(h.config.Queue))
	if err != nil {
		return fmt.Errorf("failed to enqueue transition task: %w", err)
	}

	h.log.WithFields(logrus.Fields{
		"task_id": info.ID,
		"queue":   info.Queue,
		"to":      transition.To,
	}).Debug("Tasks hook enqueued transition")

	return nil
}

// Close releases the underlying asynq client.
func (h *TasksHook) Close() error {
	return h.client.Close()
}
