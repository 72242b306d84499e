// Package hooks notifies dependent processes about leadership transitions.
package hooks

import (
	"context"
	"time"

	"github.com/ethpandaops/election-coordinator/pkg/common"
	"github.com/ethpandaops/election-coordinator/pkg/election"
	"github.com/sirupsen/logrus"
)

// Hook reacts to a single state transition. Fire is invoked synchronously
// from the election loop; a failing hook is logged and counted but never
// blocks the state machine.
type Hook interface {
	Name() string
	Fire(ctx context.Context, transition election.Transition) error
}

// transitionPayload is the JSON document sent by the webhook and tasks hooks.
type transitionPayload struct {
	Key    string    `json:"key"`
	NodeID string    `json:"nodeId"`
	From   string    `json:"from"`
	To     string    `json:"to"`
	Term   uint64    `json:"term"`
	At     time.Time `json:"at"`
}

func newTransitionPayload(t election.Transition) transitionPayload {
	return transitionPayload{
		Key:    t.Key,
		NodeID: t.NodeID,
		From:   string(t.From),
		To:     string(t.To),
		Term:   t.Term,
		At:     t.At,
	}
}

// Runner fans transitions out to every registered hook.
type Runner struct {
	log   logrus.FieldLogger
	hooks []Hook
}

func NewRunner(log logrus.FieldLogger, hooks ...Hook) *Runner {
	return &Runner{
		log:   log.WithField("component", "hooks"),
		hooks: hooks,
	}
}

// Register appends a hook. Not safe to call after the election has started.
func (r *Runner) Register(hook Hook) {
	r.hooks = append(r.hooks, hook)
}

// Callback adapts the runner to the elector's transition callback.
func (r *Runner) Callback() election.TransitionCallback {
	return func(ctx context.Context, transition election.Transition) {
		for _, hook := range r.hooks {
			start := time.Now()

			err := hook.Fire(ctx, transition)

			common.HookDuration.WithLabelValues(transition.Key, hook.Name()).Observe(time.Since(start).Seconds())

			if err != nil {
				r.log.WithError(err).WithFields(logrus.Fields{
					"hook": hook.Name(),
					"to":   transition.To,
				}).Error("Notification hook failed")

				common.HookInvocations.WithLabelValues(transition.Key, hook.Name(), "error").Inc()

				continue
			}

			common.HookInvocations.WithLabelValues(transition.Key, hook.Name(), "success").Inc()
		}
	}
}

// LogHook writes a structured log line for every transition. Leadership
// changes log at info, candidate churn at debug.
type LogHook struct {
	log logrus.FieldLogger
}

func NewLogHook(log logrus.FieldLogger) *LogHook {
	return &LogHook{log: log.WithField("hook", "log")}
}

func (h *LogHook) Name() string {
	return "log"
}

func (h *LogHook) Fire(_ context.Context, transition election.Transition) error {
	entry := h.log.WithFields(logrus.Fields{
		"key":  transition.Key,
		"from": transition.From,
		"to":   transition.To,
		"term": transition.Term,
	})

	if transition.To == election.StateLeader || transition.From == election.StateLeader {
		entry.Info("Leadership transition")
	} else {
		entry.Debug("State transition")
	}

	return nil
}
