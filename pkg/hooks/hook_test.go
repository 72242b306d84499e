package hooks_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/ethpandaops/election-coordinator/pkg/election"
	"github.com/ethpandaops/election-coordinator/pkg/hooks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHook struct {
	name  string
	fired *[]string
	err   error
}

func (h *recordingHook) Name() string {
	return h.name
}

func (h *recordingHook) Fire(_ context.Context, _ election.Transition) error {
	*h.fired = append(*h.fired, h.name)

	return h.err
}

func TestRunner_InvokesHooksInOrder(t *testing.T) {
	var fired []string

	runner := hooks.NewRunner(testLogger(),
		&recordingHook{name: "first", fired: &fired},
		&recordingHook{name: "second", fired: &fired},
	)
	runner.Register(&recordingHook{name: "third", fired: &fired})

	runner.Callback()(context.Background(), testTransition())

	assert.Equal(t, []string{"first", "second", "third"}, fired)
}

func TestRunner_FailingHookDoesNotStopOthers(t *testing.T) {
	var fired []string

	runner := hooks.NewRunner(testLogger(),
		&recordingHook{name: "failing", fired: &fired, err: fmt.Errorf("boom")},
		&recordingHook{name: "after", fired: &fired},
	)

	runner.Callback()(context.Background(), testTransition())

	assert.Equal(t, []string{"failing", "after"}, fired)
}

func TestLogHook_NeverFails(t *testing.T) {
	hook := hooks.NewLogHook(testLogger())

	require.Equal(t, "log", hook.Name())
	require.NoError(t, hook.Fire(context.Background(), testTransition()))

	demotion := testTransition()
	demotion.From = election.StateLeader
	demotion.To = election.StateFollower

	require.NoError(t, hook.Fire(context.Background(), demotion))
}
