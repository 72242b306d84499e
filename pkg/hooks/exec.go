package hooks

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/ethpandaops/election-coordinator/pkg/election"
	"github.com/sirupsen/logrus"
)

// ExecHook runs a configured command on every transition. The transition is
// passed through the environment so the command can react to leadership
// changes (restart a dependent process, flip a readiness file, etc).
type ExecHook struct {
	log    logrus.FieldLogger
	config *ExecConfig
}

func NewExecHook(log logrus.FieldLogger, config *ExecConfig) *ExecHook {
	return &ExecHook{
		log:    log.WithField("hook", "exec"),
		config: config,
	}
}

func (h *ExecHook) Name() string {
	return "exec"
}

func (h *ExecHook) Fire(ctx context.Context, transition election.Transition) error {
	execCtx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, h.config.Command, h.config.Args...)
	cmd.Env = append(os.Environ(),
		"ELECTION_KEY="+transition.Key,
		"ELECTION_NODE_ID="+transition.NodeID,
		"ELECTION_STATE="+string(transition.To),
		"ELECTION_PREVIOUS_STATE="+string(transition.From),
		"ELECTION_TERM="+strconv.FormatUint(transition.Term, 10),
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("command %q failed: %w (output: %s)",
			h.config.Command, err, strings.TrimSpace(string(output)))
	}

	h.log.WithFields(logrus.Fields{
		"command": h.config.Command,
		"to":      transition.To,
	}).Debug("Exec hook completed")

	return nil
}
