package engine

import (
	"os/exec"

	"remapd/internal/logging"
)

// Runner launches shell commands for authorized shell buttons. Tests
// substitute a recorder so no process is ever spawned.
type Runner interface {
	Run(command string) error
}

// execRunner spawns "sh -c command" detached from the dispatch loop.
type execRunner struct {
	log *logging.Logger
}

// NewExecRunner returns the production runner.
func NewExecRunner(log *logging.Logger) Runner {
	return &execRunner{log: log}
}

func (r *execRunner) Run(command string) error {
	cmd := exec.Command("sh", "-c", command)
	if err := cmd.Start(); err != nil {
		return err
	}
	// Reap in the background; the dispatch loop never waits on a child.
	go func() {
		if err := cmd.Wait(); err != nil {
			r.log.Warn("shell command exited with error", "error", err)
		}
	}()
	return nil
}
