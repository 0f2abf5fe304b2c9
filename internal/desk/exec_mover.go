package desk

import (
	"os/exec"

	"go.uber.org/zap"

	"github.com/danghamo/deskd/pkg/logger"
)

// ExecMover moves the desk by spawning the idasen CLI ("idasen <position>").
// The spawn is fire-and-forget: the controller's bookkeeping and nag timer
// must keep working even when the desk is unreachable, so spawn failures and
// nonzero exits are logged here and never surfaced to the caller.
type ExecMover struct {
	binary string
	logger *logger.Logger
}

// NewExecMover creates a mover that invokes the given binary
func NewExecMover(binary string, log *logger.Logger) *ExecMover {
	return &ExecMover{
		binary: binary,
		logger: log.WithComponent("exec-mover"),
	}
}

// Move spawns the CLI and returns without waiting for it to finish. The
// process is reaped in the background so failed moves still show up in the
// logs.
func (m *ExecMover) Move(position string) {
	cmd := exec.Command(m.binary, position)

	if err := cmd.Start(); err != nil {
		m.logger.Error("Failed to spawn desk mover",
			zap.String("binary", m.binary),
			zap.String("position", position),
			zap.Error(err))
		return
	}

	m.logger.Debug("Desk mover spawned",
		zap.String("position", position),
		zap.Int("pid", cmd.Process.Pid))

	go func() {
		if err := cmd.Wait(); err != nil {
			m.logger.Warn("Desk mover exited with error",
				zap.String("position", position),
				zap.Error(err))
		}
	}()
}
