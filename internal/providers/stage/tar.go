package stage

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

// runTar extracts artifact into dir with the tar binary. It returns the
// tail of tar's combined output for diagnostics.
func (s *Stager) runTar(ctx context.Context, kind Kind, artifact, dir string) (string, error) {
	args := append(tarFlags(kind), artifact, "-C", dir)

	tail := newTailBuffer(diagnosticTail)
	cmd := exec.CommandContext(ctx, s.cfg.TarBin, args...)
	cmd.Stdout = tail
	cmd.Stderr = tail
	// Grandchildren holding the pipes open must not outlive the kill.
	cmd.WaitDelay = time.Second

	if err := cmd.Run(); err != nil {
		return tail.String(), fmt.Errorf("%s exited: %w", s.cfg.TarBin, err)
	}
	return tail.String(), nil
}
