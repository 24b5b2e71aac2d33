package lifecycle

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/GriffinCanCode/MixOS/backend/internal/domain/events"
)

const (
	// waitDelay bounds how long Wait keeps copying output after exit.
	waitDelay = 2 * time.Second
	// drainTimeout bounds reading a PTY after its process exits.
	drainTimeout = time.Second
)

// process is a spawned backing process. done is closed once the process
// has exited and its output has been flushed; err holds the exit status.
type process struct {
	cmd  *exec.Cmd
	pid  int
	gen  uint64
	done chan struct{}
	err  error
}

// spawn starts spec and begins streaming its output to pub.
func spawn(spec *Spec, envID string, pub events.Publisher) (*process, error) {
	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)

	p := &process{cmd: cmd, done: make(chan struct{})}
	if spec.PTY {
		return p, p.startPTY(envID, pub)
	}
	return p, p.startPipes(envID, pub)
}

func (p *process) startPipes(envID string, pub events.Publisher) error {
	stdout := newLineWriter(envID, events.OriginStdout, pub)
	stderr := newLineWriter(envID, events.OriginStderr, pub)

	p.cmd.Stdout = stdout
	p.cmd.Stderr = stderr
	p.cmd.WaitDelay = waitDelay
	// Own process group so stop reaches children too.
	p.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := p.cmd.Start(); err != nil {
		return err
	}
	p.pid = p.cmd.Process.Pid

	go func() {
		p.err = p.cmd.Wait()
		stdout.Flush()
		stderr.Flush()
		close(p.done)
	}()
	return nil
}

func (p *process) startPTY(envID string, pub events.Publisher) error {
	ptmx, err := pty.StartWithSize(p.cmd, &pty.Winsize{Rows: 24, Cols: 80})
	if err != nil {
		return err
	}
	p.pid = p.cmd.Process.Pid

	out := newLineWriter(envID, events.OriginStdout, pub)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		// Reads end with EIO once every holder of the tty is gone.
		_, _ = io.Copy(out, ptmx)
	}()

	go func() {
		p.err = p.cmd.Wait()
		select {
		case <-drained:
		case <-time.After(drainTimeout):
		}
		ptmx.Close()
		<-drained
		out.Flush()
		close(p.done)
	}()
	return nil
}

// signal delivers sig to the process group. A process that already exited
// is not an error.
func (p *process) signal(sig syscall.Signal) error {
	err := syscall.Kill(-p.pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

// terminate sends SIGTERM, waits up to grace, then SIGKILLs. It returns
// once the process has exited.
func (p *process) terminate(grace time.Duration) (killed bool) {
	select {
	case <-p.done:
		return false
	default:
	}

	_ = p.signal(syscall.SIGTERM)

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-p.done:
		return false
	case <-timer.C:
	}

	_ = p.signal(syscall.SIGKILL)
	<-p.done
	return true
}

// exitCode reports the exit code, or -1 when killed by a signal.
func (p *process) exitCode() int {
	if p.cmd.ProcessState == nil {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}
