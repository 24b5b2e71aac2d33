package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/MixOS/backend/internal/domain/environment"
	"github.com/GriffinCanCode/MixOS/backend/internal/shared/apperr"
)

var errRetired = errors.New("supervisor retired")

type opKind string

const (
	opStart    opKind = "start"
	opStop     opKind = "stop"
	opDestroy  opKind = "destroy"
	opShutdown opKind = "shutdown"
	opExit     opKind = "exit"
)

type op struct {
	kind  opKind
	gen   uint64 // opExit: generation of the exited process
	reply chan result
}

type result struct {
	env environment.Environment
	err error
}

// supervisor is the single writer for one environment's status, pid and
// process handle.
type supervisor struct {
	id   string
	m    *Manager
	ops  chan op
	quit chan struct{}
	log  *zap.Logger

	// owned by run
	proc *process
	gen  uint64
}

func newSupervisor(m *Manager, id string) *supervisor {
	return &supervisor{
		id:   id,
		m:    m,
		ops:  make(chan op),
		quit: make(chan struct{}),
		log:  m.logger.With(zap.String("environment", id)),
	}
}

// do submits an operation and waits for its result.
func (s *supervisor) do(ctx context.Context, kind opKind) (environment.Environment, error) {
	o := op{kind: kind, reply: make(chan result, 1)}

	select {
	case s.ops <- o:
	case <-s.quit:
		return environment.Environment{}, errRetired
	case <-ctx.Done():
		return environment.Environment{}, ctx.Err()
	}

	select {
	case r := <-o.reply:
		return r.env, r.err
	case <-ctx.Done():
		return environment.Environment{}, ctx.Err()
	}
}

func (s *supervisor) run() {
	defer s.m.wg.Done()

	for o := range s.ops {
		res, retire := s.handle(o)
		if o.reply != nil {
			o.reply <- res
		}
		if retire {
			s.m.forget(s)
			close(s.quit)
			return
		}
	}
}

// handle applies o and reports whether the supervisor should retire.
func (s *supervisor) handle(o op) (result, bool) {
	var r result
	switch o.kind {
	case opStart:
		r.env, r.err = s.start()
	case opStop:
		r.env, r.err = s.stop()
	case opDestroy:
		r.env, r.err = s.destroy()
		return r, true
	case opShutdown:
		r.env, r.err = s.stop()
		if apperr.Is(r.err, apperr.KindNotFound) {
			r.err = nil
		}
		return r, true
	case opExit:
		s.exited(o.gen)
		return r, false
	default:
		r.err = fmt.Errorf("unknown op %q", o.kind)
		return r, false
	}
	// The record is gone; nothing left to supervise.
	return r, apperr.Is(r.err, apperr.KindNotFound)
}

func (s *supervisor) start() (environment.Environment, error) {
	env, err := s.m.store.Get(s.id)
	if err != nil {
		return env, err
	}
	if s.proc != nil {
		return env, nil
	}

	launcher, ok := s.m.launchers[env.Kind]
	if !ok {
		s.m.metrics.RecordProcessStart(string(env.Kind), "unsupported")
		return env, apperr.Newf(apperr.KindUnsupportedKind, "start", s.id,
			"no backing process for kind %q", env.Kind)
	}

	env, err = s.m.store.Mutate(s.id, func(e *environment.Environment) error {
		e.Status = environment.StatusStarting
		e.LastError = ""
		e.PID = nil
		return nil
	})
	if err != nil {
		return env, err
	}
	s.m.publish(env, "starting")

	spec, err := launcher.Prepare(env)
	if err != nil {
		return s.failed(apperr.New(apperr.KindProcessSpawn, "start", s.id, err))
	}

	proc, err := spawn(spec, s.id, s.m.publisher)
	if err != nil {
		return s.failed(apperr.New(apperr.KindProcessSpawn, "start", s.id, err))
	}

	s.gen++
	proc.gen = s.gen
	s.proc = proc
	go s.watch(proc)

	env, err = s.m.store.Mutate(s.id, func(e *environment.Environment) error {
		pid := proc.pid
		e.Status = environment.StatusRunning
		e.PID = &pid
		return nil
	})
	if err != nil {
		// Record vanished underneath a live process.
		proc.terminate(s.m.stopGrace)
		s.proc = nil
		return env, err
	}

	s.m.metrics.RecordProcessStart(string(env.Kind), "ok")
	s.m.metrics.IncRunning()
	s.m.publish(env, fmt.Sprintf("running (pid %d)", proc.pid))
	s.log.Info("environment started",
		zap.String("kind", string(env.Kind)),
		zap.Int("pid", proc.pid),
		zap.String("path", spec.Path),
	)
	return env, nil
}

func (s *supervisor) failed(cause *apperr.Error) (environment.Environment, error) {
	env, err := s.m.store.Mutate(s.id, func(e *environment.Environment) error {
		e.Status = environment.StatusError
		e.LastError = cause.Error()
		e.PID = nil
		return nil
	})
	if err != nil {
		return env, err
	}

	s.m.metrics.RecordProcessStart(string(env.Kind), "error")
	s.m.publish(env, cause.Error())
	s.log.Error("environment failed to start", zap.Error(cause))
	return env, cause
}

// watch turns the process exit into a notice for the supervisor.
func (s *supervisor) watch(p *process) {
	<-p.done
	select {
	case s.ops <- op{kind: opExit, gen: p.gen}:
	case <-s.quit:
	}
}

// exited applies an exit notice if it concerns the bound process.
func (s *supervisor) exited(gen uint64) {
	if s.proc == nil || s.proc.gen != gen {
		return
	}
	p := s.proc
	s.proc = nil

	line := fmt.Sprintf("exited (code %d)", p.exitCode())
	env, err := s.m.store.Mutate(s.id, func(e *environment.Environment) error {
		e.Status = environment.StatusStopped
		e.PID = nil
		if p.err != nil {
			e.LastError = p.err.Error()
		}
		return nil
	})
	s.m.metrics.DecRunning()
	if err != nil {
		return
	}

	s.m.publish(env, line)
	s.log.Info("environment process exited", zap.Int("pid", p.pid), zap.Int("code", p.exitCode()))
}

func (s *supervisor) stop() (environment.Environment, error) {
	if s.proc != nil {
		p := s.proc
		s.proc = nil
		killed := p.terminate(s.m.stopGrace)
		s.m.metrics.DecRunning()
		s.log.Info("environment stopped", zap.Int("pid", p.pid), zap.Bool("killed", killed))
	}

	before, err := s.m.store.Get(s.id)
	if err != nil {
		return before, err
	}
	if before.Status == environment.StatusStopped && before.PID == nil {
		return before, nil
	}

	env, err := s.m.store.Mutate(s.id, func(e *environment.Environment) error {
		e.Status = environment.StatusStopped
		e.PID = nil
		return nil
	})
	if err != nil {
		return env, err
	}
	s.m.publish(env, "stopped")
	return env, nil
}

func (s *supervisor) destroy() (environment.Environment, error) {
	env, err := s.stop()
	if err != nil {
		return env, err
	}

	if launcher, ok := s.m.launchers[env.Kind]; ok {
		if c, ok := launcher.(Cleaner); ok {
			if err := c.Cleanup(env); err != nil {
				s.log.Warn("environment cleanup failed", zap.Error(err))
			}
		}
	}

	if err := s.m.store.Delete(s.id); err != nil {
		return env, err
	}
	s.log.Info("environment destroyed")
	return env, nil
}
