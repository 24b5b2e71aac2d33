package stage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/charlievieth/fastwalk"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/MixOS/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/MixOS/backend/internal/shared/apperr"
)

// Extraction modes.
const (
	ModeTar    = "tar"
	ModeNative = "native"
)

// stagingSuffix marks an extraction in progress next to its destination.
const stagingSuffix = ".staging"

// Config holds extraction settings.
type Config struct {
	Mode    string
	Timeout time.Duration
	TarBin  string
}

// DefaultConfig extracts with the system tar within ten minutes.
func DefaultConfig() Config {
	return Config{
		Mode:    ModeTar,
		Timeout: 10 * time.Minute,
		TarBin:  "tar",
	}
}

// Request describes one artifact to stage.
type Request struct {
	ID       string // component identifier, used in errors and logs
	Artifact string
	Dest     string
	Extract  bool
}

// Result describes a staged tree.
type Result struct {
	Path     string
	Files    int
	Bytes    int64
	Kind     Kind
	Skipped  bool
	Duration time.Duration
}

// Stager unpacks or copies artifacts into their staging directories.
type Stager struct {
	cfg     Config
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// New creates a stager. logger and metrics may be nil.
func New(cfg Config, logger *zap.Logger, metrics *monitoring.Metrics) *Stager {
	def := DefaultConfig()
	if cfg.Mode == "" {
		cfg.Mode = def.Mode
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.TarBin == "" {
		cfg.TarBin = def.TarBin
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stager{cfg: cfg, logger: logger, metrics: metrics}
}

// IsStaged reports whether dest holds a completed staging.
func (s *Stager) IsStaged(dest string) bool {
	info, err := os.Stat(dest)
	return err == nil && info.IsDir()
}

// Stage extracts (or copies) req.Artifact into req.Dest. Work happens in a
// sibling ".staging" directory that is renamed onto Dest when complete.
func (s *Stager) Stage(ctx context.Context, req Request) (*Result, error) {
	if s.IsStaged(req.Dest) {
		files, size, err := measure(req.Dest)
		if err != nil {
			return nil, apperr.New(apperr.KindStaging, "stage", req.ID, err)
		}
		return &Result{Path: req.Dest, Files: files, Bytes: size, Skipped: true}, nil
	}

	if _, err := os.Stat(req.Artifact); err != nil {
		return nil, apperr.Newf(apperr.KindStaging, "stage", req.ID, "artifact unavailable: %w", err)
	}

	tmp := req.Dest + stagingSuffix
	if err := os.RemoveAll(tmp); err != nil {
		return nil, apperr.New(apperr.KindStaging, "stage", req.ID, err)
	}
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return nil, apperr.New(apperr.KindStaging, "stage", req.ID, err)
	}

	sctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	timer := monitoring.NewTimer()
	mode := s.cfg.Mode
	kind := KindUnknown
	var err error

	if !req.Extract {
		mode = "copy"
		err = copyFile(req.Artifact, filepath.Join(tmp, filepath.Base(req.Artifact)))
		if err != nil {
			err = apperr.New(apperr.KindStaging, "stage", req.ID, err)
		}
	} else {
		kind = DetectKind(req.Artifact)
		if kind == KindUnknown {
			err = apperr.Newf(apperr.KindStaging, "stage", req.ID,
				"unrecognised archive format: %s", filepath.Base(req.Artifact))
		} else {
			err = s.extract(ctx, sctx, req.ID, kind, req.Artifact, tmp)
		}
	}

	if err != nil {
		_ = os.RemoveAll(tmp)
		s.metrics.RecordStage(mode, "failure", timer.Elapsed())
		s.logger.Error("staging failed",
			zap.String("component", req.ID),
			zap.String("artifact", req.Artifact),
			zap.Error(err),
		)
		return nil, err
	}

	if err := os.Rename(tmp, req.Dest); err != nil {
		_ = os.RemoveAll(tmp)
		return nil, apperr.New(apperr.KindStaging, "stage", req.ID, err)
	}

	files, size, err := measure(req.Dest)
	if err != nil {
		return nil, apperr.New(apperr.KindStaging, "stage", req.ID, err)
	}

	elapsed := timer.Elapsed()
	s.metrics.RecordStage(mode, "success", elapsed)
	s.logger.Info("component staged",
		zap.String("component", req.ID),
		zap.String("path", req.Dest),
		zap.String("mode", mode),
		zap.Int("files", files),
		zap.Int64("bytes", size),
		zap.Duration("duration", elapsed),
	)

	return &Result{
		Path:     req.Dest,
		Files:    files,
		Bytes:    size,
		Kind:     kind,
		Duration: elapsed,
	}, nil
}

// extract dispatches to the configured extractor. parent is the caller's
// context and sctx the one bounded by the staging timeout.
func (s *Stager) extract(parent, sctx context.Context, id string, kind Kind, artifact, dir string) error {
	var (
		err  error
		diag string
	)
	if s.cfg.Mode == ModeNative && kind != KindXz {
		err = extractNative(sctx, kind, artifact, dir)
	} else {
		diag, err = s.runTar(sctx, kind, artifact, dir)
	}
	if err == nil {
		return nil
	}

	var e *apperr.Error
	switch {
	case parent.Err() != nil:
		e = apperr.FromContext("stage", id, parent.Err())
	case errors.Is(sctx.Err(), context.DeadlineExceeded):
		e = apperr.Newf(apperr.KindTimeout, "stage", id, "staging timed out after %s", s.cfg.Timeout)
	default:
		e = apperr.New(apperr.KindStaging, "stage", id, err)
	}
	e.Diagnostics = diag
	return e
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// measure counts regular files and their total size under root.
func measure(root string) (int, int64, error) {
	var files, size atomic.Int64

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files.Add(1)
		size.Add(info.Size())
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("measure %s: %w", root, err)
	}
	return int(files.Load()), size.Load(), nil
}
