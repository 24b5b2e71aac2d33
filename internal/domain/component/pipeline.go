package component

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/GriffinCanCode/MixOS/backend/internal/domain/events"
	"github.com/GriffinCanCode/MixOS/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/MixOS/backend/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/MixOS/backend/internal/providers/fetch"
	"github.com/GriffinCanCode/MixOS/backend/internal/providers/stage"
	"github.com/GriffinCanCode/MixOS/backend/internal/shared/apperr"
)

// ErrClosed is returned for background work requested after Close.
var ErrClosed = errors.New("pipeline closed")

// Fetcher downloads an artifact to a local path.
type Fetcher interface {
	Fetch(ctx context.Context, url, dest string, progress fetch.ProgressFunc) (*fetch.Result, error)
}

// Stager turns an artifact into a staged tree.
type Stager interface {
	Stage(ctx context.Context, req stage.Request) (*stage.Result, error)
	IsStaged(dest string) bool
}

// Pipeline drives fetch then stage for catalog components.
type Pipeline struct {
	catalog *Catalog
	fetcher Fetcher
	stager  Stager
	tracker *Tracker
	logger  *zap.Logger
	metrics *monitoring.Metrics

	group singleflight.Group

	// background work started by Trigger and RunAsync
	ctx    context.Context
	cancel context.CancelFunc
	bgMu   sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewPipeline wires a pipeline. publisher, logger and metrics may be nil.
func NewPipeline(catalog *Catalog, fetcher Fetcher, stager Stager, publisher events.Publisher,
	logger *zap.Logger, metrics *monitoring.Metrics) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}

	ids := make([]string, 0, catalog.Len())
	for _, comp := range catalog.Components() {
		ids = append(ids, comp.ID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		catalog: catalog,
		fetcher: fetcher,
		stager:  stager,
		tracker: NewTracker(ids, publisher, metrics),
		logger:  logger,
		metrics: metrics,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Catalog returns the component catalog.
func (p *Pipeline) Catalog() *Catalog {
	return p.catalog
}

// Run acquires ids in order, or the whole catalog when ids is empty. An
// optional component's failure is recorded and the run continues; a
// required component's failure stops the run, marks the remaining
// components skipped and is returned.
func (p *Pipeline) Run(ctx context.Context, ids []string) (*Report, error) {
	targets, err := p.resolve(ids)
	if err != nil {
		return nil, err
	}

	report := &Report{Outcomes: make([]Outcome, 0, len(targets))}
	for i, comp := range targets {
		if err := ctx.Err(); err != nil {
			p.skipRest(report, targets[i:])
			return report, apperr.FromContext("run", comp.ID, err)
		}

		out, err := p.Acquire(ctx, comp.ID)
		if err == nil {
			report.add(*out)
			continue
		}

		report.add(Outcome{ID: comp.ID, Result: ResultFailed, Error: err.Error()})
		if comp.Optional {
			p.logger.Warn("optional component failed, continuing",
				zap.String("component", comp.ID),
				zap.Error(err),
			)
			continue
		}

		p.logger.Error("required component failed, aborting run",
			zap.String("component", comp.ID),
			zap.Int("skipped", len(targets)-i-1),
			zap.Error(err),
		)
		p.skipRest(report, targets[i+1:])
		return report, err
	}

	p.logger.Info("pipeline run complete",
		zap.Int("ready", report.Count(ResultReady)),
		zap.Int("cached", report.Count(ResultCached)),
		zap.Int("failed", report.Count(ResultFailed)),
	)
	return report, nil
}

func (p *Pipeline) skipRest(report *Report, rest []Component) {
	for _, comp := range rest {
		report.add(Outcome{ID: comp.ID, Result: ResultSkipped})
	}
}

func (p *Pipeline) resolve(ids []string) ([]Component, error) {
	if len(ids) == 0 {
		return p.catalog.Components(), nil
	}
	out := make([]Component, 0, len(ids))
	for _, id := range ids {
		comp, ok := p.catalog.Get(id)
		if !ok {
			return nil, apperr.NotFound("run", id)
		}
		out = append(out, comp)
	}
	return out, nil
}

// Acquire fetches and stages a single component. Concurrent calls for the
// same id share one acquisition.
func (p *Pipeline) Acquire(ctx context.Context, id string) (*Outcome, error) {
	comp, ok := p.catalog.Get(id)
	if !ok {
		return nil, apperr.NotFound("acquire", id)
	}

	v, err, shared := p.group.Do(id, func() (interface{}, error) {
		return p.acquire(ctx, comp)
	})
	if shared {
		p.logger.Debug("joined in-flight acquisition", zap.String("component", id))
	}
	if err != nil {
		return nil, err
	}
	out := *v.(*Outcome)
	return &out, nil
}

func (p *Pipeline) acquire(ctx context.Context, comp Component) (*Outcome, error) {
	dest := p.catalog.StagePath(comp)
	log := p.logger.With(zap.String("component", comp.ID))
	if rid := tracing.RequestID(ctx); rid != "" {
		log = log.With(zap.String("request_id", rid))
	}

	if p.stager.IsStaged(dest) {
		p.tracker.Ready(comp.ID, "already staged")
		p.metrics.RecordAcquisition(comp.ID, string(ResultCached))
		log.Debug("component already staged", zap.String("path", dest))
		return &Outcome{ID: comp.ID, Result: ResultCached, Path: dest}, nil
	}

	p.tracker.Begin(comp.ID)
	artifact := p.catalog.ArtifactPath(comp)
	log.Info("fetching component", zap.String("url", comp.URL), zap.String("artifact", artifact))

	_, err := p.fetcher.Fetch(ctx, comp.URL, artifact, func(written, total int64) {
		p.tracker.Fetching(comp.ID, written, total)
	})
	if err != nil {
		err = apperr.New(apperr.KindOf(err), "acquire", comp.ID, err)
		p.fail(comp.ID, err)
		return nil, err
	}

	p.tracker.Staging(comp.ID)
	res, err := p.stager.Stage(ctx, stage.Request{
		ID:       comp.ID,
		Artifact: artifact,
		Dest:     dest,
		Extract:  comp.Extract,
	})
	if err != nil {
		p.fail(comp.ID, err)
		return nil, err
	}

	p.tracker.Ready(comp.ID, "")
	p.metrics.RecordAcquisition(comp.ID, string(ResultReady))
	return &Outcome{
		ID:     comp.ID,
		Result: ResultReady,
		Path:   res.Path,
		Files:  res.Files,
		Bytes:  res.Bytes,
	}, nil
}

func (p *Pipeline) fail(id string, err error) {
	p.tracker.Failed(id, err)
	p.metrics.RecordAcquisition(id, string(ResultFailed))
}

// Trigger starts an asynchronous acquisition of id and returns its current
// status.
func (p *Pipeline) Trigger(ctx context.Context, id string) (Status, error) {
	if _, ok := p.catalog.Get(id); !ok {
		return Status{}, apperr.NotFound("trigger", id)
	}

	if !p.track() {
		return Status{}, apperr.New(apperr.KindCanceled, "trigger", id, ErrClosed)
	}
	bg := tracing.WithRequestID(p.ctx, tracing.RequestID(ctx))
	go func() {
		defer p.wg.Done()
		if _, err := p.Acquire(bg, id); err != nil {
			p.logger.Warn("triggered acquisition failed", zap.String("component", id), zap.Error(err))
		}
	}()

	status, _ := p.tracker.Status(id)
	return status, nil
}

// RunAsync validates ids and starts Run in the background.
func (p *Pipeline) RunAsync(ctx context.Context, ids []string) error {
	if _, err := p.resolve(ids); err != nil {
		return err
	}

	if !p.track() {
		return apperr.New(apperr.KindCanceled, "run", "", ErrClosed)
	}
	bg := tracing.WithRequestID(p.ctx, tracing.RequestID(ctx))
	go func() {
		defer p.wg.Done()
		if _, err := p.Run(bg, ids); err != nil {
			p.logger.Warn("background pipeline run failed", zap.Error(err))
		}
	}()
	return nil
}

// Status returns the progress of one component.
func (p *Pipeline) Status(id string) (Status, error) {
	status, ok := p.tracker.Status(id)
	if !ok {
		return Status{}, apperr.NotFound("status", id)
	}
	return status, nil
}

// Statuses returns the progress of every component in catalog order.
func (p *Pipeline) Statuses() []Status {
	return p.tracker.All()
}

// track registers one background goroutine unless the pipeline is closed.
func (p *Pipeline) track() bool {
	p.bgMu.Lock()
	defer p.bgMu.Unlock()
	if p.closed {
		return false
	}
	p.wg.Add(1)
	return true
}

// Close cancels background acquisitions and waits for them to finish.
// Later Trigger and RunAsync calls fail with ErrClosed.
func (p *Pipeline) Close() {
	p.bgMu.Lock()
	p.closed = true
	p.bgMu.Unlock()

	p.cancel()
	p.wg.Wait()
}
