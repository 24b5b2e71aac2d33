package component

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/MixOS/backend/internal/domain/events"
	"github.com/GriffinCanCode/MixOS/backend/internal/providers/fetch"
	"github.com/GriffinCanCode/MixOS/backend/internal/providers/stage"
	"github.com/GriffinCanCode/MixOS/backend/internal/shared/apperr"
	"github.com/GriffinCanCode/MixOS/backend/tests/helpers/mocks"
	"github.com/GriffinCanCode/MixOS/backend/tests/helpers/testutil"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	catalog, err := NewCatalog(t.TempDir(), []Component{
		{ID: "kernel", URL: "https://artifacts.test/linux.tar.xz", Extract: true},
		{ID: "busybox", URL: "https://artifacts.test/busybox.tar.bz2", Extract: true, Optional: true},
		{ID: "alpine", URL: "https://artifacts.test/alpine.tar.gz", Extract: true},
	})
	require.NoError(t, err)
	return catalog
}

func expectSuccess(f *mocks.MockFetcher, s *mocks.MockStager, catalog *Catalog, id string) {
	comp, _ := catalog.Get(id)
	artifact := catalog.ArtifactPath(comp)
	dest := catalog.StagePath(comp)

	f.On("Fetch", mock.Anything, comp.URL, artifact, mock.Anything).
		Return(&fetch.Result{Path: artifact, Bytes: 10, Attempts: 1}, nil).Once()
	s.On("Stage", mock.Anything, stage.Request{ID: id, Artifact: artifact, Dest: dest, Extract: comp.Extract}).
		Return(&stage.Result{Path: dest, Files: 3, Bytes: 30}, nil).Once()
}

func exhausted(url string) error {
	return apperr.New(apperr.KindTimeout, "fetch", url, fetch.ErrExhausted)
}

func TestRunContinuesPastOptionalFailure(t *testing.T) {
	catalog := testCatalog(t)
	fetcher := new(mocks.MockFetcher)
	stager := mocks.NewMockStager(t)

	expectSuccess(fetcher, stager, catalog, "kernel")
	expectSuccess(fetcher, stager, catalog, "alpine")
	busybox, _ := catalog.Get("busybox")
	fetcher.On("Fetch", mock.Anything, busybox.URL, mock.Anything, mock.Anything).
		Return(nil, exhausted(busybox.URL)).Once()

	p := NewPipeline(catalog, fetcher, stager, nil, nil, nil)
	report, err := p.Run(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 3)
	assert.Equal(t, ResultReady, report.Outcomes[0].Result)
	assert.Equal(t, ResultFailed, report.Outcomes[1].Result)
	assert.Contains(t, report.Outcomes[1].Error, "busybox")
	assert.Equal(t, ResultReady, report.Outcomes[2].Result)

	status, err := p.Status("busybox")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, status.State)

	status, err = p.Status("alpine")
	require.NoError(t, err)
	assert.Equal(t, StateReady, status.State)
	assert.Equal(t, 100, status.Progress)

	fetcher.AssertExpectations(t)
	stager.AssertExpectations(t)
}

func TestRunAbortsOnRequiredFailure(t *testing.T) {
	catalog := testCatalog(t)
	fetcher := new(mocks.MockFetcher)
	stager := mocks.NewMockStager(t)

	kernel, _ := catalog.Get("kernel")
	fetcher.On("Fetch", mock.Anything, kernel.URL, mock.Anything, mock.Anything).
		Return(nil, exhausted(kernel.URL)).Once()

	p := NewPipeline(catalog, fetcher, stager, nil, nil, nil)
	report, err := p.Run(context.Background(), nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, fetch.ErrExhausted))
	assert.Equal(t, apperr.KindTimeout, apperr.KindOf(err))
	assert.Equal(t, "kernel", apperr.SubjectOf(err))

	require.Len(t, report.Outcomes, 3)
	assert.Equal(t, ResultFailed, report.Outcomes[0].Result)
	assert.Equal(t, ResultSkipped, report.Outcomes[1].Result)
	assert.Equal(t, ResultSkipped, report.Outcomes[2].Result)

	fetcher.AssertNumberOfCalls(t, "Fetch", 1)
	stager.AssertNotCalled(t, "Stage", mock.Anything, mock.Anything)
}

func TestRunStagingFailureIsFailed(t *testing.T) {
	catalog := testCatalog(t)
	fetcher := new(mocks.MockFetcher)
	stager := mocks.NewMockStager(t)

	fetcher.On("Fetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&fetch.Result{}, nil)
	stager.On("Stage", mock.Anything, mock.Anything).
		Return(nil, apperr.Newf(apperr.KindStaging, "stage", "kernel", "tar exited: exit status 2"))

	p := NewPipeline(catalog, fetcher, stager, nil, nil, nil)
	_, err := p.Run(context.Background(), []string{"kernel"})

	require.Error(t, err)
	assert.Equal(t, apperr.KindStaging, apperr.KindOf(err))
	status, _ := p.Status("kernel")
	assert.Equal(t, StateFailed, status.State)
	assert.Equal(t, 90, status.Progress)
}

func TestRunSkipsStagedComponents(t *testing.T) {
	catalog := testCatalog(t)
	fetcher := new(mocks.MockFetcher)
	stager := new(mocks.MockStager)
	stager.On("IsStaged", mock.Anything).Return(true)

	p := NewPipeline(catalog, fetcher, stager, nil, nil, nil)
	report, err := p.Run(context.Background(), []string{"alpine", "kernel"})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Count(ResultCached))
	assert.Equal(t, "alpine", report.Outcomes[0].ID)
	fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRunUnknownComponent(t *testing.T) {
	p := NewPipeline(testCatalog(t), new(mocks.MockFetcher), mocks.NewMockStager(t), nil, nil, nil)

	_, err := p.Run(context.Background(), []string{"kernel", "floppy"})

	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Equal(t, "floppy", apperr.SubjectOf(err))
}

func TestAcquireSharesInFlightWork(t *testing.T) {
	catalog := testCatalog(t)
	fetcher := new(mocks.MockFetcher)
	stager := mocks.NewMockStager(t)

	release := make(chan time.Time)
	fetcher.On("Fetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		WaitUntil(release).
		Return(&fetch.Result{}, nil).Once()
	stager.On("Stage", mock.Anything, mock.Anything).Return(&stage.Result{Files: 1}, nil).Once()

	p := NewPipeline(catalog, fetcher, stager, nil, nil, nil)

	var wg sync.WaitGroup
	outcomes := make([]*Outcome, 4)
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := p.Acquire(context.Background(), "alpine")
			assert.NoError(t, err)
			outcomes[i] = out
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, out := range outcomes {
		require.NotNil(t, out)
		assert.Equal(t, ResultReady, out.Result)
	}
	fetcher.AssertNumberOfCalls(t, "Fetch", 1)
}

func TestProgressIsMonotonicAndPublished(t *testing.T) {
	catalog := testCatalog(t)
	fetcher := new(mocks.MockFetcher)
	stager := mocks.NewMockStager(t)

	fetcher.On("Fetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			progress := args.Get(3).(fetch.ProgressFunc)
			progress(50, 100)
			progress(40, 100) // retries restart the byte count
			progress(100, 100)
		}).
		Return(&fetch.Result{}, nil)
	stager.On("Stage", mock.Anything, mock.Anything).Return(&stage.Result{}, nil)

	broadcaster := events.NewBroadcaster(time.Second, nil, nil)
	sub := broadcaster.Subscribe(64, nil)
	defer sub.Close()

	p := NewPipeline(catalog, fetcher, stager, broadcaster, nil, nil)
	_, err := p.Acquire(context.Background(), "kernel")
	require.NoError(t, err)

	var seen []int
	var states []string
	for len(states) == 0 || states[len(states)-1] != string(StateReady) {
		select {
		case e := <-sub.Events():
			require.Equal(t, events.TypeProgress, e.Type)
			require.Equal(t, "kernel", e.ComponentID)
			seen = append(seen, *e.Progress)
			states = append(states, e.Status)
		case <-time.After(2 * time.Second):
			t.Fatalf("missing progress events, got %v", seen)
		}
	}

	assert.Equal(t, []int{0, 45, 90, 90, 100}, seen)
	assert.Equal(t, []string{"fetching", "fetching", "fetching", "staging", "ready"}, states)
}

func TestTriggerUnknownComponent(t *testing.T) {
	p := NewPipeline(testCatalog(t), new(mocks.MockFetcher), mocks.NewMockStager(t), nil, nil, nil)
	defer p.Close()

	_, err := p.Trigger(context.Background(), "floppy")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestPipelineEndToEnd(t *testing.T) {
	server := testutil.NewArtifactServer(t, map[string][]byte{
		"/alpine.tar.gz": testutil.TarGz(t, testutil.Files(map[string]string{
			"etc/os-release": "ID=alpine\n",
			"bin/busybox":    "busybox",
		})),
		"/busybox.wasm": []byte("\x00asm"),
	})

	dir := t.TempDir()
	catalog, err := NewCatalog(dir, []Component{
		{ID: "alpine", URL: server.URL + "/alpine.tar.gz", Extract: true},
		{ID: "broken", URL: server.URL + "/missing.tar.gz", Extract: true, Optional: true},
		{ID: "busybox-wasm", URL: server.URL + "/busybox.wasm", Optional: true, Entrypoint: "*.wasm"},
	})
	require.NoError(t, err)

	cfg := fetch.DefaultConfig()
	cfg.MaxAttempts = 2
	cfg.BackoffBase = 10 * time.Millisecond

	p := NewPipeline(catalog,
		fetch.New(cfg, nil, nil),
		stage.New(stage.DefaultConfig(), nil, nil),
		nil, nil, nil)
	defer p.Close()

	report, err := p.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Count(ResultReady))
	assert.Equal(t, 1, report.Count(ResultFailed))
	assert.Equal(t, 2, server.Hits("/missing.tar.gz"))

	alpine, ok := report.Find("alpine")
	require.True(t, ok)
	assert.Equal(t, 2, alpine.Files)
	assert.FileExists(t, filepath.Join(dir, "alpine", "etc", "os-release"))
	assert.FileExists(t, filepath.Join(dir, "alpine.tar.gz"))

	wasm, err := catalog.Locate("busybox-wasm")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "busybox-wasm", "busybox.wasm"), wasm)

	// a second run finds everything staged and performs no downloads
	before := server.Hits("/alpine.tar.gz")
	report, err = p.Run(context.Background(), []string{"alpine", "busybox-wasm"})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Count(ResultCached))
	assert.Equal(t, before, server.Hits("/alpine.tar.gz"))
}

func TestProbe(t *testing.T) {
	server := testutil.NewArtifactServer(t, map[string][]byte{
		"/alpine.tar.gz": []byte("0123456789"),
	})

	catalog, err := NewCatalog(t.TempDir(), []Component{
		{ID: "alpine", URL: server.URL + "/alpine.tar.gz"},
		{ID: "gone", URL: server.URL + "/gone.tar.gz"},
		{ID: "offline", URL: "http://127.0.0.1:1/none.tar.gz"},
	})
	require.NoError(t, err)

	prober := NewProber(catalog, time.Second, nil)

	res, err := prober.Probe(context.Background(), "alpine")
	require.NoError(t, err)
	assert.True(t, res.Reachable)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, int64(10), res.ContentLength)

	res, err = prober.Probe(context.Background(), "gone")
	require.NoError(t, err)
	assert.False(t, res.Reachable)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, err = prober.Probe(context.Background(), "offline")
	require.NoError(t, err)
	assert.False(t, res.Reachable)
	assert.NotEmpty(t, res.Error)

	_, err = prober.Probe(context.Background(), "nope")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestProbeOpensCircuitForFailingHost(t *testing.T) {
	catalog, err := NewCatalog(t.TempDir(), []Component{
		{ID: "offline", URL: "http://127.0.0.1:1/none.tar.gz"},
	})
	require.NoError(t, err)

	prober := NewProber(catalog, time.Second, nil)
	for i := 0; i < 3; i++ {
		res, err := prober.Probe(context.Background(), "offline")
		require.NoError(t, err)
		assert.NotContains(t, res.Error, "circuit open")
	}

	res, err := prober.Probe(context.Background(), "offline")
	require.NoError(t, err)
	assert.False(t, res.Reachable)
	assert.Equal(t, "circuit open for 127.0.0.1:1", res.Error)
}

func TestRunReportsCallerCancellation(t *testing.T) {
	p := NewPipeline(testCatalog(t), new(mocks.MockFetcher), mocks.NewMockStager(t), nil, nil, nil)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := p.Run(ctx, nil)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindCanceled))
	assert.Equal(t, 3, report.Count(ResultSkipped))
}

func TestBackgroundWorkRefusedAfterClose(t *testing.T) {
	p := NewPipeline(testCatalog(t), new(mocks.MockFetcher), mocks.NewMockStager(t), nil, nil, nil)
	p.Close()

	_, err := p.Trigger(context.Background(), "kernel")
	assert.ErrorIs(t, err, ErrClosed)
	assert.True(t, apperr.Is(err, apperr.KindCanceled))

	assert.ErrorIs(t, p.RunAsync(context.Background(), nil), ErrClosed)
}

func TestTriggerRacingClose(t *testing.T) {
	for i := 0; i < 20; i++ {
		fetcher := new(mocks.MockFetcher)
		fetcher.On("Fetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, context.Canceled).Maybe()
		p := NewPipeline(testCatalog(t), fetcher, mocks.NewMockStager(t), nil, nil, nil)

		var wg sync.WaitGroup
		for j := 0; j < 4; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = p.Trigger(context.Background(), "kernel")
			}()
		}
		p.Close()
		wg.Wait()

		_, err := p.Trigger(context.Background(), "kernel")
		assert.ErrorIs(t, err, ErrClosed)
	}
}
