package component

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/MixOS/backend/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/MixOS/backend/internal/shared/apperr"
)

// ProbeResult reports whether a component's URL is currently reachable.
type ProbeResult struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	Reachable     bool   `json:"reachable"`
	StatusCode    int    `json:"statusCode,omitempty"`
	ContentLength int64  `json:"contentLength"`
	Error         string `json:"error,omitempty"`
}

// Prober issues HEAD requests against component URLs. Hosts that keep
// failing at the transport level are skipped until their circuit cools down.
type Prober struct {
	catalog  *Catalog
	client   *resty.Client
	breakers *resilience.Breakers
}

// NewProber creates a prober with the given per-request timeout.
func NewProber(catalog *Catalog, timeout time.Duration, logger *zap.Logger) *Prober {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5)).
		SetHeader("User-Agent", "MixOS-Probe/1.0").
		SetLogger(logger.Sugar())

	breakers := resilience.NewBreakers(resilience.Settings{
		Threshold: 3,
		Cooldown:  30 * time.Second,
		OnStateChange: func(host string, from, to resilience.State) {
			logger.Info("probe circuit changed",
				zap.String("host", host),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Prober{catalog: catalog, client: client, breakers: breakers}
}

// Probe reports reachability of id's URL. Transport failures are part of
// the result, not an error.
func (p *Prober) Probe(ctx context.Context, id string) (*ProbeResult, error) {
	comp, ok := p.catalog.Get(id)
	if !ok {
		return nil, apperr.NotFound("probe", id)
	}

	result := &ProbeResult{ID: id, URL: comp.URL, ContentLength: -1}

	host := comp.URL
	if u, err := url.Parse(comp.URL); err == nil && u.Host != "" {
		host = u.Host
	}

	var resp *resty.Response
	err := p.breakers.Execute(host, func() error {
		var err error
		resp, err = p.client.R().SetContext(ctx).Head(comp.URL)
		return err
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		result.Error = "circuit open for " + host
		return result, nil
	}
	if err != nil {
		result.Error = err.Error()
		return result, nil
	}

	result.StatusCode = resp.StatusCode()
	result.Reachable = resp.IsSuccess()
	if raw := resp.RawResponse; raw != nil {
		result.ContentLength = raw.ContentLength
	}
	return result, nil
}
