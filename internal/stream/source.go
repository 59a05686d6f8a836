package stream

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// Descriptor names the feed a session shows.
type Descriptor struct {
	RobotID  string `json:"robot_id"`
	ViewerID string `json:"viewer_id"`
	URL      string `json:"url"`
}

// Callbacks are handed to a Source on Open. Either may be called at most once
// per handle and from any goroutine.
type Callbacks struct {
	Ready func()
	Fail  func(reason string)
}

// Source is one underlying media handle. Open must not block on the network.
type Source interface {
	Open(ctx context.Context, desc Descriptor, cb Callbacks) error
	Teardown() error
}

// SourceFactory builds a fresh handle for every connection attempt.
type SourceFactory func(Descriptor) Source

// ProbeSource reports a feed ready once an HTTP GET to its URL answers 2xx.
type ProbeSource struct {
	client  *resty.Client
	timeout time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewProbeFactory returns a factory of ProbeSources sharing client.
func NewProbeFactory(client *resty.Client, timeout time.Duration) SourceFactory {
	if client == nil {
		client = resty.New()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return func(Descriptor) Source {
		return &ProbeSource{client: client, timeout: timeout}
	}
}

func (p *ProbeSource) Open(ctx context.Context, desc Descriptor, cb Callbacks) error {
	if desc.URL == "" {
		return errors.New("stream url is empty")
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	go func() {
		defer cancel()
		// MJPEG endpoints never finish the body; only the status line matters.
		resp, err := p.client.R().
			SetContext(ctx).
			SetDoNotParseResponse(true).
			Get(desc.URL)
		if err != nil {
			if ctx.Err() == nil {
				cb.Fail(err.Error())
			}
			return
		}
		if body := resp.RawBody(); body != nil {
			body.Close()
		}
		if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
			cb.Fail(fmt.Sprintf("unexpected status %d", resp.StatusCode()))
			return
		}
		cb.Ready()
	}()
	return nil
}

func (p *ProbeSource) Teardown() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	return nil
}

// SimulatedSource connects after a fixed delay and fails with the configured
// probability. It backs demo fleets that have no real cameras.
type SimulatedSource struct {
	delay    time.Duration
	failRate float64
	rng      *rand.Rand
	rngMu    *sync.Mutex

	mu    sync.Mutex
	timer *time.Timer
}

// NewSimulatedFactory returns a factory of SimulatedSources drawing from one rng.
func NewSimulatedFactory(delay time.Duration, failRate float64, rng *rand.Rand) SourceFactory {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	var rngMu sync.Mutex
	return func(Descriptor) Source {
		return &SimulatedSource{delay: delay, failRate: failRate, rng: rng, rngMu: &rngMu}
	}
}

func (s *SimulatedSource) Open(ctx context.Context, _ Descriptor, cb Callbacks) error {
	s.rngMu.Lock()
	fail := s.rng.Float64() < s.failRate
	s.rngMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.timer = time.AfterFunc(s.delay, func() {
		if ctx.Err() != nil {
			return
		}
		if fail {
			cb.Fail("simulated connection drop")
			return
		}
		cb.Ready()
	})
	return nil
}

func (s *SimulatedSource) Teardown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	return nil
}
