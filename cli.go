package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/adcstream/pkg/logging"
	"github.com/adcstream/pkg/metrics"
	"github.com/adcstream/pkg/session"
	"github.com/adcstream/pkg/source"
	"github.com/rs/zerolog"
)

// runProducer serves the configured sources until the session ends, or
// until ctx is cancelled when repeating.
func runProducer(ctx context.Context, cfg Config, log zerolog.Logger, m *metrics.Metrics) error {
	mode, err := cfg.Producer.mode()
	if err != nil {
		return err
	}
	plog := logging.Component(log, "producer")

	p := session.NewProducer(session.ProducerConfig{
		Addr:       cfg.Producer.Addr,
		Mode:       mode,
		IntervalMS: uint32(cfg.Producer.IntervalMS),
		Selection: session.Selection{
			Frequency: cfg.Producer.Frequency,
			File:      cfg.Producer.File,
		},
		Repeat: cfg.Producer.Repeat,
	}, source.NewDir(cfg.Producer.Dir), session.WithLogger(plog), session.WithMetrics(m))

	if err := p.Listen(ctx); err != nil {
		return err
	}

	if cfg.Producer.HTTP != "" {
		srv := &http.Server{Addr: cfg.Producer.HTTP, Handler: producerMux(p, m)}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				plog.Error().Err(err).Msg("http server failed")
			}
		}()
		defer shutdown(srv)
		plog.Info().Str("http", cfg.Producer.HTTP).Msg("producer metrics listening")
	}

	plog.Info().
		Str("dir", cfg.Producer.Dir).
		Stringer("mode", mode).
		Uint("interval_ms", cfg.Producer.IntervalMS).
		Msg("waiting for consumer")

	if err := p.Serve(ctx); err != nil {
		return err
	}
	for _, out := range p.Outcomes() {
		if out.Err != nil {
			return out.Err
		}
	}
	return nil
}

type producerStatus struct {
	State    string            `json:"state"`
	Sessions []producerSession `json:"sessions"`
}

type producerSession struct {
	ID      string   `json:"id"`
	Status  string   `json:"status"`
	Sources []string `json:"sources"`
	Error   string   `json:"error,omitempty"`
}

func producerMux(p *session.Producer, m *metrics.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		st := producerStatus{State: p.State().String(), Sessions: []producerSession{}}
		for _, out := range p.Outcomes() {
			s := producerSession{ID: out.ID, Status: out.Status.String(), Sources: out.Sources}
			if out.Err != nil {
				s.Error = out.Err.Error()
			}
			st.Sessions = append(st.Sessions, s)
		}
		writeJSON(w, st)
	})
	return mux
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}
