package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adcstream/pkg/frame"
	"github.com/adcstream/pkg/logging"
	"github.com/adcstream/pkg/sink"
	"github.com/adcstream/pkg/source"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Selection is what the operator picked for the frequency and select-file
// modes.
type Selection struct {
	Frequency string
	File      string
}

// ProducerConfig configures a Producer. Zero durations select defaults.
type ProducerConfig struct {
	Addr       string
	Mode       frame.Mode
	IntervalMS uint32
	Selection  Selection

	AcceptTimeout time.Duration
	WriteTimeout  time.Duration
	PollInterval  time.Duration

	// Repeat keeps the listener open and serves further peers after a
	// session ends.
	Repeat bool
}

func (c ProducerConfig) withDefaults() ProducerConfig {
	if c.AcceptTimeout <= 0 {
		c.AcceptTimeout = DefaultAcceptTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	return c
}

// Outcome summarises one producer session.
type Outcome struct {
	ID      string
	Status  sink.Status
	Sources []string // names of the source frames sent, in order
	Err     error
}

// Producer serves sources to one peer at a time.
type Producer struct {
	cfg     ProducerConfig
	catalog source.Catalog
	opts    options

	stop atomic.Bool

	mu       sync.Mutex
	state    State
	ln       net.Listener
	outcomes []Outcome
}

func NewProducer(cfg ProducerConfig, catalog source.Catalog, opts ...Option) *Producer {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Producer{cfg: cfg.withDefaults(), catalog: catalog, opts: o}
}

// Stop asks the producer to finish. The accept loop and any running
// session observe it within one poll or accept interval.
func (p *Producer) Stop() {
	p.stop.Store(true)
}

func (p *Producer) stopped(ctx context.Context) bool {
	return p.stop.Load() || ctx.Err() != nil
}

func (p *Producer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Producer) setState(s State) {
	p.mu.Lock()
	prev := p.state
	p.state = s
	p.mu.Unlock()
	if prev != s {
		p.opts.log.Debug().Stringer("from", prev).Stringer("to", s).Msg("producer state")
	}
}

// Outcomes returns the results of the sessions served so far.
func (p *Producer) Outcomes() []Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Outcome(nil), p.outcomes...)
}

// Listen binds the listening socket with SO_REUSEADDR.
func (p *Producer) Listen(ctx context.Context) error {
	lc := net.ListenConfig{Control: reuseAddr}
	ln, err := lc.Listen(ctx, "tcp", p.cfg.Addr)
	if err != nil {
		return fmt.Errorf("producer: listen %s: %w", p.cfg.Addr, err)
	}
	p.mu.Lock()
	p.ln = ln
	p.mu.Unlock()
	p.setState(StateListening)
	p.opts.log.Info().Str("addr", ln.Addr().String()).Msg("producer listening")
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (p *Producer) Addr() net.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ln == nil {
		return nil
	}
	return p.ln.Addr()
}

// Run listens and serves until the producer is stopped, ctx ends, or (when
// not repeating) the first session completes.
func (p *Producer) Run(ctx context.Context) error {
	if err := p.Listen(ctx); err != nil {
		return err
	}
	return p.Serve(ctx)
}

// Serve accepts peers on the socket bound by Listen. The listening socket
// is closed when Serve returns.
func (p *Producer) Serve(ctx context.Context) error {
	p.mu.Lock()
	ln := p.ln
	p.mu.Unlock()
	if ln == nil {
		return errors.New("producer: serve before listen")
	}
	defer func() {
		ln.Close()
		p.setState(StateIdle)
		p.opts.log.Info().Msg("producer listener closed")
	}()

	for {
		p.setState(StateAwaitingPeer)
		conn, err := p.accept(ctx, ln)
		if err != nil {
			if errors.Is(err, ErrStopped) {
				return nil
			}
			return err
		}

		out := p.serveConn(ctx, conn)
		p.mu.Lock()
		p.outcomes = append(p.outcomes, out)
		p.mu.Unlock()
		p.opts.metrics.SessionEnded("producer", out.Status.String())

		if !p.cfg.Repeat || p.stopped(ctx) {
			return nil
		}
	}
}

// accept waits for a peer, polling the stop flag every AcceptTimeout.
func (p *Producer) accept(ctx context.Context, ln net.Listener) (net.Conn, error) {
	type deadliner interface{ SetDeadline(time.Time) error }
	for {
		if p.stopped(ctx) {
			return nil, ErrStopped
		}
		if d, ok := ln.(deadliner); ok {
			if err := d.SetDeadline(time.Now().Add(p.cfg.AcceptTimeout)); err != nil {
				return nil, fmt.Errorf("producer: accept deadline: %w", err)
			}
		}
		conn, err := ln.Accept()
		if err == nil {
			return conn, nil
		}
		if isTimeout(err) {
			continue
		}
		return nil, fmt.Errorf("producer: accept: %w", err)
	}
}

// serveConn streams to one peer and always closes conn.
func (p *Producer) serveConn(ctx context.Context, conn net.Conn) Outcome {
	out := Outcome{ID: uuid.NewString()}
	log := logging.Session(p.opts.log, out.ID).With().Str("peer", conn.RemoteAddr().String()).Logger()
	defer func() {
		p.setState(StateDraining)
		conn.Close()
		ev := log.Info()
		if out.Err != nil {
			ev = log.Error().Err(out.Err)
		}
		ev.Str("status", out.Status.String()).Int("sources", len(out.Sources)).Msg("producer session ended")
	}()

	p.setState(StateConnected)
	log.Info().Stringer("mode", p.cfg.Mode).Uint32("interval_ms", p.cfg.IntervalMS).Msg("peer connected")

	w := &sender{conn: conn, enc: frame.NewEncoder(conn), timeout: p.cfg.WriteTimeout, p: p, log: log}
	if err := w.config(frame.Config{IntervalMS: p.cfg.IntervalMS, Mode: p.cfg.Mode}); err != nil {
		out.Status, out.Err = sink.Error, err
		return out
	}

	p.setState(StateStreaming)
	switch p.cfg.Mode {
	case frame.ModeInterval:
		p.streamInterval(ctx, w, &out)
	case frame.ModeFrequency:
		p.streamFrequency(ctx, w, &out)
	case frame.ModeSelectFile:
		p.streamSelected(w, &out)
	default:
		out.Status, out.Err = sink.Error, fmt.Errorf("producer: unknown mode %v", p.cfg.Mode)
	}
	return out
}

func (p *Producer) streamInterval(ctx context.Context, w *sender, out *Outcome) {
	ids, err := p.catalog.List(ctx)
	if err != nil {
		out.Status, out.Err = sink.Error, err
		return
	}
	if len(ids) == 0 {
		p.finish(w, out, frame.ControlNoSources, "", sink.NoSources)
		return
	}

	for _, id := range ids {
		if p.stopped(ctx) {
			out.Status = sink.Stopped
			return
		}
		content, err := p.catalog.Content(ctx, id)
		if err != nil {
			w.log.Warn().Err(err).Str("source", id).Msg("skipping unreadable source")
			continue
		}
		if err := w.source(id, content); err != nil {
			out.Status, out.Err = sink.Error, err
			return
		}
		out.Sources = append(out.Sources, id)
		if p.stopped(ctx) || !p.sleep(ctx, time.Duration(p.cfg.IntervalMS)*time.Millisecond) {
			out.Status = sink.Stopped
			return
		}
	}
	p.finish(w, out, frame.ControlEndOfTransmission, "", sink.Finished)
}

func (p *Producer) streamFrequency(ctx context.Context, w *sender, out *Outcome) {
	freq := p.cfg.Selection.Frequency
	ids, err := p.catalog.List(ctx)
	if err != nil {
		out.Status, out.Err = sink.Error, err
		return
	}
	id, ok := source.MatchFrequency(ids, freq)
	if !ok {
		w.log.Warn().Str("frequency", freq).Msg("no source matches frequency")
		p.finish(w, out, frame.ControlNoFileFound, freq, sink.NoFileFound)
		return
	}
	content, err := p.catalog.Content(ctx, id)
	if err != nil {
		out.Status, out.Err = sink.Error, err
		return
	}
	if err := w.source(id, content); err != nil {
		out.Status, out.Err = sink.Error, err
		return
	}
	out.Sources = append(out.Sources, id)
	p.finish(w, out, frame.ControlEndOfTransmission, "", sink.Finished)
}

func (p *Producer) streamSelected(w *sender, out *Outcome) {
	path := p.cfg.Selection.File
	if path == "" {
		p.finish(w, out, frame.ControlNoFileSelected, "", sink.NoFileSelected)
		return
	}
	content, err := p.opts.readFile(path)
	if err != nil {
		out.Status, out.Err = sink.Error, fmt.Errorf("producer: read selected file: %w", err)
		return
	}
	name := filepath.Base(path)
	if err := w.source(name, content); err != nil {
		out.Status, out.Err = sink.Error, err
		return
	}
	out.Sources = append(out.Sources, name)
	p.finish(w, out, frame.ControlEndOfTransmission, "", sink.Finished)
}

// finish sends a terminating control frame and records status on success.
func (p *Producer) finish(w *sender, out *Outcome, tag frame.ControlTag, freq string, status sink.Status) {
	if err := w.control(tag, freq); err != nil {
		out.Status, out.Err = sink.Error, err
		return
	}
	out.Status = status
}

// sleep waits d in PollInterval steps. It returns false if the producer was
// stopped meanwhile.
func (p *Producer) sleep(ctx context.Context, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		if p.stopped(ctx) {
			return false
		}
		left := time.Until(deadline)
		if left <= 0 {
			return true
		}
		step := min(left, p.cfg.PollInterval)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(step):
		}
	}
}

// sender writes frames with a deadline on every write.
type sender struct {
	conn    net.Conn
	enc     *frame.Encoder
	timeout time.Duration
	p       *Producer
	log     zerolog.Logger
}

func (s *sender) arm() error {
	return s.conn.SetWriteDeadline(time.Now().Add(s.timeout))
}

func (s *sender) sent(kind frame.Kind, name string, n int, err error) error {
	if err != nil {
		return fmt.Errorf("producer: send %s %q: %w", kind, name, err)
	}
	s.p.opts.metrics.FrameSent(kind.String())
	s.log.Debug().Stringer("kind", kind).Str("name", name).Int("bytes", n).Msg("frame sent")
	return nil
}

func (s *sender) config(cfg frame.Config) error {
	if err := s.arm(); err != nil {
		return err
	}
	n, err := s.enc.WriteConfig(cfg)
	return s.sent(frame.KindConfig, "config", n, err)
}

func (s *sender) source(name string, content []byte) error {
	if err := s.arm(); err != nil {
		return err
	}
	n, err := s.enc.WriteSource(name, content)
	return s.sent(frame.KindSource, name, n, err)
}

func (s *sender) control(tag frame.ControlTag, freq string) error {
	if err := s.arm(); err != nil {
		return err
	}
	n, err := s.enc.WriteControl(tag, freq)
	return s.sent(frame.KindControl, frame.ControlName(tag, freq), n, err)
}
