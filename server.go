package main

import (
	"context"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/adcstream/pkg/frame"
	"github.com/adcstream/pkg/logging"
	"github.com/adcstream/pkg/metrics"
	"github.com/adcstream/pkg/pipeline"
	"github.com/adcstream/pkg/session"
	"github.com/adcstream/pkg/sink"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type Client struct {
	conn *websocket.Conn
	send chan interface{}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	defer func() {
		c.conn.Close()
	}()
	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// Hub is the live view sink: it keeps liveState current and broadcasts every
// event to the connected websocket clients. Slow clients miss messages
// rather than stalling the pipeline.
type Hub struct {
	state *liveState
	log   zerolog.Logger

	mu      sync.RWMutex
	clients map[*Client]bool
}

func NewHub(state *liveState, log zerolog.Logger) *Hub {
	return &Hub{state: state, log: log, clients: make(map[*Client]bool)}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcastJSON(msg interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
		}
	}
}

func (h *Hub) ReportStatus(text string) {
	h.state.addStatus(text)
	h.broadcastJSON(map[string]interface{}{
		"type": "status",
		"text": text,
	})
}

func (h *Hub) EmitSamplePair(source string, p sink.Pair) {
	h.state.progress(source, p.Index)
	h.broadcastJSON(map[string]interface{}{
		"type":     "sample",
		"source":   source,
		"index":    p.Index,
		"weight":   jsonFloat(p.Weight),
		"filtered": jsonFloat(p.Filtered),
	})
}

func (h *Hub) BeginSource(name string, total int) {
	h.broadcastJSON(map[string]interface{}{
		"type":    "source_start",
		"source":  name,
		"samples": total,
	})
}

func (h *Hub) EndSource(name string, s sink.Summary) {
	h.state.sourceDone(s)
	h.broadcastJSON(map[string]interface{}{
		"type":               "source_done",
		"source":             name,
		"samples":            s.Samples,
		"invalid":            s.Invalid,
		"cutoff_hz":          jsonFloat(s.Cutoff),
		"raw_amplitude":      jsonFloat(s.RawAmplitude),
		"filtered_amplitude": jsonFloat(s.FiltAmplitude),
		"fir_coefficients":   finiteOnly(s.Coefficients),
		"fft_frequencies":    finiteOnly(s.Frequencies),
		"fft_magnitudes":     finiteOnly(s.Magnitudes),
	})
}

func (h *Hub) ReportTerminal(t sink.Terminal) {
	h.state.finish(t)
	h.broadcastJSON(map[string]interface{}{
		"type":    "terminal",
		"status":  t.Status.String(),
		"message": t.Message(),
	})
}

// consumerServer bundles what the HTTP handlers need.
type consumerServer struct {
	hub     *Hub
	state   *liveState
	reports string
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func (s *consumerServer) routes() *http.ServeMux {
	upgrader := websocket.Upgrader{
		CheckOrigin:     func(r *http.Request) bool { return true },
		ReadBufferSize:  1024,
		WriteBufferSize: 65536,
	}

	// Serve embedded HTML files
	templatesContent, _ := fs.Sub(templatesFS, "templates")

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" || r.URL.Path == "/index.html" {
			tmpl, err := template.ParseFS(templatesContent, "*.html")
			if err != nil {
				http.Error(w, "Template error: "+err.Error(), 500)
				return
			}
			w.Header().Set("Content-Type", "text/html")
			tmpl.ExecuteTemplate(w, "index.html", nil)
			return
		}
		http.NotFound(w, r)
	})

	mux.Handle("/metrics", s.metrics.Handler())
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/reports", s.handleReports)
	mux.HandleFunc("/api/reports/{name}", s.handleReport)
	mux.HandleFunc("/api/reports/delete", s.handleReportDelete)

	// WebSocket streaming endpoint
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}

		client := &Client{conn: conn, send: make(chan interface{}, 1024)}
		s.hub.register(client)
		s.log.Info().Str("remote", r.RemoteAddr).Msg("live view client connected")
		go client.writePump()

		client.send <- map[string]interface{}{"type": "hello", "status": s.state.snapshot()}

		defer func() {
			s.hub.unregister(client)
			s.log.Info().Str("remote", r.RemoteAddr).Msg("live view client disconnected")
		}()

		// Drain client messages until the connection closes.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	return mux
}

// runConsumer connects to the producer, runs one session and keeps the
// HTTP server up until ctx is cancelled.
func runConsumer(ctx context.Context, cfg Config, log zerolog.Logger, m *metrics.Metrics) error {
	clog := logging.Component(log, "consumer")
	maxFrame, err := cfg.Consumer.maxFrame()
	if err != nil {
		return err
	}

	state := &liveState{}
	hub := NewHub(state, logging.Component(log, "liveview"))
	sinks := sink.Multi{hub, sink.NewLog(clog)}

	var reports *ReportWriter
	if cfg.Consumer.Reports != "" {
		reports, err = NewReportWriter(cfg.Consumer.Reports, "")
		if err != nil {
			return err
		}
		sinks = append(sinks, reports)
	}

	c := session.NewConsumer(session.ConsumerConfig{
		Addr:        cfg.Consumer.Addr,
		IdleTimeout: cfg.Consumer.Idle,
		MaxContent:  maxFrame,
		QueueSize:   cfg.Consumer.Queue,
		Pipeline: pipeline.Config{
			Window:     cfg.Consumer.Window,
			MinHistory: cfg.Consumer.MinHistory,
			Pace:       cfg.Consumer.Pace,
		},
	}, sinks,
		session.WithLogger(clog),
		session.WithMetrics(m),
		session.WithSessionStart(func(id string) {
			state.start(id, cfg.Consumer.Addr)
			if reports != nil {
				reports.SetSession(id)
			}
		}),
		session.WithConfigReceived(func(remote frame.Config) {
			state.setRemote(remote.Mode.String(), remote.IntervalMS)
		}),
	)

	var srv *http.Server
	if cfg.Consumer.HTTP != "" {
		cs := &consumerServer{hub: hub, state: state, reports: cfg.Consumer.Reports, metrics: m, log: clog}
		srv = &http.Server{Addr: cfg.Consumer.HTTP, Handler: cs.routes(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				clog.Error().Err(err).Msg("http server failed")
			}
		}()
		defer shutdown(srv)
		clog.Info().Str("http", cfg.Consumer.HTTP).Msg("live view listening")
	}

	term := c.Run(ctx)

	if srv != nil && ctx.Err() == nil {
		clog.Info().Msg("session over; live view stays up until interrupted")
		<-ctx.Done()
	}
	if term.Status == sink.Error {
		return term.Err
	}
	return nil
}
