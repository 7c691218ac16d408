package session

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/adcstream/pkg/dsp"
	"github.com/adcstream/pkg/frame"
	"github.com/adcstream/pkg/metrics"
	"github.com/adcstream/pkg/source"
	"github.com/stretchr/testify/require"
)

// adcContent renders n samples of a slow tone as source file lines.
func adcContent(n int, freq float64) []byte {
	var b strings.Builder
	for i := range n {
		w := 100 + 10*math.Sin(2*math.Pi*freq*float64(i)/50)
		fmt.Fprintf(&b, "ADC:%d\n", int64(dsp.DefaultCalibration.Raw(w)))
	}
	return []byte(b.String())
}

func threeSources() *source.Memory {
	return source.NewMemory().
		Add("data_file_0.txt", adcContent(100, 1)).
		Add("data_file_1.txt", adcContent(100, 2)).
		Add("data_file_2.txt", adcContent(100, 3))
}

func startProducer(t *testing.T, cfg ProducerConfig, cat source.Catalog, opts ...Option) (*Producer, <-chan error) {
	t.Helper()
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:0"
	}
	if cfg.AcceptTimeout == 0 {
		cfg.AcceptTimeout = 100 * time.Millisecond
	}
	p := NewProducer(cfg, cat, opts...)
	require.NoError(t, p.Listen(context.Background()))
	errc := make(chan error, 1)
	go func() { errc <- p.Serve(context.Background()) }()
	t.Cleanup(p.Stop)
	return p, errc
}

func waitServe(t *testing.T, errc <-chan error) {
	t.Helper()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("producer did not return")
	}
}

// rawClient dials addr and returns a decoder over the connection.
func rawClient(t *testing.T, addr net.Addr) (*frame.Decoder, net.Conn) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr.String(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return frame.NewDecoder(conn), conn
}

// fakeProducer accepts one connection and hands it to serve.
func fakeProducer(t *testing.T, serve func(net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		serve(conn)
	}()
	return ln.Addr().String()
}

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}
