package pipeline

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/adcstream/pkg/metrics"
	"github.com/stretchr/testify/require"
)

func gatherText(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}
