package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersExposed(t *testing.T) {
	OrdersTotal.WithLabelValues("BUY", "ok").Inc()
	assert.GreaterOrEqual(t, testutil.ToFloat64(OrdersTotal.WithLabelValues("BUY", "ok")), 1.0)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bridge_orders_total")
}
