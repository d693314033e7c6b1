package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg, nil)

	c.ObserveProvider("ChatGPT", false, time.Second)
	c.ObserveProvider("ChatGPT", true, time.Second)
	c.ObserveProvider("Claude", false, 2*time.Second)
	c.ObserveDispatch(2, 3*time.Second)
	c.ObserveSynthesis("cloud_fallback", time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.providerCalls.WithLabelValues("ChatGPT", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.providerCalls.WithLabelValues("ChatGPT", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.dispatches))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.synthesisTotal.WithLabelValues("cloud_fallback")))

	n, err := testutil.GatherAndCount(reg, "xoswarm_provider_calls_total")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestCollector_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewCollector(prometheus.NewRegistry(), nil)
		NewCollector(prometheus.NewRegistry(), nil)
	})
}

func TestCollector_Middleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg, nil)

	h := c.Middleware("/chat", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad", http.StatusBadRequest)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/chat", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequests.WithLabelValues("POST", "/chat", "400")))
}
