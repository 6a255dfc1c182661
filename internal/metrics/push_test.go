package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pushRequest struct {
	method string
	path   string
	body   string
}

func newPushgateway(t *testing.T, status int) (*httptest.Server, *[]pushRequest) {
	t.Helper()
	var got []pushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got = append(got, pushRequest{method: r.Method, path: r.URL.Path, body: string(body)})
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestPushSendsSettlementOutcomes(t *testing.T) {
	srv, got := newPushgateway(t, http.StatusOK)

	reg := prometheus.NewRegistry()
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "p2p_settlement_outcomes_total",
		Help: "Settlement runs by terminal state",
	}, []string{"state"})
	reg.MustRegister(outcomes)
	outcomes.WithLabelValues("RELEASED").Inc()

	require.NoError(t, pushFrom(reg, srv.URL, "p2pdesk_settle", "exchange"))

	require.Len(t, *got, 1)
	req := (*got)[0]
	assert.Equal(t, http.MethodPut, req.method)
	assert.Equal(t, "/metrics/job/p2pdesk_settle/instance/exchange", req.path)
	assert.Contains(t, req.body, "p2p_settlement_outcomes_total")
}

func TestPushWithoutInstance(t *testing.T) {
	srv, got := newPushgateway(t, http.StatusOK)

	require.NoError(t, pushFrom(prometheus.NewRegistry(), srv.URL, "p2pdesk_settle", ""))

	require.Len(t, *got, 1)
	assert.Equal(t, "/metrics/job/p2pdesk_settle", (*got)[0].path)
}

func TestPushGatewayRejects(t *testing.T) {
	srv, _ := newPushgateway(t, http.StatusInternalServerError)

	err := Push(srv.URL, "p2pdesk_settle", "")

	assert.ErrorContains(t, err, "failed to push metrics")
}
