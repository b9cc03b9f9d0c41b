package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordUpstreamCallOutcomes(t *testing.T) {
	before := testutil.ToFloat64(upstreamCalls.WithLabelValues("test-upstream", "ok"))
	RecordUpstreamCall("test-upstream", 200, nil, time.Millisecond)
	require.Equal(t, before+1, testutil.ToFloat64(upstreamCalls.WithLabelValues("test-upstream", "ok")))

	RecordUpstreamCall("test-upstream", 502, nil, time.Millisecond)
	require.Equal(t, float64(1), testutil.ToFloat64(upstreamCalls.WithLabelValues("test-upstream", "http_error")))

	RecordUpstreamCall("test-upstream", 0, errors.New("dial"), time.Millisecond)
	require.Equal(t, float64(1), testutil.ToFloat64(upstreamCalls.WithLabelValues("test-upstream", "transport_error")))
}

func TestRecordAuditWrite(t *testing.T) {
	RecordAuditWrite("test-sink", errors.New("down"))
	require.Equal(t, float64(1), testutil.ToFloat64(auditWrites.WithLabelValues("test-sink", "error")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	RecordHTTPRequest(http.MethodGet, "/api/health", http.StatusOK, time.Millisecond)
	RecordPhoneValidation("exists")

	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	require.True(t, strings.Contains(body, "daily_http_requests_total"))
	require.True(t, strings.Contains(body, "daily_phone_validations_total"))
}
