package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"deploy-orchestrator/internal/model"
)

func probeTarget(server *httptest.Server) *model.Target {
	address := strings.TrimPrefix(server.URL, "http://")
	return &model.Target{Name: "probe", Address: address}
}

func probeOptions() Options {
	return Options{
		Path:        "/healthz",
		Timeout:     time.Second,
		BackoffBase: time.Millisecond,
	}
}

func TestCheckerHealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/healthz", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	result := NewChecker().Check(context.Background(), probeTarget(server), probeOptions())
	require.True(t, result.Healthy())
	require.Equal(t, 1, result.Attempts)
}

func TestCheckerUnhealthyStatusCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	opts := probeOptions()
	opts.Retries = 2
	result := NewChecker().Check(context.Background(), probeTarget(server), opts)
	require.Equal(t, StatusUnhealthy, result.Status)
	require.Equal(t, 3, result.Attempts, "重试预算应耗尽")
}

func TestCheckerExpectStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	opts := probeOptions()
	opts.ExpectStatus = http.StatusOK
	result := NewChecker().Check(context.Background(), probeTarget(server), opts)
	require.Equal(t, StatusUnhealthy, result.Status, "期望状态码不匹配时2xx也不算健康")

	opts.ExpectStatus = http.StatusNoContent
	result = NewChecker().Check(context.Background(), probeTarget(server), opts)
	require.True(t, result.Healthy())
}

func TestCheckerSuccessThresholdDebounce(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	// 首次失败清零连续计数, 之后需要连续两次成功
	opts := probeOptions()
	opts.Retries = 3
	opts.SuccessThreshold = 2
	result := NewChecker().Check(context.Background(), probeTarget(server), opts)
	require.True(t, result.Healthy())
	require.Equal(t, 3, result.Attempts)
}

func TestCheckerTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	opts := probeOptions()
	opts.Timeout = 20 * time.Millisecond
	opts.Retries = 1
	result := NewChecker().Check(context.Background(), probeTarget(server), opts)
	require.Equal(t, StatusTimeout, result.Status)
}

func TestCheckerConnectionRefused(t *testing.T) {
	result := NewChecker().Check(context.Background(),
		&model.Target{Name: "gone", Address: "127.0.0.1:1"}, probeOptions())
	require.Equal(t, StatusUnhealthy, result.Status)
}

func TestOptionsNormalize(t *testing.T) {
	opts := Options{}.Normalize()
	require.Equal(t, "http", opts.Scheme)
	require.Equal(t, "/healthz", opts.Path)
	require.Equal(t, 5*time.Second, opts.Timeout)
	require.Equal(t, BackoffFixed, opts.Backoff)
	require.Equal(t, 1, opts.SuccessThreshold)
}

func TestBuildProbeURL(t *testing.T) {
	opts := Options{Scheme: "http", Path: "/ping"}
	require.Equal(t, "http://10.0.0.1:8080/ping", buildProbeURL("10.0.0.1:8080", opts))

	opts.Port = 9090
	require.Equal(t, "http://10.0.0.1:9090/ping", buildProbeURL("10.0.0.1:8080", opts), "探测端口覆盖目标端口")
}
