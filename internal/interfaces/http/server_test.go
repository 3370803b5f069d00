package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockProbe struct {
	mock.Mock
}

func (m *MockProbe) Ready() bool {
	return m.Called().Bool(0)
}

func (m *MockProbe) Health(ctx context.Context) *HealthStatus {
	return m.Called(ctx).Get(0).(*HealthStatus)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

func healthy() *HealthStatus {
	return &HealthStatus{Overall: true, Components: map[string]ComponentHealth{"database": {Healthy: true}}}
}

func unhealthy() *HealthStatus {
	return &HealthStatus{Overall: false, Components: map[string]ComponentHealth{"database": {Healthy: false, Message: "ping failed"}}}
}

func serve(s *Server, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	s.Router().ServeHTTP(w, req)
	return w
}

func TestIsAlive(t *testing.T) {
	probe := new(MockProbe)
	s := NewServer(DefaultServerConfig(), probe, nopLogger{})

	w := serve(s, "/isalive")

	assert.Equal(t, http.StatusOK, w.Code)
	probe.AssertNotCalled(t, "Ready")
}

func TestIsReady(t *testing.T) {
	tests := []struct {
		name   string
		ready  bool
		health *HealthStatus
		code   int
	}{
		{"ready and healthy", true, healthy(), http.StatusOK},
		{"not started", false, nil, http.StatusServiceUnavailable},
		{"database down", true, unhealthy(), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probe := new(MockProbe)
			probe.On("Ready").Return(tt.ready)
			if tt.health != nil {
				probe.On("Health", mock.Anything).Return(tt.health)
			}
			s := NewServer(DefaultServerConfig(), probe, nopLogger{})

			w := serve(s, "/isready")

			assert.Equal(t, tt.code, w.Code)
		})
	}
}

func TestHealthCheck(t *testing.T) {
	probe := new(MockProbe)
	probe.On("Health", mock.Anything).Return(unhealthy())
	s := NewServer(DefaultServerConfig(), probe, nopLogger{})

	w := serve(s, "/health")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body struct {
		Success bool           `json:"success"`
		Data    HealthResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "unhealthy", body.Data.Status)
	assert.Equal(t, "ping failed", body.Data.Health.Components["database"].Message)
}

func TestServer_StartAndStop(t *testing.T) {
	probe := new(MockProbe)
	config := DefaultServerConfig()
	config.Host = "127.0.0.1"
	config.Port = 0
	s := NewServer(config, probe, nopLogger{})

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))

	resp, err := http.Get("http://" + s.ListenAddr() + "/isalive")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "ALIVE", string(body))

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
}
