// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager(t *testing.T) {
	m := NewManager("v1.2.3")
	assert.NotNil(t, m)
	assert.Equal(t, "v1.2.3", m.version)
	assert.Empty(t, m.checkers)
}

func TestManager_Health_NoCheckers(t *testing.T) {
	m := NewManager("v1.0.0")

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "v1.0.0", resp.Version)
	assert.Nil(t, resp.Checks)
}

func TestManager_Health_WithCheckers(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "healthy", status: StatusHealthy})
	m.RegisterChecker(&mockChecker{name: "degraded", status: StatusDegraded})

	// Non-verbose: no checks included
	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Nil(t, resp.Checks)

	// Verbose: checks included
	resp = m.Health(context.Background(), true)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Len(t, resp.Checks, 2)
	assert.Equal(t, StatusHealthy, resp.Checks["healthy"].Status)
	assert.Equal(t, StatusDegraded, resp.Checks["degraded"].Status)
}

func TestManager_Ready(t *testing.T) {
	tests := []struct {
		name          string
		checker       Checker
		expectedReady bool
		expected      Status
	}{
		{"no checkers", nil, true, StatusHealthy},
		{"healthy", &mockChecker{name: "c", status: StatusHealthy}, true, StatusHealthy},
		{"degraded is still ready", &mockChecker{name: "c", status: StatusDegraded}, true, StatusDegraded},
		{"unhealthy is not ready", &mockChecker{name: "c", status: StatusUnhealthy}, false, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager("v1.0.0")
			if tt.checker != nil {
				m.RegisterChecker(tt.checker)
			}
			resp := m.Ready(context.Background())
			assert.Equal(t, tt.expectedReady, resp.Ready)
			assert.Equal(t, tt.expected, resp.Status)
		})
	}
}

func TestManager_ServeHealth(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "test", status: StatusHealthy})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	m.ServeHealth(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Nil(t, resp.Checks) // not verbose

	req = httptest.NewRequest(http.MethodGet, "/healthz?verbose=true", nil)
	w = httptest.NewRecorder()
	m.ServeHealth(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Len(t, resp.Checks, 1)
}

func TestManager_ServeReady(t *testing.T) {
	tests := []struct {
		name           string
		checker        Checker
		expectedStatus int
	}{
		{"healthy", &mockChecker{name: "test", status: StatusHealthy}, http.StatusOK},
		{"degraded", &mockChecker{name: "test", status: StatusDegraded}, http.StatusOK},
		{"unhealthy", &mockChecker{name: "test", status: StatusUnhealthy}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager("v1.0.0")
			m.RegisterChecker(tt.checker)

			req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
			w := httptest.NewRecorder()
			m.ServeReady(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestManager_ServeHealth_EncodingError(t *testing.T) {
	m := NewManager("v1.0.0")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := &brokenWriter{header: make(http.Header)}

	// Must not panic even if encoding fails
	m.ServeHealth(w, req)
}

func TestStoreChecker(t *testing.T) {
	c := NewStoreChecker(pingFunc(func() error { return nil }))
	assert.Equal(t, "media_store", c.Name())
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)

	c = NewStoreChecker(pingFunc(func() error { return errors.New("badger closed") }))
	res := c.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Contains(t, res.Error, "badger closed")

	c = NewStoreChecker(nil)
	assert.Equal(t, StatusUnhealthy, c.Check(context.Background()).Status)
}

func TestDirChecker(t *testing.T) {
	dir := t.TempDir()

	c := NewDirChecker("downloads", dir)
	assert.Equal(t, "downloads", c.Name())
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)

	c = NewDirChecker("downloads", filepath.Join(dir, "missing"))
	res := c.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Contains(t, res.Error, "not found")
}

func TestCatalogChecker(t *testing.T) {
	c := NewCatalogChecker(func() int { return 12 })
	res := c.Check(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)
	assert.Contains(t, res.Message, "12 genres")

	c = NewCatalogChecker(func() int { return 0 })
	assert.Equal(t, StatusDegraded, c.Check(context.Background()).Status)
}

func TestLastDownloadChecker(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name     string
		last     time.Time
		err      error
		active   int
		expected Status
	}{
		{"no active sessions", time.Time{}, nil, 0, StatusHealthy},
		{"recent download", now.Add(-time.Minute), nil, 2, StatusHealthy},
		{"no download yet", time.Time{}, nil, 1, StatusDegraded},
		{"stale download", now.Add(-time.Hour), nil, 1, StatusDegraded},
		{"store error", time.Time{}, errors.New("boom"), 1, StatusDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewLastDownloadChecker(
				func() (time.Time, error) { return tt.last, tt.err },
				func() int { return tt.active },
				10*time.Minute,
			)
			assert.Equal(t, tt.expected, c.Check(context.Background()).Status)
		})
	}
}

type pingFunc func() error

func (f pingFunc) Ping(context.Context) error { return f() }

// Mock checker for testing
type mockChecker struct {
	name    string
	status  Status
	message string
	err     string
}

func (m *mockChecker) Name() string {
	return m.name
}

func (m *mockChecker) Check(_ context.Context) CheckResult {
	return CheckResult{
		Status:  m.status,
		Message: m.message,
		Error:   m.err,
	}
}

// brokenWriter is a mock ResponseWriter that always fails to write
type brokenWriter struct {
	header http.Header
}

func (w *brokenWriter) Header() http.Header {
	return w.header
}

func (w *brokenWriter) Write([]byte) (int, error) {
	return 0, assert.AnError
}

func (w *brokenWriter) WriteHeader(int) {}
