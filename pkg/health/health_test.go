package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func static(status Status) Check {
	return func(context.Context) ComponentHealth {
		return ComponentHealth{Status: status}
	}
}

func TestRunReportsWorstStatus(t *testing.T) {
	c := NewChecker()
	c.Register("index", static(StatusUp))
	assert.Equal(t, StatusUp, c.Run(context.Background()).Status)

	c.Register("redis", static(StatusDegraded))
	report := c.Run(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Len(t, report.Components, 2)

	c.Register("index", static(StatusDown))
	assert.Equal(t, StatusDown, c.Run(context.Background()).Status)
}

func TestMountedProbes(t *testing.T) {
	c := NewChecker()
	c.Register("index", static(StatusDegraded))
	mux := http.NewServeMux()
	c.Mount(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var report Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, StatusDegraded, report.Components["index"].Status)
}
