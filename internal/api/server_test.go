package api

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rental-insight/internal/cluster"
	apperrors "github.com/rental-insight/internal/errors"
	"github.com/rental-insight/internal/models"
	"github.com/rental-insight/internal/service"
	"github.com/rental-insight/internal/storage"
)

type mockSyncService struct {
	reconcileFunc func(ctx context.Context, req *models.SyncRequest) (*models.BatchReport, error)
	lastRequest   *models.SyncRequest
}

func (m *mockSyncService) Reconcile(ctx context.Context, req *models.SyncRequest) (*models.BatchReport, error) {
	m.lastRequest = req
	if m.reconcileFunc != nil {
		return m.reconcileFunc(ctx, req)
	}
	return &models.BatchReport{Success: true, Message: "ok", TotalReceived: req.TotalListings()}, nil
}

func (m *mockSyncService) Stats() service.ReconcilerStats {
	return service.ReconcilerStats{Batches: 3, GroupsOK: 5}
}

type mockBuildingService struct {
	views map[int64]*service.BuildingsView
	err   error
}

func (m *mockBuildingService) GetBuildings(ctx context.Context, id int64) (*service.BuildingsView, error) {
	if m.err != nil {
		return nil, m.err
	}
	v, ok := m.views[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("neighborhood", "x")
	}
	return v, nil
}

func (m *mockBuildingService) Stats() *service.ViewStats {
	return &service.ViewStats{TotalViews: 7, CacheHits: 4}
}

type mockRunHistory struct {
	runs      []storage.SyncRun
	err       error
	lastLimit int
}

func (m *mockRunHistory) RecentRuns(ctx context.Context, limit int) ([]storage.SyncRun, error) {
	m.lastLimit = limit
	return m.runs, m.err
}

type mockHealth struct{ err error }

func (m *mockHealth) Ping(ctx context.Context) error { return m.err }

type testDeps struct {
	sync      *mockSyncService
	buildings *mockBuildingService
	runs      *mockRunHistory
	health    *mockHealth
}

func testServerConfig() *ServerConfig {
	cfg := DefaultServerConfig()
	cfg.Host = "localhost"
	cfg.RequestsPerSec = 1000
	cfg.Burst = 1000
	return cfg
}

// createTestServer builds a server backed by mock services
func createTestServer(t *testing.T, cfg *ServerConfig) (*Server, *testDeps) {
	t.Helper()
	if cfg == nil {
		cfg = testServerConfig()
	}
	deps := &testDeps{
		sync:      &mockSyncService{},
		buildings: &mockBuildingService{views: map[int64]*service.BuildingsView{}},
		runs:      &mockRunHistory{},
		health:    &mockHealth{},
	}
	return NewServer(cfg, deps.sync, deps.buildings, deps.runs, deps.health), deps
}

func do(s *Server, method, path string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	server, deps := createTestServer(t, nil)

	w := do(server, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	deps.health.err = errors.New("connection refused")
	w = do(server, "GET", "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSync_Success(t *testing.T) {
	server, deps := createTestServer(t, nil)

	body := `{
		"selectedCity": "서울특별시",
		"replaceExisting": true,
		"regionGroups": [{
			"city": "", "district": "강남구", "neighborhood": "역삼동",
			"properties": [{"external_id": "L-1", "name": "A"}, {"external_id": "L-2"}]
		}]
	}`
	w := do(server, "POST", "/api/sync", strings.NewReader(body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var report models.BatchReport
	require.NoError(t, json.NewDecoder(w.Body).Decode(&report))
	assert.True(t, report.Success)
	assert.Equal(t, 2, report.TotalReceived)

	require.NotNil(t, deps.sync.lastRequest)
	assert.True(t, deps.sync.lastRequest.ReplaceExisting)
	assert.Equal(t, "서울특별시", deps.sync.lastRequest.SelectedCity)
}

func TestSync_PartialFailureStillOK(t *testing.T) {
	server, deps := createTestServer(t, nil)
	deps.sync.reconcileFunc = func(ctx context.Context, req *models.SyncRequest) (*models.BatchReport, error) {
		return &models.BatchReport{
			Success:      false,
			ErrorRegions: 1,
			ProcessingResults: []models.GroupResult{
				{Region: "서울특별시 강남구 역삼동", Success: false, Error: "boom"},
			},
		}, nil
	}

	w := do(server, "POST", "/api/sync", strings.NewReader(`{"regionGroups":[]}`))
	assert.Equal(t, http.StatusOK, w.Code)

	var report models.BatchReport
	require.NoError(t, json.NewDecoder(w.Body).Decode(&report))
	assert.False(t, report.Success)
	assert.Equal(t, 1, report.ErrorRegions)
}

func TestSync_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "validation",
			err:        apperrors.NewInvalidInputError("regionGroups", "at least one region group is required"),
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_INPUT",
		},
		{
			name:       "store unreachable",
			err:        apperrors.NewServiceUnavailableError("database", errors.New("dial tcp: refused")),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "SERVICE_UNAVAILABLE",
		},
		{
			name:       "unexpected",
			err:        errors.New("nil pointer somewhere"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, deps := createTestServer(t, nil)
			deps.sync.reconcileFunc = func(ctx context.Context, req *models.SyncRequest) (*models.BatchReport, error) {
				return nil, tt.err
			}

			w := do(server, "POST", "/api/sync", strings.NewReader(`{"regionGroups":[]}`))
			assert.Equal(t, tt.wantStatus, w.Code)

			resp := decodeError(t, w)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.NotContains(t, resp.Error.Message, "nil pointer")
		})
	}
}

func TestSync_InvalidBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed", "invalid json"},
		{"unknown field", `{"regionGroups": [], "dryRun": true}`},
		{"trailing data", `{"regionGroups": []} {}`},
		{"wrong type", `{"regionGroups": "seoul"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, deps := createTestServer(t, nil)

			w := do(server, "POST", "/api/sync", strings.NewReader(tt.body))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, ErrCodeInvalidInput, decodeError(t, w).Error.Code)
			assert.Nil(t, deps.sync.lastRequest)
		})
	}
}

func TestSync_BodyTooLarge(t *testing.T) {
	cfg := testServerConfig()
	cfg.MaxBodyBytes = 64
	server, deps := createTestServer(t, cfg)

	body := `{"selectedCity": "` + strings.Repeat("가", 100) + `", "regionGroups": []}`
	w := do(server, "POST", "/api/sync", strings.NewReader(body))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Nil(t, deps.sync.lastRequest)
}

func TestGetBuildings(t *testing.T) {
	server, deps := createTestServer(t, nil)
	deps.buildings.views[12] = &service.BuildingsView{
		NeighborhoodID: 12,
		Result: cluster.Result{
			SingleRooms:    []*models.Property{{ID: 1, ExternalID: "L-1"}},
			BuildingGroups: []cluster.BuildingCluster{},
		},
	}

	w := do(server, "GET", "/api/neighborhoods/12/buildings", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Contains(t, resp, "singleRooms")
	assert.Contains(t, resp, "buildingGroups")
	assert.JSONEq(t, `[]`, string(resp["buildingGroups"]))
}

func TestGetBuildings_Errors(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		err        error
		wantStatus int
	}{
		{"unknown neighborhood", "/api/neighborhoods/99/buildings", nil, http.StatusNotFound},
		{"zero id", "/api/neighborhoods/0/buildings", nil, http.StatusBadRequest},
		{"non numeric id", "/api/neighborhoods/abc/buildings", nil, http.StatusNotFound},
		{"database failure", "/api/neighborhoods/5/buildings",
			apperrors.NewDatabaseError("list properties", errors.New("timeout")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, deps := createTestServer(t, nil)
			deps.buildings.err = tt.err

			w := do(server, "GET", tt.path, nil)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestListRuns(t *testing.T) {
	server, deps := createTestServer(t, nil)
	deps.runs.runs = []storage.SyncRun{
		{RunID: "r-1", StartedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), Success: true, TotalReceived: 3},
	}

	w := do(server, "GET", "/api/sync/runs?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, deps.runs.lastLimit)

	var resp struct {
		Runs  []storage.SyncRun `json:"runs"`
		Count int               `json:"count"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "r-1", resp.Runs[0].RunID)

	w = do(server, "GET", "/api/sync/runs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, defaultRunsLimit, deps.runs.lastLimit)
}

func TestListRuns_InvalidLimit(t *testing.T) {
	for _, limit := range []string{"0", "-1", "abc", "201"} {
		t.Run(limit, func(t *testing.T) {
			server, _ := createTestServer(t, nil)
			w := do(server, "GET", "/api/sync/runs?limit="+limit, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestListRuns_HistoryDisabled(t *testing.T) {
	deps := &mockSyncService{}
	server := NewServer(testServerConfig(), deps, &mockBuildingService{}, nil, nil)

	w := do(server, "GET", "/api/sync/runs", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStats(t *testing.T) {
	server, _ := createTestServer(t, nil)

	w := do(server, "GET", "/api/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		BuildingViews service.ViewStats       `json:"buildingViews"`
		Sync          service.ReconcilerStats `json:"sync"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, int64(7), resp.BuildingViews.TotalViews)
	assert.Equal(t, int64(3), resp.Sync.Batches)
}

func TestRateLimitMiddleware(t *testing.T) {
	cfg := testServerConfig()
	cfg.RequestsPerSec = 1
	cfg.Burst = 2
	server, _ := createTestServer(t, cfg)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, do(server, "GET", "/api/stats", nil).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// Another client has its own bucket
	req := httptest.NewRequest("GET", "/api/stats", nil)
	req.RemoteAddr = "10.0.0.9:5555"
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// Health is exempt
	assert.Equal(t, http.StatusOK, do(server, "GET", "/health", nil).Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	server, deps := createTestServer(t, nil)
	deps.sync.reconcileFunc = func(ctx context.Context, req *models.SyncRequest) (*models.BatchReport, error) {
		panic("boom")
	}

	w := do(server, "POST", "/api/sync", bytes.NewReader([]byte(`{"regionGroups":[]}`)))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, ErrCodeInternalError, decodeError(t, w).Error.Code)
}

func TestRequestIDMiddleware_KeepsCallerID(t *testing.T) {
	server, _ := createTestServer(t, nil)

	req := httptest.NewRequest("GET", "/api/stats", nil)
	req.Header.Set(RequestIDHeader, "req-abc")
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	assert.Equal(t, "req-abc", w.Header().Get(RequestIDHeader))
}

func TestCORSMiddleware(t *testing.T) {
	called := false
	h := CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("OPTIONS", "/api/sync", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.False(t, called)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/api/stats", nil))
	assert.True(t, called)
}

func TestCompressionMiddleware(t *testing.T) {
	server, _ := createTestServer(t, nil)

	req := httptest.NewRequest("GET", "/api/stats", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	require.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	gz, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	var resp map[string]interface{}
	require.NoError(t, json.NewDecoder(gz).Decode(&resp))
	assert.Contains(t, resp, "sync")
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		want       string
	}{
		{"remote addr", "192.0.2.1:1234", "", "192.0.2.1"},
		{"forwarded first hop", "10.0.0.1:80", "203.0.113.5, 10.0.0.1", "203.0.113.5"},
		{"no port", "192.0.2.7", "", "192.0.2.7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, clientIP(req))
		})
	}
}
