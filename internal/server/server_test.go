package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/EVODENUBY/DYPSE-sub000/internal/config"
	"github.com/EVODENUBY/DYPSE-sub000/internal/db"
	"github.com/EVODENUBY/DYPSE-sub000/internal/ingest"
	"github.com/EVODENUBY/DYPSE-sub000/internal/scheduler"
	"github.com/EVODENUBY/DYPSE-sub000/internal/server/middleware"
	"github.com/EVODENUBY/DYPSE-sub000/internal/server/ratelimit"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeScrapes records trigger calls instead of running the pipeline
type fakeScrapes struct {
	triggers atomic.Int32
	refuse   bool
	status   scheduler.Status
}

func (f *fakeScrapes) TriggerNow() bool {
	if f.refuse {
		return false
	}
	f.triggers.Add(1)
	return true
}

func (f *fakeScrapes) Status() scheduler.Status { return f.status }

type testServer struct {
	*Server
	store   *db.DB
	scrapes *fakeScrapes
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	store, err := db.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))

	scrapes := &fakeScrapes{status: scheduler.Status{Spec: scheduler.DefaultSpec, Timezone: scheduler.DefaultTimezone}}
	s, err := New(Config{
		Port:      0,
		JWT:       &config.JWTConfig{Secret: testJWTSecret, ExpirationHours: 1},
		RateLimit: &ratelimit.Config{Enabled: false},
	}, store, scrapes, nil)
	require.NoError(t, err)
	t.Cleanup(s.rateLimiter.Stop)

	return &testServer{Server: s, store: store, scrapes: scrapes, handler: s.Handler()}
}

var fetchedAt = time.Date(2024, time.June, 1, 2, 0, 0, 0, time.UTC)

func (ts *testServer) seed(t *testing.T, slug, title, jobType string, active bool) *db.Listing {
	t.Helper()
	posted := time.Date(2024, time.May, 20, 0, 0, 0, 0, time.UTC)
	listing, err := ts.store.CreateListing(context.Background(), &db.ListingInput{
		SourceURL:  "https://www.jobinrwanda.com/job/" + slug,
		Title:      title,
		Company:    "Bank of Kigali",
		Location:   "Kigali, Rwanda",
		JobType:    jobType,
		PostedDate: posted,
		Deadline:   posted.AddDate(0, 0, 30),
		Category:   "Finance",
		Source:     "jobinrwanda",
	}, fetchedAt)
	require.NoError(t, err)
	if !active {
		require.NoError(t, ts.store.SetListingActive(context.Background(), listing.ID, false))
	}
	return listing
}

func (ts *testServer) do(t *testing.T, method, target, token string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body), "body: %s", w.Body.String())
	return w, body
}

func (ts *testServer) token(t *testing.T, role string) string {
	t.Helper()
	token, err := ts.jwtService.GenerateToken(uuid.New(), role)
	require.NoError(t, err)
	return token
}

func TestHandleHealth(t *testing.T) {
	ts := newTestServer(t)
	w, body := ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestHandleListJobs_FilterComposition(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, "a", "Accountant", "Full-time", true)
	ts.seed(t, "b", "Auditor", "Full-time", true)
	ts.seed(t, "c", "Intern", "Internship", true)

	w, body := ts.do(t, http.MethodGet, "/jobs?jobType=Full-time", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])

	data := body["data"].(map[string]any)
	assert.Len(t, data["jobs"], 2)
	filters := data["filters"].(map[string]any)
	assert.ElementsMatch(t, []any{"Full-time", "Internship"}, filters["jobTypes"])
	assert.ElementsMatch(t, []any{"Finance"}, filters["categories"])

	pagination := body["pagination"].(map[string]any)
	assert.Equal(t, float64(2), pagination["total"])
	assert.Equal(t, float64(1), pagination["page"])
	assert.Equal(t, float64(10), pagination["limit"])
	assert.Equal(t, float64(1), pagination["totalPages"])
}

func TestHandleListJobs_MultiValueFilter(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, "a", "Accountant", "Full-time", true)
	ts.seed(t, "b", "Intern", "Internship", true)
	ts.seed(t, "c", "Consultant", "Contract", true)

	_, body := ts.do(t, http.MethodGet, "/jobs?jobType=Full-time,Internship", "")
	assert.Len(t, body["data"].(map[string]any)["jobs"], 2)

	_, body = ts.do(t, http.MethodGet, "/jobs?jobType=Full-time&jobType=Contract", "")
	assert.Len(t, body["data"].(map[string]any)["jobs"], 2)
}

func TestHandleListJobs_ExcludesInactive(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, "a", "Accountant", "Full-time", true)
	ts.seed(t, "b", "Closed role", "Full-time", false)

	_, body := ts.do(t, http.MethodGet, "/jobs", "")
	jobs := body["data"].(map[string]any)["jobs"].([]any)
	require.Len(t, jobs, 1)
	assert.Equal(t, "Accountant", jobs[0].(map[string]any)["title"])
}

func TestHandleListJobs_EmptyStore(t *testing.T) {
	ts := newTestServer(t)
	w, body := ts.do(t, http.MethodGet, "/jobs", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{}, body["data"].(map[string]any)["jobs"])
	assert.Equal(t, float64(0), body["pagination"].(map[string]any)["total"])
}

func TestHandleListJobs_Pagination(t *testing.T) {
	ts := newTestServer(t)
	for _, slug := range []string{"a", "b", "c", "d", "e"} {
		ts.seed(t, slug, "Role "+slug, "Full-time", true)
	}

	_, body := ts.do(t, http.MethodGet, "/jobs?page=3&limit=2&sortBy=title&sortOrder=asc", "")
	jobs := body["data"].(map[string]any)["jobs"].([]any)
	require.Len(t, jobs, 1)
	assert.Equal(t, "Role e", jobs[0].(map[string]any)["title"])
	assert.Equal(t, float64(3), body["pagination"].(map[string]any)["totalPages"])

	_, body = ts.do(t, http.MethodGet, "/jobs?limit=500", "")
	assert.Equal(t, float64(100), body["pagination"].(map[string]any)["limit"])
}

func TestHandleListJobs_InvalidParams(t *testing.T) {
	ts := newTestServer(t)

	for _, target := range []string{
		"/jobs?page=0",
		"/jobs?page=abc",
		"/jobs?limit=-1",
		"/jobs?sortBy=password",
		"/jobs?sortOrder=sideways",
	} {
		t.Run(target, func(t *testing.T) {
			w, body := ts.do(t, http.MethodGet, target, "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, false, body["success"])
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestHandleGetJob(t *testing.T) {
	ts := newTestServer(t)
	listing := ts.seed(t, "a", "Accountant", "Full-time", true)

	w, body := ts.do(t, http.MethodGet, "/jobs/"+listing.ID.String(), "")
	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, listing.ID.String(), data["id"])
	assert.Equal(t, "Accountant", data["title"])

	w, body = ts.do(t, http.MethodGet, "/jobs/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, false, body["success"])

	w, body = ts.do(t, http.MethodGet, "/jobs/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, body["success"])
}

func TestHandleTriggerScrape_Authorization(t *testing.T) {
	t.Run("no token", func(t *testing.T) {
		ts := newTestServer(t)
		w, body := ts.do(t, http.MethodPost, "/jobs/scrape", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, false, body["success"])
		assert.Zero(t, ts.scrapes.triggers.Load())
	})

	t.Run("forged token", func(t *testing.T) {
		ts := newTestServer(t)
		other := NewJWTService(&config.JWTConfig{Secret: "another-secret-entirely-0123", ExpirationHours: 1})
		token, err := other.GenerateToken(uuid.New(), middleware.RoleAdmin)
		require.NoError(t, err)

		w, _ := ts.do(t, http.MethodPost, "/jobs/scrape", token)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Zero(t, ts.scrapes.triggers.Load())
	})

	t.Run("non-admin", func(t *testing.T) {
		ts := newTestServer(t)
		listing := ts.seed(t, "a", "Accountant", "Full-time", true)

		w, body := ts.do(t, http.MethodPost, "/jobs/scrape", ts.token(t, "user"))
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, false, body["success"])
		assert.Zero(t, ts.scrapes.triggers.Load())

		after, err := ts.store.GetListingByID(context.Background(), listing.ID)
		require.NoError(t, err)
		assert.Equal(t, listing.UpdatedAt, after.UpdatedAt)
		assert.Equal(t, listing.Title, after.Title)
	})

	t.Run("admin", func(t *testing.T) {
		ts := newTestServer(t)
		w, body := ts.do(t, http.MethodPost, "/jobs/scrape", ts.token(t, middleware.RoleAdmin))
		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "Job scraping started", body["message"])
		assert.Equal(t, int32(1), ts.scrapes.triggers.Load())
	})

	t.Run("scheduler stopping", func(t *testing.T) {
		ts := newTestServer(t)
		ts.scrapes.refuse = true
		w, _ := ts.do(t, http.MethodPost, "/jobs/scrape", ts.token(t, middleware.RoleAdmin))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestHandleScrapeStatus(t *testing.T) {
	ts := newTestServer(t)
	ts.scrapes.status.LastRun = &ingest.RunStats{Source: "jobinrwanda", Created: 3, Updated: 1}

	w, _ := ts.do(t, http.MethodGet, "/jobs/scrape/status", ts.token(t, "user"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body := ts.do(t, http.MethodGet, "/jobs/scrape/status", ts.token(t, middleware.RoleAdmin))
	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, scheduler.DefaultSpec, data["schedule"])
	assert.Equal(t, float64(3), data["lastRun"].(map[string]any)["created"])
}

func TestWithCORS_Preflight(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/jobs/scrape", nil)
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestWithRateLimit(t *testing.T) {
	ts := newTestServer(t)
	ts.rateLimiter.Stop()
	ts.rateLimiter = ratelimit.NewLimiter(&ratelimit.Config{
		Enabled:         true,
		DefaultLimit:    100,
		DefaultWindow:   time.Minute,
		EndpointConfigs: []ratelimit.EndpointConfig{{Path: "/jobs", Method: "GET", Limit: 2, Window: time.Hour}},
	})
	t.Cleanup(ts.rateLimiter.Stop)
	ts.handler = ts.Handler()

	for i := 0; i < 2; i++ {
		w, _ := ts.do(t, http.MethodGet, "/jobs", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}

	w, body := ts.do(t, http.MethodGet, "/jobs", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, false, body["success"])
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestNew_RequiresJWTConfig(t *testing.T) {
	_, err := New(Config{}, nil, nil, nil)
	assert.Error(t, err)
}

func TestStart_ShutsDownOnCancel(t *testing.T) {
	ts := newTestServer(t)
	ts.httpServer.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ts.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
