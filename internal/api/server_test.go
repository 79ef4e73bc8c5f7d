package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/fundlens/lead-engine/internal/config"
	"github.com/fundlens/lead-engine/internal/db"
	"github.com/fundlens/lead-engine/internal/models"
	"github.com/fundlens/lead-engine/internal/predict"
	"github.com/fundlens/lead-engine/internal/query"
)

type stubQueryStore struct {
	opportunities map[uuid.UUID]*models.Opportunity
	lastParams    db.ListParams
}

func newStubQueryStore() *stubQueryStore {
	return &stubQueryStore{opportunities: map[uuid.UUID]*models.Opportunity{}}
}

func (f *stubQueryStore) ListOpportunities(ctx context.Context, params db.ListParams) (*db.ListResult, error) {
	f.lastParams = params
	return &db.ListResult{Opportunities: []models.Opportunity{}}, nil
}

func (f *stubQueryStore) GetOpportunity(ctx context.Context, id uuid.UUID) (*models.Opportunity, error) {
	opp, ok := f.opportunities[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return opp, nil
}

func (f *stubQueryStore) MarkViewed(ctx context.Context, id uuid.UUID) error {
	if opp, ok := f.opportunities[id]; ok && opp.Status == models.StatusNew {
		opp.Status = models.StatusViewed
	}
	return nil
}

func (f *stubQueryStore) UpdateStatus(ctx context.Context, id uuid.UUID, next models.Status) error {
	opp, ok := f.opportunities[id]
	if !ok {
		return models.ErrNotFound
	}
	if !models.CanTransition(opp.Status, next) {
		return models.ErrInvalidTransition
	}
	opp.Status = next
	return nil
}

func (f *stubQueryStore) Stats(ctx context.Context, includeExpired bool) (*db.StatsResult, error) {
	return &db.StatsResult{Total: 7, ByType: map[string]int{}, ByStatus: map[string]int{}}, nil
}

func (f *stubQueryStore) LatestRun(ctx context.Context) (*models.BatchRun, error) {
	return nil, nil
}

type stubRunner struct {
	mu      sync.Mutex
	summary *models.RunSummary
	err     error
	calls   int
	opts    predict.RunOptions
}

func (r *stubRunner) Run(ctx context.Context, opts predict.RunOptions) (*models.RunSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.opts = opts
	if r.err != nil {
		return nil, r.err
	}
	return r.summary, nil
}

func (r *stubRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

const testAdminSecret = "test-admin-secret"

func newTestServer(store query.Store, runner Runner) *Server {
	cfg := config.Config{
		AdminJWTSecret: testAdminSecret,
		CORSOrigins:    []string{"http://localhost:4200"},
	}
	svc := query.NewService(store, zerolog.Nop())
	return NewServer(cfg, svc, nil, runner, zerolog.Nop())
}

func adminToken(t *testing.T, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "ops",
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testAdminSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestListOpportunitiesParsesFilters(t *testing.T) {
	store := newStubQueryStore()
	srv := newTestServer(store, &stubRunner{})

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/opportunities?type=contract_expiry&state=TX,OH&brand=cisco&min_confidence=0.8&limit=10&sort=estimated_value", nil)
	rec := httptest.NewRecorder()
	srv.Echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	p := store.lastParams
	if len(p.Types) != 1 || p.Types[0] != models.PredictionContractExpiry {
		t.Errorf("types = %v", p.Types)
	}
	if len(p.States) != 2 {
		t.Errorf("states = %v", p.States)
	}
	if p.Brand != "cisco" || p.MinConfidence != 0.8 || p.Limit != 10 || p.SortBy != "estimated_value" {
		t.Errorf("params = %+v", p)
	}
}

func TestListOpportunitiesRejectsUnknownType(t *testing.T) {
	srv := newTestServer(newStubQueryStore(), &stubRunner{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/opportunities?type=lottery_win", nil)
	rec := httptest.NewRecorder()
	srv.Echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetOpportunityMarksViewed(t *testing.T) {
	store := newStubQueryStore()
	id := uuid.New()
	store.opportunities[id] = &models.Opportunity{ID: id, Status: models.StatusNew}

	srv := newTestServer(store, &stubRunner{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/opportunities/"+id.String(), nil)
	rec := httptest.NewRecorder()
	srv.Echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got models.Opportunity
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != models.StatusViewed {
		t.Errorf("status = %s, want viewed", got.Status)
	}

	// Unknown IDs 404.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/opportunities/"+uuid.NewString(), nil)
	rec = httptest.NewRecorder()
	srv.Echo.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestUpdateStatusRejectsInvalidTransition(t *testing.T) {
	store := newStubQueryStore()
	id := uuid.New()
	store.opportunities[id] = &models.Opportunity{ID: id, Status: models.StatusNew}

	srv := newTestServer(store, &stubRunner{})

	body := strings.NewReader(`{"status":"converted"}`)
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/opportunities/"+id.String()+"/status", body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	srv.Echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}

	body = strings.NewReader(`{"status":"viewed"}`)
	req = httptest.NewRequest(http.MethodPatch, "/api/v1/opportunities/"+id.String()+"/status", body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = httptest.NewRecorder()
	srv.Echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestTriggerRefreshRequiresAdmin(t *testing.T) {
	runner := &stubRunner{summary: &models.RunSummary{BatchID: "b1", Status: models.RunStatusCompleted}}
	srv := newTestServer(newStubQueryStore(), runner)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/refresh", nil)
	rec := httptest.NewRecorder()
	srv.Echo.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/refresh", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t, "viewer"))
	rec = httptest.NewRecorder()
	srv.Echo.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("wrong role: status = %d, want 403", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/refresh?force=true&states=TX", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t, "admin"))
	rec = httptest.NewRecorder()
	srv.Echo.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("admin: status = %d, body %s", rec.Code, rec.Body.String())
	}

	// The run happens on a background goroutine.
	deadline := time.Now().Add(2 * time.Second)
	for runner.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	runner.mu.Lock()
	defer runner.mu.Unlock()
	if runner.calls != 1 {
		t.Fatalf("runner calls = %d", runner.calls)
	}
	if !runner.opts.ForceRefresh || len(runner.opts.States) != 1 {
		t.Errorf("opts = %+v", runner.opts)
	}
}
