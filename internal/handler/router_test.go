package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kardexsoft/kardex-gateway/internal/domain"
	"github.com/kardexsoft/kardex-gateway/internal/handler"
	"github.com/kardexsoft/kardex-gateway/internal/infra/observability"
	"github.com/kardexsoft/kardex-gateway/internal/service"

	"go.uber.org/zap"
)

// =====================================================
// Mocks
// =====================================================

type mockStorage struct {
	mu       sync.Mutex
	tokens   map[string]string
	users    map[string]string
	restored chan struct{}
}

func newMockStorage() *mockStorage {
	ch := make(chan struct{})
	close(ch)
	return &mockStorage{
		tokens:   make(map[string]string),
		users:    make(map[string]string),
		restored: ch,
	}
}

func (m *mockStorage) Read(_ context.Context, sid string) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[sid], m.users[sid], nil
}

func (m *mockStorage) Write(_ context.Context, sid, token, userJSON string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[sid] = token
	m.users[sid] = userJSON
	return nil
}

func (m *mockStorage) Clear(_ context.Context, sid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, sid)
	delete(m.users, sid)
	return nil
}

func (m *mockStorage) Restored() <-chan struct{} { return m.restored }

type mockAPI struct {
	loginToken string
	loginUser  *domain.User
	loginErr   error
	status     *domain.AccountStatus
	statusErr  error
}

func (m *mockAPI) Login(_ context.Context, _, _ string) (string, *domain.User, error) {
	return m.loginToken, m.loginUser, m.loginErr
}

func (m *mockAPI) WhoAmI(_ context.Context, _ string) (*domain.User, error) {
	return m.loginUser, nil
}

func (m *mockAPI) Logout(_ context.Context, _ string) error { return nil }

func (m *mockAPI) AccountStatus(_ context.Context, _ string, _ int64) (*domain.AccountStatus, error) {
	return m.status, m.statusErr
}

func newTestRouter(t *testing.T, api *mockAPI) http.Handler {
	cfg := service.Config{
		RestoreGrace:         10 * time.Millisecond,
		SuccessRedirectDelay: 1500 * time.Millisecond,
		ErrorRedirectDelay:   3 * time.Second,
		LandingRoute:         "/",
		PortalRoute:          "/portal",
		DashboardRoute:       "/panel",
	}
	return newTestRouterWithConfig(t, api, cfg)
}

func newTestRouterWithConfig(t *testing.T, api *mockAPI, cfg service.Config) http.Handler {
	t.Helper()

	sealer, err := handler.NewSealer("")
	if err != nil {
		t.Fatalf("sealer: %v", err)
	}

	svc := service.NewSessionService(newMockStorage(), api, cfg, observability.NewMetrics(), zap.NewNop())

	return handler.NewRouter(svc, sealer, time.Hour, []string{"http://localhost:5173"}, observability.NewMetrics(), zap.NewNop())
}

func activeCustomerAPI() *mockAPI {
	return &mockAPI{
		loginToken: "tok-1",
		loginUser:  &domain.User{ID: 7, Username: "ana", Role: domain.RoleCustomer},
		status:     &domain.AccountStatus{Success: true, Data: domain.AccountStatusData{Active: true}},
	}
}

// login performs a login round trip and returns the session cookie.
func login(t *testing.T, router http.Handler) *http.Cookie {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login",
		strings.NewReader(`{"usuario":"ana","clave":"clave123"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("login returned %d: %s", rec.Code, rec.Body.String())
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == "kardex_session" {
			return c
		}
	}
	t.Fatal("login did not set a session cookie")
	return nil
}

// =====================================================
// Operational endpoints
// =====================================================

func TestHealthz(t *testing.T) {
	router := newTestRouter(t, &mockAPI{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestReadyz(t *testing.T) {
	router := newTestRouter(t, &mockAPI{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, &mockAPI{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

// =====================================================
// Auth flow
// =====================================================

func TestLogin_SetsSessionCookie(t *testing.T) {
	router := newTestRouter(t, activeCustomerAPI())

	cookie := login(t, router)
	if cookie.Value == "" || !cookie.HttpOnly {
		t.Error("expected a sealed HttpOnly session cookie")
	}
}

func TestLogin_InvalidBody(t *testing.T) {
	router := newTestRouter(t, activeCustomerAPI())

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	api := &mockAPI{loginErr: &domain.ErrUnauthorized{Message: "Credenciales inválidas"}}
	router := newTestRouter(t, api)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login",
		strings.NewReader(`{"usuario":"ana","clave":"bad"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

// =====================================================
// Callback
// =====================================================

func TestCallback_Success(t *testing.T) {
	router := newTestRouter(t, &mockAPI{})

	userJSON := `{"id":7,"usuario":"ana","rol":"CLIENTE"}`
	target := "/v1/auth/callback?token=tok-oauth&user=" + url.QueryEscape(userJSON)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		State           string `json:"state"`
		RedirectTo      string `json:"redirectTo"`
		RedirectAfterMs int64  `json:"redirectAfterMs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.State != "success" {
		t.Errorf("expected success state, got %s", resp.State)
	}
	if resp.RedirectTo != "/portal" || resp.RedirectAfterMs != 1500 {
		t.Errorf("expected /portal after 1500ms, got %s after %dms", resp.RedirectTo, resp.RedirectAfterMs)
	}
}

func TestCallback_ProviderError(t *testing.T) {
	router := newTestRouter(t, &mockAPI{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/auth/callback?error=access_denied", nil))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}

	var resp struct {
		State           string `json:"state"`
		RedirectTo      string `json:"redirectTo"`
		RedirectAfterMs int64  `json:"redirectAfterMs"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.State != "error" || resp.RedirectTo != "/" || resp.RedirectAfterMs != 3000 {
		t.Errorf("unexpected error outcome: %+v", resp)
	}
}

// =====================================================
// Guarded routes
// =====================================================

func TestGuard_RedirectsAnonymousVisitor(t *testing.T) {
	router := newTestRouter(t, &mockAPI{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/portal/perfil", nil))

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/" {
		t.Errorf("expected redirect to landing, got %q", loc)
	}
}

func TestGuard_AllowsAuthenticatedCustomer(t *testing.T) {
	router := newTestRouter(t, activeCustomerAPI())
	cookie := login(t, router)

	req := httptest.NewRequest(http.MethodGet, "/v1/portal/perfil", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var user domain.User
	if err := json.Unmarshal(rec.Body.Bytes(), &user); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if user.ID != 7 {
		t.Errorf("expected user 7, got %d", user.ID)
	}
}

func TestGuard_CustomerCannotEnterStaffPanel(t *testing.T) {
	router := newTestRouter(t, activeCustomerAPI())
	cookie := login(t, router)

	req := httptest.NewRequest(http.MethodGet, "/v1/panel/perfil", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Errorf("expected 303 for a customer on the staff panel, got %d", rec.Code)
	}
}

func TestGuard_RedirectsToConfiguredLanding(t *testing.T) {
	cfg := service.Config{
		RestoreGrace:         10 * time.Millisecond,
		SuccessRedirectDelay: 1500 * time.Millisecond,
		ErrorRedirectDelay:   3 * time.Second,
		LandingRoute:         "/inicio",
		PortalRoute:          "/portal",
		DashboardRoute:       "/panel",
	}
	router := newTestRouterWithConfig(t, activeCustomerAPI(), cfg)
	cookie := login(t, router)

	// A customer bounced off the staff panel lands on the configured
	// route, not a hardcoded one.
	req := httptest.NewRequest(http.MethodGet, "/v1/panel/perfil", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/inicio" {
		t.Errorf("expected redirect to /inicio, got %q", loc)
	}
}

// =====================================================
// Session and permissions endpoints
// =====================================================

func TestSessionEndpoint_Authorized(t *testing.T) {
	router := newTestRouter(t, activeCustomerAPI())
	cookie := login(t, router)

	req := httptest.NewRequest(http.MethodGet, "/v1/session?role=CLIENTE&requireActive=true", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var verdict domain.Verdict
	if err := json.Unmarshal(rec.Body.Bytes(), &verdict); err != nil {
		t.Fatalf("decode verdict: %v", err)
	}
	if !verdict.IsAuthenticated || !verdict.IsAuthorized {
		t.Errorf("expected authorized verdict, got %+v", verdict)
	}
}

func TestSessionEndpoint_UnknownRole(t *testing.T) {
	router := newTestRouter(t, &mockAPI{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/session?role=SUPERUSUARIO", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestPermissions_RequireSession(t *testing.T) {
	router := newTestRouter(t, &mockAPI{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/permissions", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestPermissions_CustomerMatrix(t *testing.T) {
	router := newTestRouter(t, activeCustomerAPI())
	cookie := login(t, router)

	req := httptest.NewRequest(http.MethodGet, "/v1/permissions/check?resource=ventas&action=create", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Allowed bool `json:"allowed"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Allowed {
		t.Error("a customer must not be allowed to create sales")
	}
}

func TestSessionMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, &mockAPI{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/metrics/session", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
