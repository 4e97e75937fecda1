// Package service contains the business logic of the gateway: session
// reconciliation, OAuth callback ingestion and the login/logout flows.
package service

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kardexsoft/kardex-gateway/internal/domain"
	"github.com/kardexsoft/kardex-gateway/internal/infra/observability"
	"github.com/kardexsoft/kardex-gateway/internal/port"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("session-service")

// Config carries the tunables of the session service.
type Config struct {
	// JWTSecret, when set, enables consistency checks between the bearer
	// token and the identity record before state is committed. Opaque
	// (non-JWT) tokens are always accepted.
	JWTSecret string

	// RestoreGrace bounds how long reconciliation waits for persisted
	// storage to finish restoring before judging the evidence absent.
	RestoreGrace time.Duration

	// Redirect delays handed to the SPA after a callback resolves.
	SuccessRedirectDelay time.Duration
	ErrorRedirectDelay   time.Duration

	// Navigation targets.
	LandingRoute   string
	PortalRoute    string
	DashboardRoute string
}

// SessionService reconciles session state across the in-memory layer,
// persisted storage and the remote KARDEX API. It owns the canonical
// Session per browser session ID.
type SessionService struct {
	mu        sync.RWMutex
	sessions  map[string]*domain.Session
	ingestors map[string]*Ingestor

	storage port.SessionStorage
	api     port.IdentityAPI
	cfg     Config

	// statusCalls collapses concurrent account-status lookups for the
	// same session into a single upstream request.
	statusCalls singleflight.Group

	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewSessionService creates the session service.
func NewSessionService(storage port.SessionStorage, api port.IdentityAPI, cfg Config, metrics *observability.Metrics, logger *zap.Logger) *SessionService {
	return &SessionService{
		sessions:  make(map[string]*domain.Session),
		ingestors: make(map[string]*Ingestor),
		storage:   storage,
		api:       api,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
	}
}

// Landing returns the configured landing route, the fallback target for
// every denied navigation.
func (s *SessionService) Landing() string {
	return s.cfg.LandingRoute
}

// Current returns a copy of the in-memory session for read-only use.
func (s *SessionService) Current(sid string) *domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[sid].Clone()
}

// =====================================================
// Reconciliation
// =====================================================

// Refresh rehydrates the in-memory session from persisted storage. It is
// idempotent: an already authenticated session is left untouched, and
// repeated calls against the same storage state converge to the same
// session. Malformed or inconsistent persisted evidence is discarded and
// never surfaces as an error.
func (s *SessionService) Refresh(ctx context.Context, sid string) {
	s.mu.RLock()
	sess := s.sessions[sid]
	s.mu.RUnlock()
	if sess.Authenticated() {
		return
	}

	token, userJSON, err := s.storage.Read(ctx, sid)
	if err != nil {
		s.logger.Warn("session storage read failed", zap.Error(err))
		return
	}
	if token == "" || userJSON == "" {
		return
	}

	user, err := domain.ParseUser(userJSON)
	if err != nil {
		s.logger.Warn("discarding malformed persisted identity",
			zap.String("sid", sid),
			zap.Error(err),
		)
		s.metrics.IncrSessionRestore("malformed")
		s.storage.Clear(ctx, sid)
		return
	}

	if !s.tokenConsistent(token, user) {
		s.logger.Warn("discarding inconsistent persisted credentials",
			zap.String("sid", sid),
			zap.Int64("userID", user.ID),
		)
		s.metrics.IncrSessionRestore("inconsistent")
		s.storage.Clear(ctx, sid)
		return
	}

	s.mu.Lock()
	s.sessions[sid] = &domain.Session{Token: token, User: user}
	s.mu.Unlock()
	s.metrics.IncrSessionRestore("ok")
}

// Resolve reconciles a protected-page visit into a terminal verdict.
// requiredRole restricts access to one role; empty means any
// authenticated role passes. requireActive additionally checks the
// account's active flag upstream, degrading to authorized when the
// check itself fails.
func (s *SessionService) Resolve(ctx context.Context, sid string, requiredRole domain.Role, requireActive bool) *domain.Verdict {
	ctx, span := tracer.Start(ctx, "Session.Resolve")
	defer span.End()

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("resolve", time.Since(start)) }()

	s.Refresh(ctx, sid)

	// No evidence yet. Storage restoration may still be in flight after a
	// restart, so give it a bounded grace window before deciding.
	if !s.Current(sid).Authenticated() {
		select {
		case <-s.storage.Restored():
		case <-time.After(s.cfg.RestoreGrace):
		case <-ctx.Done():
		}
		s.Refresh(ctx, sid)
	}

	sess := s.Current(sid)
	if !sess.Authenticated() {
		s.metrics.IncrVerdict("unauthenticated")
		return &domain.Verdict{
			IsAuthenticated: false,
			IsAuthorized:    false,
			RedirectTo:      s.cfg.LandingRoute,
		}
	}

	if requiredRole != "" && sess.User.Role != requiredRole {
		s.metrics.IncrVerdict("unauthorized")
		return &domain.Verdict{
			User:            sess.User,
			IsAuthenticated: true,
			IsAuthorized:    false,
			RedirectTo:      s.cfg.LandingRoute,
		}
	}

	if requireActive {
		if verdict := s.checkAccountActive(ctx, sid, sess); verdict != nil {
			return verdict
		}
	}

	s.metrics.IncrVerdict("authorized")
	return &domain.Verdict{
		User:            sess.User,
		IsAuthenticated: true,
		IsAuthorized:    true,
	}
}

// checkAccountActive consults the remote active flag. It returns a deny
// verdict only when the API positively reports the account as inactive;
// a failed lookup is logged and degraded to nil (authorized), keeping
// the gateway usable while the KARDEX API is down.
func (s *SessionService) checkAccountActive(ctx context.Context, sid string, sess *domain.Session) *domain.Verdict {
	v, err, _ := s.statusCalls.Do(sid, func() (any, error) {
		return s.api.AccountStatus(ctx, sess.Token, sess.User.ID)
	})
	if err != nil {
		s.logger.Warn("account-status check failed, allowing access",
			zap.String("sid", sid),
			zap.Int64("userID", sess.User.ID),
			zap.Error(err),
		)
		s.metrics.IncrStatusCheckFailure()
		s.metrics.IncrExternalError("kardex/estado")
		return nil
	}

	status := v.(*domain.AccountStatus)
	if !status.Success || status.Data.Active {
		return nil
	}

	s.logger.Info("account inactive, terminating session",
		zap.String("sid", sid),
		zap.Int64("userID", sess.User.ID),
	)
	s.clear(ctx, sid)
	s.metrics.IncrVerdict("unauthorized")

	inactive := &domain.ErrAccountInactive{}
	return &domain.Verdict{
		IsAuthenticated: false,
		IsAuthorized:    false,
		RedirectTo:      s.cfg.LandingRoute,
		Notice:          inactive.Error(),
	}
}

// =====================================================
// Login / logout
// =====================================================

// Login authenticates against the KARDEX API and commits the session to
// both layers. After commit it warms up the profile and account-status
// paths concurrently; warm-up failures are logged, never returned.
func (s *SessionService) Login(ctx context.Context, sid, username, password string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Session.Login")
	defer span.End()

	token, user, err := s.api.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}
	if _, ok := domain.ParseRole(string(user.Role)); !ok {
		return nil, &domain.ErrMalformedPayload{Reason: "unknown role in login response"}
	}

	if err := s.commit(ctx, sid, token, user); err != nil {
		return nil, err
	}

	var refreshed *domain.User
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fresh, err := s.api.WhoAmI(gctx, token)
		if err != nil {
			s.logger.Warn("profile refresh failed", zap.Error(err))
			return nil
		}
		if fresh == nil || fresh.ID != user.ID {
			return nil
		}
		if _, ok := domain.ParseRole(string(fresh.Role)); !ok {
			s.logger.Warn("profile refresh returned unknown role", zap.String("role", string(fresh.Role)))
			return nil
		}
		refreshed = fresh
		return nil
	})
	g.Go(func() error {
		if _, err := s.api.AccountStatus(gctx, token, user.ID); err != nil {
			s.logger.Warn("account-status warm-up failed", zap.Error(err))
		}
		return nil
	})
	g.Wait()

	// The profile endpoint is fresher than the login payload; fold its
	// record into the session when it arrived.
	if refreshed != nil {
		if err := s.commit(ctx, sid, token, refreshed); err == nil {
			user = refreshed
		}
	}

	return user, nil
}

// Logout clears both session layers and revokes the token upstream.
// Upstream revocation is best effort; local state is gone regardless.
func (s *SessionService) Logout(ctx context.Context, sid string) {
	ctx, span := tracer.Start(ctx, "Session.Logout")
	defer span.End()

	sess := s.Current(sid)
	s.clear(ctx, sid)

	s.mu.Lock()
	delete(s.ingestors, sid)
	s.mu.Unlock()

	if sess.Token != "" {
		if err := s.api.Logout(ctx, sess.Token); err != nil {
			s.logger.Warn("upstream logout failed", zap.Error(err))
		}
	}
}

// =====================================================
// Internals
// =====================================================

// commit writes a token/user pair to both layers. The pair is validated
// for mutual consistency first so an inconsistent session can never be
// observed by readers.
func (s *SessionService) commit(ctx context.Context, sid, token string, user *domain.User) error {
	if !s.tokenConsistent(token, user) {
		return &domain.ErrMalformedPayload{Reason: "token does not match identity record"}
	}

	userJSON, err := json.Marshal(user)
	if err != nil {
		return &domain.ErrMalformedPayload{Reason: err.Error()}
	}

	s.mu.Lock()
	s.sessions[sid] = &domain.Session{Token: token, User: user}
	s.mu.Unlock()

	if err := s.storage.Write(ctx, sid, token, string(userJSON)); err != nil {
		s.logger.Warn("session storage write failed", zap.Error(err))
	}
	return nil
}

func (s *SessionService) clear(ctx context.Context, sid string) {
	s.mu.Lock()
	delete(s.sessions, sid)
	s.mu.Unlock()

	if err := s.storage.Clear(ctx, sid); err != nil {
		s.logger.Warn("session storage clear failed", zap.Error(err))
	}
}

// tokenConsistent verifies that a JWT bearer token belongs to the given
// user. Opaque tokens pass by construction, and without a configured
// secret no claim can be checked, so everything passes.
func (s *SessionService) tokenConsistent(token string, user *domain.User) bool {
	if s.cfg.JWTSecret == "" || strings.Count(token, ".") != 2 {
		return true
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) { return []byte(s.cfg.JWTSecret), nil },
		jwt.WithValidMethods([]string{"HS256"}),
	)
	if err != nil {
		return false
	}
	return claims.Subject == strconv.FormatInt(user.ID, 10)
}
