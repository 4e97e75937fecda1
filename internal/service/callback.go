package service

import (
	"context"
	"sync"

	"github.com/kardexsoft/kardex-gateway/internal/domain"

	"go.uber.org/zap"
)

// User-facing callback messages, mirroring the wording the SPA shows.
const (
	msgCallbackSuccess   = "Autenticación exitosa"
	msgProviderFailed    = "No fue posible completar la autenticación"
	msgIncompleteParams  = "Datos de autenticación incompletos"
	msgPayloadProcessing = "Error al procesar los datos de autenticación"
)

// Ingestor resolves OAuth callbacks for one session. Each callback visit
// is a one-shot state machine, loading to a terminal state, scoped to
// the delivered parameters: replaying the same delivery (page reload,
// duplicated redirect) returns the recorded outcome without touching
// session state again, while a delivery with different parameters is a
// new visit and resolves fresh. A failed OAuth attempt therefore never
// blocks a later retry.
type Ingestor struct {
	mu      sync.Mutex
	params  domain.CallbackParams
	outcome *domain.CallbackOutcome
	svc     *SessionService
	sid     string
}

// IngestorFor returns the callback ingestor for a session, creating it
// on first use.
func (s *SessionService) IngestorFor(sid string) *Ingestor {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ing, ok := s.ingestors[sid]; ok {
		return ing
	}
	ing := &Ingestor{svc: s, sid: sid}
	s.ingestors[sid] = ing
	return ing
}

// Ingest consumes one callback delivery and returns its terminal
// outcome. Error outcomes never mutate session state.
func (i *Ingestor) Ingest(ctx context.Context, params domain.CallbackParams) *domain.CallbackOutcome {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.outcome != nil && params == i.params {
		return i.outcome
	}

	i.params = params
	i.outcome = i.resolve(ctx, params)
	i.svc.metrics.IncrCallback(string(i.outcome.State))
	return i.outcome
}

// Outcome returns the most recently resolved outcome, or nil while
// still loading.
func (i *Ingestor) Outcome() *domain.CallbackOutcome {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.outcome
}

func (i *Ingestor) resolve(ctx context.Context, params domain.CallbackParams) *domain.CallbackOutcome {
	cfg := i.svc.cfg

	fail := func(message string) *domain.CallbackOutcome {
		return &domain.CallbackOutcome{
			State:         domain.CallbackError,
			Message:       message,
			RedirectTo:    cfg.LandingRoute,
			RedirectAfter: cfg.ErrorRedirectDelay,
		}
	}

	// A provider error outranks any other parameter that may also be
	// present on the redirect.
	if params.Error != "" {
		i.svc.logger.Warn("oauth provider reported an error",
			zap.String("sid", i.sid),
			zap.String("error", params.Error),
		)
		return fail(msgProviderFailed)
	}

	if params.Token == "" || params.User == "" {
		return fail(msgIncompleteParams)
	}

	user, err := domain.ParseUser(params.User)
	if err != nil {
		i.svc.logger.Warn("oauth callback carried a malformed identity payload",
			zap.String("sid", i.sid),
			zap.Error(err),
		)
		return fail(msgPayloadProcessing)
	}

	if err := i.svc.commit(ctx, i.sid, params.Token, user); err != nil {
		i.svc.logger.Warn("oauth callback credentials rejected",
			zap.String("sid", i.sid),
			zap.Error(err),
		)
		return fail(msgPayloadProcessing)
	}

	redirectTo := cfg.DashboardRoute
	if user.Role == domain.RoleCustomer {
		redirectTo = cfg.PortalRoute
	}

	return &domain.CallbackOutcome{
		State:         domain.CallbackSuccess,
		Message:       msgCallbackSuccess,
		User:          user,
		RedirectTo:    redirectTo,
		RedirectAfter: cfg.SuccessRedirectDelay,
	}
}
