package domain

import "time"

// ============================================================
// Session: authentication state for one browser session
// ============================================================

// Session holds the authentication state for a single client instance.
// A session is authenticated only while both the token and the user
// record are present; partial state (token without user, or vice versa)
// counts as not authenticated.
type Session struct {
	Token     string
	User      *User
	IsLoading bool
}

// Authenticated reports whether the session carries complete evidence
// of authentication. Mutual consistency between token and user is
// enforced at commit time, so presence of both is sufficient here.
func (s *Session) Authenticated() bool {
	return s != nil && s.Token != "" && s.User != nil
}

// Clone returns a shallow copy so read-only consumers never alias the
// mutable session owned by the service.
func (s *Session) Clone() *Session {
	if s == nil {
		return &Session{}
	}
	cp := *s
	if s.User != nil {
		u := *s.User
		cp.User = &u
	}
	return &cp
}

// Verdict is the result of reconciling a protected-page visit.
type Verdict struct {
	User            *User  `json:"user,omitempty"`
	IsAuthenticated bool   `json:"isAuthenticated"`
	IsAuthorized    bool   `json:"isAuthorized"`
	IsLoading       bool   `json:"isLoading"`
	RedirectTo      string `json:"redirectTo,omitempty"`
	Notice          string `json:"notice,omitempty"`
}

// ============================================================
// OAuth callback ingestion
// ============================================================

// CallbackState is the terminal state machine of the OAuth callback
// page: loading -> {success, error}.
type CallbackState string

const (
	CallbackLoading CallbackState = "loading"
	CallbackSuccess CallbackState = "success"
	CallbackError   CallbackState = "error"
)

// CallbackParams are the query parameters delivered by the OAuth
// redirect. Error, when present, signals provider-side failure.
type CallbackParams struct {
	Token string
	User  string
	Error string
}

// CallbackOutcome is the resolved result of ingesting a callback,
// including where the agent should be sent and after how long.
type CallbackOutcome struct {
	State         CallbackState `json:"state"`
	Message       string        `json:"message,omitempty"`
	User          *User         `json:"user,omitempty"`
	RedirectTo    string        `json:"redirectTo"`
	RedirectAfter time.Duration `json:"-"`
}

// RedirectAfterMs exposes the redirect delay in milliseconds for the
// JSON surface consumed by the SPA.
func (o CallbackOutcome) RedirectAfterMs() int64 {
	return o.RedirectAfter.Milliseconds()
}

// ============================================================
// Account status: remote advisory check
// ============================================================

// AccountStatus is the response of the KARDEX account-status lookup.
type AccountStatus struct {
	Success bool              `json:"success"`
	Data    AccountStatusData `json:"data"`
}

// AccountStatusData carries the active flag for the account.
type AccountStatusData struct {
	Active bool `json:"active"`
}
