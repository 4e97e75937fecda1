package service_test

import (
	"context"
	"testing"

	"github.com/kardexsoft/kardex-gateway/internal/domain"
)

const adminJSON = `{"id":1,"usuario":"root","nombre":"Root","correo":"root@kardex.pe","rol":"ADMINISTRADOR"}`

func TestIngest_SuccessCustomerGoesToPortal(t *testing.T) {
	storage := newMockStorage()
	svc := newTestService(storage, &mockAPI{}, testConfig())

	outcome := svc.IngestorFor("sid-1").Ingest(context.Background(), domain.CallbackParams{
		Token: "tok-oauth",
		User:  customerJSON,
	})

	if outcome.State != domain.CallbackSuccess {
		t.Fatalf("expected success, got %s (%s)", outcome.State, outcome.Message)
	}
	if outcome.RedirectTo != "/portal" {
		t.Errorf("expected customer redirect to /portal, got %q", outcome.RedirectTo)
	}
	if outcome.RedirectAfterMs() != 1500 {
		t.Errorf("expected 1500ms redirect delay, got %d", outcome.RedirectAfterMs())
	}
	if !svc.Current("sid-1").Authenticated() {
		t.Error("expected session committed after successful ingestion")
	}
	if token, _, _ := storage.Read(context.Background(), "sid-1"); token != "tok-oauth" {
		t.Error("expected credentials persisted after successful ingestion")
	}
}

func TestIngest_SuccessStaffGoesToDashboard(t *testing.T) {
	svc := newTestService(newMockStorage(), &mockAPI{}, testConfig())

	outcome := svc.IngestorFor("sid-1").Ingest(context.Background(), domain.CallbackParams{
		Token: "tok-oauth",
		User:  adminJSON,
	})

	if outcome.State != domain.CallbackSuccess {
		t.Fatalf("expected success, got %s", outcome.State)
	}
	if outcome.RedirectTo != "/panel" {
		t.Errorf("expected staff redirect to /panel, got %q", outcome.RedirectTo)
	}
}

func TestIngest_ProviderError(t *testing.T) {
	storage := newMockStorage()
	svc := newTestService(storage, &mockAPI{}, testConfig())

	outcome := svc.IngestorFor("sid-1").Ingest(context.Background(), domain.CallbackParams{
		Token: "tok-oauth",
		User:  customerJSON,
		Error: "access_denied",
	})

	if outcome.State != domain.CallbackError {
		t.Fatalf("expected error state, got %s", outcome.State)
	}
	if outcome.Message != "No fue posible completar la autenticación" {
		t.Errorf("unexpected message: %q", outcome.Message)
	}
	if outcome.RedirectTo != "/" || outcome.RedirectAfterMs() != 3000 {
		t.Errorf("expected landing redirect after 3000ms, got %q after %dms",
			outcome.RedirectTo, outcome.RedirectAfterMs())
	}
	if svc.Current("sid-1").Authenticated() {
		t.Error("provider error must not mutate session state")
	}
	if token, _, _ := storage.Read(context.Background(), "sid-1"); token != "" {
		t.Error("provider error must not persist anything")
	}
}

func TestIngest_MissingParams(t *testing.T) {
	svc := newTestService(newMockStorage(), &mockAPI{}, testConfig())

	outcome := svc.IngestorFor("sid-1").Ingest(context.Background(), domain.CallbackParams{
		Token: "tok-oauth",
	})

	if outcome.State != domain.CallbackError {
		t.Fatalf("expected error state, got %s", outcome.State)
	}
	if outcome.Message != "Datos de autenticación incompletos" {
		t.Errorf("unexpected message: %q", outcome.Message)
	}
}

func TestIngest_MalformedUserPayload(t *testing.T) {
	storage := newMockStorage()
	svc := newTestService(storage, &mockAPI{}, testConfig())

	outcome := svc.IngestorFor("sid-1").Ingest(context.Background(), domain.CallbackParams{
		Token: "tok-oauth",
		User:  "{broken",
	})

	if outcome.State != domain.CallbackError {
		t.Fatalf("expected error state, got %s", outcome.State)
	}
	if outcome.Message != "Error al procesar los datos de autenticación" {
		t.Errorf("unexpected message: %q", outcome.Message)
	}
	if svc.Current("sid-1").Authenticated() {
		t.Error("malformed payload must not mutate session state")
	}
}

func TestIngest_ReplayedDeliveryIsIdempotent(t *testing.T) {
	svc := newTestService(newMockStorage(), &mockAPI{}, testConfig())
	ctx := context.Background()

	delivery := domain.CallbackParams{Token: "tok-oauth", User: customerJSON}
	first := svc.IngestorFor("sid-1").Ingest(ctx, delivery)

	// A reload of the callback page redelivers the same parameters; the
	// state machine must not run again.
	second := svc.IngestorFor("sid-1").Ingest(ctx, delivery)

	if first != second {
		t.Error("expected the same outcome instance on replay")
	}
	if second.State != domain.CallbackSuccess {
		t.Errorf("replay changed the terminal state to %s", second.State)
	}
	if !svc.Current("sid-1").Authenticated() {
		t.Error("replay must leave the committed session alone")
	}
}

func TestIngest_RetryAfterProviderError(t *testing.T) {
	storage := newMockStorage()
	svc := newTestService(storage, &mockAPI{}, testConfig())
	ctx := context.Background()

	failed := svc.IngestorFor("sid-1").Ingest(ctx, domain.CallbackParams{Error: "access_denied"})
	if failed.State != domain.CallbackError {
		t.Fatalf("expected error state, got %s", failed.State)
	}

	// The user goes through the provider again; the new delivery is a new
	// callback visit and must resolve on its own.
	retry := svc.IngestorFor("sid-1").Ingest(ctx, domain.CallbackParams{
		Token: "tok-retry",
		User:  customerJSON,
	})

	if retry.State != domain.CallbackSuccess {
		t.Fatalf("retry after a failed attempt must succeed, got %s (%s)", retry.State, retry.Message)
	}
	if !svc.Current("sid-1").Authenticated() {
		t.Error("expected the retried callback to commit the session")
	}
	if token, _, _ := storage.Read(ctx, "sid-1"); token != "tok-retry" {
		t.Errorf("expected retried credentials persisted, got %q", token)
	}
}

func TestIngest_LateErrorLeavesCommittedSession(t *testing.T) {
	svc := newTestService(newMockStorage(), &mockAPI{}, testConfig())
	ctx := context.Background()

	svc.IngestorFor("sid-1").Ingest(ctx, domain.CallbackParams{Token: "tok-oauth", User: customerJSON})

	late := svc.IngestorFor("sid-1").Ingest(ctx, domain.CallbackParams{Error: "access_denied"})

	if late.State != domain.CallbackError {
		t.Errorf("a fresh error delivery must resolve as error, got %s", late.State)
	}
	if !svc.Current("sid-1").Authenticated() {
		t.Error("error outcomes must never mutate the committed session")
	}
}

func TestIngestorFor_ScopedPerSession(t *testing.T) {
	svc := newTestService(newMockStorage(), &mockAPI{}, testConfig())
	ctx := context.Background()

	a := svc.IngestorFor("sid-a").Ingest(ctx, domain.CallbackParams{Error: "denied"})
	b := svc.IngestorFor("sid-b").Ingest(ctx, domain.CallbackParams{Token: "tok", User: customerJSON})

	if a.State != domain.CallbackError || b.State != domain.CallbackSuccess {
		t.Error("ingestors must be independent per session")
	}
}
