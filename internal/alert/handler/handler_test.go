package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"vigil/internal/alert"
	"vigil/internal/fanout"
	"vigil/internal/identity"
	"vigil/internal/platform/middleware"
	"vigil/pkg/testutil"
)

type stubValidator struct{}

func (stubValidator) ValidateToken(token string) (*middleware.JWTClaims, error) {
	var raw string
	if _, err := fmt.Sscanf(token, "user:%s", &raw); err != nil {
		return nil, fmt.Errorf("bad token")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("bad token")
	}
	return &middleware.JWTClaims{UserID: id}, nil
}

type fixedDispatcher struct {
	report fanout.Report
}

func (d fixedDispatcher) Dispatch(context.Context, fanout.Alert) (fanout.Report, error) {
	return d.report, nil
}

func newTestRouter(t *testing.T, report fanout.Report) *chi.Mux {
	t.Helper()
	svc := alert.New(alert.NewInMemoryStore(), fixedDispatcher{report: report},
		identity.NewResolver(identity.NewInMemoryStore()))
	h := New(svc, slog.New(slog.NewTextHandler(io.Discard, nil)), stubValidator{})
	router := chi.NewRouter()
	h.Register(router)
	return router
}

func authed(req *http.Request, userID uuid.UUID) *http.Request {
	req.Header.Set("Authorization", "Bearer user:"+userID.String())
	return req
}

func TestCreateAlert(t *testing.T) {
	router := newTestRouter(t, fanout.Report{Matched: 5, Recorded: 4, Pushed: 2})
	userID := uuid.New()

	body := map[string]any{
		"category":    "fire",
		"title":       "Building fire",
		"description": "Smoke visible from the street",
		"latitude":    10.0,
		"longitude":   -75.0,
	}
	rr := testutil.DoRequest(router, authed(
		testutil.NewJSONRequest(t, http.MethodPost, "/api/alerts", body), userID))
	testutil.AssertStatus(t, rr, http.StatusCreated)
	testutil.AssertJSONContains(t, rr, "category", "FIRE")
	testutil.AssertJSONContains(t, rr, "notifiedUsers", float64(4))
	testutil.AssertJSONHasKey(t, rr, "id")
}

func TestCreateAlertValidation(t *testing.T) {
	router := newTestRouter(t, fanout.Report{})
	userID := uuid.New()

	body := map[string]any{"category": "fire", "latitude": 10.0, "longitude": -75.0}
	rr := testutil.DoRequest(router, authed(
		testutil.NewJSONRequest(t, http.MethodPost, "/api/alerts", body), userID))
	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation_error")
}

func TestGetAlert(t *testing.T) {
	router := newTestRouter(t, fanout.Report{})
	userID := uuid.New()

	body := map[string]any{
		"category":  "fire",
		"title":     "Building fire",
		"latitude":  10.0,
		"longitude": -75.0,
	}
	rr := testutil.DoRequest(router, authed(
		testutil.NewJSONRequest(t, http.MethodPost, "/api/alerts", body), userID))
	testutil.AssertStatus(t, rr, http.StatusCreated)
	created := testutil.UnmarshalResponse[map[string]any](t, rr)
	id := (*created)["id"].(string)

	rr = testutil.DoRequest(router, authed(
		testutil.NewRequest(t, http.MethodGet, "/api/alerts/"+id), userID))
	testutil.AssertStatusOK(t, rr)
	testutil.AssertJSONContains(t, rr, "title", "Building fire")

	rr = testutil.DoRequest(router, authed(
		testutil.NewRequest(t, http.MethodGet, "/api/alerts/"+uuid.NewString()), userID))
	testutil.AssertStatus(t, rr, http.StatusNotFound)
}

func TestCreateAlertRequiresAuth(t *testing.T) {
	router := newTestRouter(t, fanout.Report{})
	rr := testutil.DoRequest(router,
		testutil.NewJSONRequest(t, http.MethodPost, "/api/alerts", map[string]any{}))
	testutil.AssertStatus(t, rr, http.StatusUnauthorized)
}
