package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/joffchandler/Sentinel-flight-ops/internal/auth"
	"github.com/joffchandler/Sentinel-flight-ops/internal/config"
	"github.com/joffchandler/Sentinel-flight-ops/internal/docstore"
	"github.com/joffchandler/Sentinel-flight-ops/internal/risk"
	"github.com/stretchr/testify/require"
)

type fixedProvider struct {
	category risk.Category
	severity risk.Severity
}

func (p fixedProvider) Category() risk.Category { return p.category }

func (p fixedProvider) Evaluate(context.Context, risk.Request) risk.Finding {
	return risk.Finding{Category: p.category, Severity: p.severity, Detail: "fixed"}
}

func testConfig() *config.Config {
	return &config.Config{
		Env:               "dev",
		BaseURL:           "http://localhost:8080",
		JWTSecret:         "test-secret",
		LogLevel:          "error",
		EvaluationRPM:     100,
		ProviderTimeoutMS: 1000,
		MaxEvidenceBytes:  1024,
		SlackTimeoutMS:    100,
		SessionDays:       1,
	}
}

type client struct {
	t       *testing.T
	handler http.Handler
	cookies []*http.Cookie
	csrf    string
}

func (c *client) do(method, path, body string) *httptest.ResponseRecorder {
	c.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	if c.csrf != "" {
		req.Header.Set(auth.CSRFHeaderName, c.csrf)
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	return rec
}

func (c *client) signup(email string) {
	c.t.Helper()
	rec := c.do(http.MethodPost, "/api/v1/auth/signup", `{"email":"`+email+`","password":"correct-horse"}`)
	require.Equal(c.t, http.StatusCreated, rec.Code, rec.Body.String())
	c.cookies = rec.Result().Cookies()

	var body struct {
		Data auth.SessionResponse `json:"data"`
	}
	require.NoError(c.t, json.Unmarshal(rec.Body.Bytes(), &body))
	c.csrf = body.Data.CSRFToken
}

func newTestRouter(t *testing.T, red risk.Category) http.Handler {
	t.Helper()
	var providers []risk.Provider
	for _, c := range risk.Categories() {
		sev := risk.SeverityGreen
		if c == red {
			sev = risk.SeverityRed
		}
		providers = append(providers, fixedProvider{category: c, severity: sev})
	}

	cfg := testConfig()
	services, err := NewServices(cfg, docstore.NewMemoryStore(), providers)
	require.NoError(t, err)
	return NewRouter(cfg, services)
}

func TestRouter_Health(t *testing.T) {
	h := newTestRouter(t, "")

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestRouter_EvaluateAndOverride(t *testing.T) {
	h := newTestRouter(t, risk.CategoryGroundHazards)
	admin := &client{t: t, handler: h}
	admin.signup("admin@test.dev")

	rec := admin.do(http.MethodPost, "/api/v1/evaluations",
		`{"location":{"point":{"lat":51.5,"lon":-0.12}},"flightWindow":{"start":"2030-06-01T10:00:00Z","end":"2030-06-01T11:00:00Z"},"projectTag":"depot"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var evaluated struct {
		Data struct {
			Outcome risk.Outcome `json:"outcome"`
			Org     struct {
				ID string `json:"id"`
			} `json:"org"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &evaluated))
	require.Equal(t, risk.DecisionNoGo, evaluated.Data.Outcome.Decision)
	orgReport := "/api/v1/orgs/default/reports/" + evaluated.Data.Org.ID

	rec = admin.do(http.MethodPost, orgReport+"/override", `{"reason":"site cordoned off by client"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = admin.do(http.MethodPost, orgReport+"/override", `{"reason":"again"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = admin.do(http.MethodPatch, orgReport, `{"projectTag":"depot-north"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = admin.do(http.MethodGet, orgReport+"/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"UPDATED"`)
	require.Contains(t, rec.Body.String(), `"CREATED"`)

	rec = admin.do(http.MethodGet, "/api/v1/me/reports", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "site cordoned off by client")
}

func TestRouter_CSRFAndTenantIsolation(t *testing.T) {
	h := newTestRouter(t, "")
	admin := &client{t: t, handler: h}
	admin.signup("admin@test.dev")

	outsider := &client{t: t, handler: h}
	outsider.signup("outsider@test.dev")

	rec := outsider.do(http.MethodGet, "/api/v1/orgs/default/reports", "")
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), `"access_denied"`)

	noCSRF := &client{t: t, handler: h, cookies: admin.cookies}
	rec = noCSRF.do(http.MethodPut, "/api/v1/orgs/default/settings", `{"name":"Renamed"}`)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = admin.do(http.MethodPut, "/api/v1/orgs/default/settings", `{"name":"Renamed"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = (&client{t: t, handler: h}).do(http.MethodGet, "/api/v1/me", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
