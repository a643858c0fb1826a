package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/joffchandler/Sentinel-flight-ops/internal/audit"
	"github.com/joffchandler/Sentinel-flight-ops/internal/docstore"
	"github.com/joffchandler/Sentinel-flight-ops/internal/identity"
	"github.com/joffchandler/Sentinel-flight-ops/internal/orgs"
	"github.com/joffchandler/Sentinel-flight-ops/internal/principals"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret"

func newRouter(mem *docstore.MemoryStore) http.Handler {
	ps := principals.NewStore(mem)
	auditor := audit.NewWriter(mem)
	d := Deps{
		Accounts:    NewAccounts(mem),
		Principals:  orgs.NewService(mem, ps, auditor, nil),
		Auditor:     auditor,
		JWTSecret:   testSecret,
		SessionDays: 1,
	}

	r := chi.NewRouter()
	r.Use(AuthMiddleware(testSecret))
	r.Post("/signup", HandleSignup(d))
	r.Post("/login", HandleLogin(d))
	r.Post("/logout", HandleLogout)
	r.With(RequirePrincipal(ps)).Get("/me", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(principals.FromContext(r.Context()).Email))
	})
	return r
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookieName {
			return c
		}
	}
	t.Fatal("no session cookie")
	return nil
}

func TestSignupAndLogin(t *testing.T) {
	mem := docstore.NewMemoryStore()
	h := newRouter(mem)

	rec := post(t, h, "/signup", `{"email":" Pilot@Test.dev ","password":"correct-horse"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var body struct {
		Data SessionResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "pilot@test.dev", body.Data.Principal.Email)
	require.Equal(t, identity.RoleOrgAdmin, body.Data.Principal.Role)
	require.Equal(t, orgs.DefaultOrgID, body.Data.Principal.OrganisationID)
	require.NotEmpty(t, body.Data.CSRFToken)

	rec = post(t, h, "/signup", `{"email":"pilot@test.dev","password":"another-pass"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = post(t, h, "/signup", `{"email":"short@test.dev","password":"1234"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(t, h, "/login", `{"email":"pilot@test.dev","password":"wrong-pass"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = post(t, h, "/login", `{"email":"PILOT@test.dev","password":"correct-horse"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := sessionCookie(t, rec)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "pilot@test.dev", rec.Body.String())

	// The second account joins no organisation on its own.
	rec = post(t, h, "/signup", `{"email":"second@test.dev","password":"correct-horse"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	body.Data = SessionResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, identity.RoleUnassigned, body.Data.Principal.Role)
	require.Empty(t, body.Data.Principal.OrganisationID)
}

func TestRequirePrincipal(t *testing.T) {
	mem := docstore.NewMemoryStore()
	h := newRouter(mem)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "garbage"})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAccounts(t *testing.T) {
	ctx := context.Background()
	accounts := NewAccounts(docstore.NewMemoryStore())

	acc, err := accounts.Create(ctx, "a@test.dev", "password-1")
	require.NoError(t, err)
	require.NotEqual(t, "password-1", acc.PasswordHash)

	_, err = accounts.Create(ctx, "a@test.dev", "password-2")
	require.ErrorIs(t, err, ErrEmailTaken)

	got, err := accounts.Authenticate(ctx, "a@test.dev", "password-1")
	require.NoError(t, err)
	require.Equal(t, acc.PrincipalID, got.PrincipalID)

	_, err = accounts.Authenticate(ctx, "a@test.dev", "password-2")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = accounts.Authenticate(ctx, "nobody@test.dev", "password-1")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestValidateCSRF(t *testing.T) {
	token, err := newCSRFToken()
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: token})
	require.Error(t, ValidateCSRF(req))

	req.Header.Set(CSRFHeaderName, token+"x")
	require.Error(t, ValidateCSRF(req))

	req.Header.Set(CSRFHeaderName, token)
	require.NoError(t, ValidateCSRF(req))
}

func TestAccounts_SetPassword(t *testing.T) {
	ctx := context.Background()
	accounts := NewAccounts(docstore.NewMemoryStore())

	_, err := accounts.Create(ctx, "a@test.dev", "password-1")
	require.NoError(t, err)
	require.NoError(t, accounts.SetPassword(ctx, "a@test.dev", "password-2"))

	_, err = accounts.Authenticate(ctx, "a@test.dev", "password-1")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = accounts.Authenticate(ctx, "a@test.dev", "password-2")
	require.NoError(t, err)

	require.ErrorIs(t, accounts.SetPassword(ctx, "b@test.dev", "password-3"), ErrAccountNotFound)
}

func TestValidatePassword(t *testing.T) {
	require.NoError(t, ValidatePassword("correct-horse"))
	require.Error(t, ValidatePassword(""))
	require.Error(t, ValidatePassword("short"))
	require.Error(t, ValidatePassword(strings.Repeat("x", 73)))
}

func TestAccounts_AuthenticateUpgradesWeakHash(t *testing.T) {
	ctx := context.Background()
	mem := docstore.NewMemoryStore()
	accounts := NewAccounts(mem)

	weak, err := bcrypt.GenerateFromPassword([]byte("password-1"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, mem.Put(ctx, accountPath("a@test.dev"), Account{
		PrincipalID:  uuid.New(),
		Email:        "a@test.dev",
		PasswordHash: string(weak),
	}))

	_, err = accounts.Authenticate(ctx, "a@test.dev", "password-1")
	require.NoError(t, err)

	acc, _, err := accounts.Get(ctx, "a@test.dev")
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(acc.PasswordHash))
	require.NoError(t, err)
	require.Equal(t, passwordCost, cost)

	_, err = accounts.Authenticate(ctx, "a@test.dev", "password-1")
	require.NoError(t, err)
}
