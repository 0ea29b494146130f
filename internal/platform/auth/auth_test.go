package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func signToken(t *testing.T, secret []byte, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	secret := []byte("test-secret")
	actorID := uuid.New()
	tpaID := uuid.New()

	raw := signToken(t, secret, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actorID.String(),
			Issuer:    "nhis",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Name:  "Jane Doe",
		Role:  RoleTPA,
		TPAID: tpaID.String(),
	})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var got Actor
	handler := JWTMiddleware(JWTConfig{Issuer: "nhis", Secret: secret})(func(c echo.Context) error {
		got, _ = ActorFromContext(c.Request().Context())
		return nil
	})
	if err := handler(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != actorID {
		t.Errorf("actor ID = %s, want %s", got.ID, actorID)
	}
	if got.Role != RoleTPA {
		t.Errorf("role = %q, want %q", got.Role, RoleTPA)
	}
	if got.TPAID == nil || *got.TPAID != tpaID {
		t.Errorf("TPAID = %v, want %s", got.TPAID, tpaID)
	}
}

func TestJWTMiddleware_MissingToken(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	handler := JWTMiddleware(JWTConfig{Secret: []byte("s")})(func(c echo.Context) error { return nil })
	err := handler(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestJWTMiddleware_WrongSecret(t *testing.T) {
	raw := signToken(t, []byte("other"), Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: RoleFacility,
	})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	c := e.NewContext(req, httptest.NewRecorder())

	handler := JWTMiddleware(JWTConfig{Secret: []byte("test-secret")})(func(c echo.Context) error { return nil })
	err := handler(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestJWTMiddleware_UnknownRole(t *testing.T) {
	secret := []byte("test-secret")
	raw := signToken(t, secret, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: "superuser",
	})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	c := e.NewContext(req, httptest.NewRecorder())

	handler := JWTMiddleware(JWTConfig{Secret: secret})(func(c echo.Context) error { return nil })
	err := handler(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestRequireRole_AdminOverride(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	actor := Actor{ID: uuid.New(), Role: RoleAdmin}
	req = req.WithContext(WithActor(req.Context(), actor))
	c := e.NewContext(req, httptest.NewRecorder())

	called := false
	handler := RequireRole(RoleOversight)(func(c echo.Context) error {
		called = true
		return nil
	})
	if err := handler(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("handler not called for admin")
	}
}

func TestRequireRole_Forbidden(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	actor := Actor{ID: uuid.New(), Role: RoleFacility}
	req = req.WithContext(WithActor(req.Context(), actor))
	c := e.NewContext(req, httptest.NewRecorder())

	handler := RequireRole(RoleOversight)(func(c echo.Context) error { return nil })
	err := handler(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
}

func TestActorScopes(t *testing.T) {
	tpaID := uuid.New()
	other := uuid.New()

	tpa := Actor{ID: uuid.New(), Role: RoleTPA, TPAID: &tpaID}
	if !tpa.ScopedToTPA(tpaID) {
		t.Error("tpa actor should be scoped to its own TPA")
	}
	if tpa.ScopedToTPA(other) {
		t.Error("tpa actor should not be scoped to another TPA")
	}

	admin := Actor{ID: uuid.New(), Role: RoleAdmin}
	if !admin.ScopedToTPA(other) {
		t.Error("admin should be scoped to any TPA")
	}
	if !admin.IsAdministrative() {
		t.Error("admin is administrative")
	}

	oversight := Actor{ID: uuid.New(), Role: RoleOversight}
	if !oversight.IsAdministrative() {
		t.Error("oversight is administrative")
	}
	if (Actor{Role: RoleFacility}).IsAdministrative() {
		t.Error("facility is not administrative")
	}
}

func TestDevAuthMiddleware(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	var got Actor
	var ok bool
	handler := DevAuthMiddleware()(func(c echo.Context) error {
		got, ok = ActorFromContext(c.Request().Context())
		return nil
	})
	if err := handler(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("no actor in context")
	}
	if got.Role != RoleAdmin {
		t.Errorf("role = %q, want admin", got.Role)
	}
}

func TestActorFromContext_Empty(t *testing.T) {
	if _, ok := ActorFromContext(context.Background()); ok {
		t.Error("expected no actor in empty context")
	}
}
