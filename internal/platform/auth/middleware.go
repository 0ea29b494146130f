package auth

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Claims is the token payload minted by the external identity provider.
type Claims struct {
	jwt.RegisteredClaims
	Name       string `json:"name"`
	Role       string `json:"role"`
	TPAID      string `json:"tpa_id,omitempty"`
	FacilityID string `json:"facility_id,omitempty"`
}

// JWTConfig configures token parsing.
type JWTConfig struct {
	Issuer string
	Secret []byte
}

var validRoles = map[string]bool{
	RoleFacility: true, RoleTPA: true, RoleOversight: true, RoleAdmin: true,
}

// JWTMiddleware parses the Bearer token and stores the resulting Actor on the
// request context. Requests without a valid token are rejected.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			claims := &Claims{}
			opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
			if cfg.Issuer != "" {
				opts = append(opts, jwt.WithIssuer(cfg.Issuer))
			}
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
				return cfg.Secret, nil
			}, opts...)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			actor, err := actorFromClaims(claims)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			}

			c.SetRequest(c.Request().WithContext(WithActor(c.Request().Context(), actor)))
			return next(c)
		}
	}
}

func actorFromClaims(claims *Claims) (Actor, error) {
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid subject")
	}
	if !validRoles[claims.Role] {
		return Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "unknown role")
	}

	actor := Actor{ID: id, Name: claims.Name, Role: claims.Role}
	if claims.TPAID != "" {
		tid, err := uuid.Parse(claims.TPAID)
		if err != nil {
			return Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid tpa_id")
		}
		actor.TPAID = &tid
	}
	if claims.FacilityID != "" {
		fid, err := uuid.Parse(claims.FacilityID)
		if err != nil {
			return Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid facility_id")
		}
		actor.FacilityID = &fid
	}
	return actor, nil
}

// DevAuthMiddleware grants every request an administrative actor. Development
// only.
func DevAuthMiddleware() echo.MiddlewareFunc {
	devActorID := uuid.New()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor := Actor{
				ID:   devActorID,
				Name: "dev-user",
				Role: RoleAdmin,
			}
			c.SetRequest(c.Request().WithContext(WithActor(c.Request().Context(), actor)))
			return next(c)
		}
	}
}
