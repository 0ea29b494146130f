package middleware

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/nhis/claims/internal/platform/auth"
)

// AuditEntry captures who did what to which resource. Mutating requests
// against the API are recorded so that decisions and payments can be traced
// back to an actor.
type AuditEntry struct {
	ActorID    string
	ActorRole  string
	Resource   string
	ResourceID string
	Action     string
	IPAddress  string
	Path       string
	Method     string
	Timestamp  time.Time
	RequestID  string
	StatusCode int
}

// AuditRecorder persists audit entries. Tests and alternative sinks provide
// their own implementation; when none is given entries go to the structured
// log.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit records mutating requests under /api/v1. Reads are not audited.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !strings.HasPrefix(req.URL.Path, "/api/v1/") || !isMutating(req.Method) {
				return next(c)
			}

			err := next(c)

			entry := AuditEntry{
				Timestamp:  time.Now().UTC(),
				Path:       req.URL.Path,
				Method:     req.Method,
				Action:     methodToAction(req.Method),
				IPAddress:  c.RealIP(),
				StatusCode: c.Response().Status,
			}
			entry.Resource, entry.ResourceID = splitResourcePath(req.URL.Path)
			if actor, ok := auth.ActorFromContext(req.Context()); ok {
				entry.ActorID = actor.ID.String()
				entry.ActorRole = actor.Role
			}
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}

			if len(recorders) > 0 {
				for _, r := range recorders {
					if recErr := r.RecordAccess(entry); recErr != nil {
						logger.Error().Err(recErr).Msg("audit recorder failed")
					}
				}
			} else {
				logger.Info().
					Str("actor_id", entry.ActorID).
					Str("actor_role", entry.ActorRole).
					Str("resource", entry.Resource).
					Str("resource_id", entry.ResourceID).
					Str("action", entry.Action).
					Str("path", entry.Path).
					Str("request_id", entry.RequestID).
					Int("status", entry.StatusCode).
					Msg("audit")
			}

			return err
		}
	}
}

func isMutating(method string) bool {
	switch method {
	case "POST", "PUT", "PATCH", "DELETE":
		return true
	}
	return false
}

func methodToAction(method string) string {
	switch method {
	case "POST":
		return "create"
	case "PUT", "PATCH":
		return "update"
	case "DELETE":
		return "delete"
	}
	return "read"
}

// splitResourcePath extracts the resource and, when present, the resource ID
// from a path like /api/v1/claims/123/decision.
func splitResourcePath(path string) (resource, id string) {
	parts := strings.Split(strings.TrimPrefix(path, "/api/v1/"), "/")
	if len(parts) > 0 {
		resource = parts[0]
	}
	if len(parts) > 1 {
		id = parts[1]
	}
	return resource, id
}
