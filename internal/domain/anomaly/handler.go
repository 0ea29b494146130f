package anomaly

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/nhis/claims/internal/platform/auth"
	"github.com/nhis/claims/pkg/apperror"
	"github.com/nhis/claims/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	oversight := api.Group("", auth.RequireRole(auth.RoleOversight))
	oversight.POST("/validations/claims/:id", h.RunForClaim)
	oversight.POST("/validations/batches/:id", h.RunForBatch)
	oversight.GET("/error-records", h.ListRecords)
	oversight.GET("/error-records/:id", h.GetRecord)
	oversight.POST("/error-records/:id/transition", h.TransitionRecord)
}

func toHTTP(err error) error {
	return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
}

func (h *Handler) RunForClaim(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	recs, err := h.svc.RunForClaim(c.Request().Context(), id)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"records": recs, "count": len(recs)})
}

func (h *Handler) RunForBatch(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	recs, err := h.svc.RunForBatch(c.Request().Context(), id)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"records": recs, "count": len(recs)})
}

func (h *Handler) GetRecord(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rec, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) ListRecords(c echo.Context) error {
	p := pagination.FromContext(c)

	var f Filter
	if v := c.QueryParam("claim_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid claim_id")
		}
		f.ClaimID = &id
	}
	if v := c.QueryParam("batch_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid batch_id")
		}
		f.BatchID = &id
	}
	f.Type = c.QueryParam("type")
	f.Category = c.QueryParam("category")
	f.Severity = c.QueryParam("severity")
	f.Status = c.QueryParam("status")

	recs, total, err := h.svc.List(c.Request().Context(), f, p.Limit, p.Offset)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(recs, total, p))
}

type transitionRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

func (h *Handler) TransitionRecord(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req transitionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor, _ := auth.ActorFromContext(c.Request().Context())
	rec, err := h.svc.Transition(c.Request().Context(), id, req.Status, req.Note, actor)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, rec)
}
