package batch

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
	read := api.Group("", auth.RequireRole(auth.RoleFacility, auth.RoleTPA, auth.RoleOversight))
	read.GET("/batches", h.ListBatches)
	read.GET("/batches/:id", h.GetBatch)
	read.GET("/batches/:id/closure-report", h.GetClosureReport)

	tpa := api.Group("", auth.RequireRole(auth.RoleTPA))
	tpa.POST("/batches", h.CreateBatch)
	tpa.POST("/batches/:id/claims", h.AddClaim)
	tpa.POST("/batches/:id/cover-letter", h.AttachCoverLetter)
	tpa.POST("/batches/:id/prepare", h.PrepareSubmission)
	tpa.POST("/batches/:id/submit", h.SubmitBatch)
	tpa.POST("/batches/:id/close", h.CloseBatch)

	oversight := api.Group("", auth.RequireRole(auth.RoleOversight))
	oversight.POST("/batches/:id/reject", h.RejectBatch)
	oversight.POST("/batches/:id/admin-state", h.AdvanceAdminState)
	oversight.POST("/batches/:id/closure-report/review", h.ReviewClosureReport)
}

func toHTTP(err error) error {
	return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
}

// requireTPAScope loads the batch and rejects callers not scoped to its TPA.
func (h *Handler) requireTPAScope(c echo.Context, id uuid.UUID) error {
	b, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return toHTTP(err)
	}
	actor, _ := auth.ActorFromContext(c.Request().Context())
	if !actor.ScopedToTPA(b.TPAID) {
		return echo.NewHTTPError(http.StatusForbidden, "batch belongs to another tpa")
	}
	return nil
}

func (h *Handler) CreateBatch(c echo.Context) error {
	var b Batch
	if err := c.Bind(&b); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor, _ := auth.ActorFromContext(c.Request().Context())
	if !actor.ScopedToTPA(b.TPAID) {
		return echo.NewHTTPError(http.StatusForbidden, "batch belongs to another tpa")
	}
	if err := h.svc.Create(c.Request().Context(), &b); err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) GetBatch(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	b, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) ListBatches(c echo.Context) error {
	p := pagination.FromContext(c)

	var f Filter
	if v := c.QueryParam("tpa_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid tpa_id")
		}
		f.TPAID = &id
	}
	if v := c.QueryParam("facility_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid facility_id")
		}
		f.FacilityID = &id
	}
	f.Status = c.QueryParam("status")
	f.AdminState = c.QueryParam("admin_state")
	f.Unattached = c.QueryParam("unattached") == "true"

	batches, total, err := h.svc.List(c.Request().Context(), f, p.Limit, p.Offset)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(batches, total, p))
}

type addClaimRequest struct {
	ClaimID uuid.UUID `json:"claim_id"`
}

func (h *Handler) AddClaim(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req addClaimRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.ClaimID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "claim_id is required")
	}
	if err := h.requireTPAScope(c, id); err != nil {
		return err
	}
	b, err := h.svc.AddClaim(c.Request().Context(), id, req.ClaimID)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, b)
}

type coverLetterRequest struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

func (h *Handler) AttachCoverLetter(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req coverLetterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.requireTPAScope(c, id); err != nil {
		return err
	}
	b, err := h.svc.AttachCoverLetter(c.Request().Context(), id, req.URL, req.Filename)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) PrepareSubmission(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.requireTPAScope(c, id); err != nil {
		return err
	}
	b, err := h.svc.PrepareSubmission(c.Request().Context(), id)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) SubmitBatch(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in SubmitInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.requireTPAScope(c, id); err != nil {
		return err
	}
	b, err := h.svc.Submit(c.Request().Context(), id, in)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) CloseBatch(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in ClosureInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.requireTPAScope(c, id); err != nil {
		return err
	}
	b, err := h.svc.Close(c.Request().Context(), id, in)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, b)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) RejectBatch(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req rejectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.svc.Reject(c.Request().Context(), id, req.Reason)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, b)
}

type adminStateRequest struct {
	State string `json:"state"`
}

func (h *Handler) AdvanceAdminState(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req adminStateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.svc.AdvanceAdminState(c.Request().Context(), id, req.State)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) GetClosureReport(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rep, err := h.svc.GetClosureReport(c.Request().Context(), id)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, rep)
}

type reviewRequest struct {
	AdminSignature string `json:"admin_signature"`
	Notes          string `json:"notes"`
}

func (h *Handler) ReviewClosureReport(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req reviewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rep, err := h.svc.ReviewClosureReport(c.Request().Context(), id, req.AdminSignature, req.Notes)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, rep)
}
