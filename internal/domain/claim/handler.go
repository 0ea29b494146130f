package claim

import (
	"net/http"
	"time"

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
	read.GET("/claims", h.ListClaims)
	read.GET("/claims/:id", h.GetClaim)

	facility := api.Group("", auth.RequireRole(auth.RoleFacility))
	facility.POST("/claims", h.SubmitClaim)
	facility.PUT("/claims/:id", h.UpdateClaim)

	tpa := api.Group("", auth.RequireRole(auth.RoleTPA))
	tpa.POST("/claims/:id/decision", h.RecordDecision)

	oversight := api.Group("", auth.RequireRole(auth.RoleOversight))
	oversight.POST("/claims/:id/verification", h.AdvanceVerification)
	oversight.POST("/claims/:id/payment-queue", h.QueueForPayment)
	oversight.POST("/claims/:id/payment", h.MarkPaid)
}

func toHTTP(err error) error {
	return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
}

// requireFacilityScope loads the claim and rejects callers not scoped to its
// submitting facility.
func (h *Handler) requireFacilityScope(c echo.Context, id uuid.UUID) error {
	cl, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return toHTTP(err)
	}
	actor, _ := auth.ActorFromContext(c.Request().Context())
	if !actor.ScopedToFacility(cl.FacilityID) {
		return echo.NewHTTPError(http.StatusForbidden, "claim belongs to another facility")
	}
	return nil
}

// requireTPAScope loads the claim and rejects callers not scoped to its TPA.
func (h *Handler) requireTPAScope(c echo.Context, id uuid.UUID) error {
	cl, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return toHTTP(err)
	}
	actor, _ := auth.ActorFromContext(c.Request().Context())
	if !actor.ScopedToTPA(cl.TPAID) {
		return echo.NewHTTPError(http.StatusForbidden, "claim belongs to another tpa")
	}
	return nil
}

func (h *Handler) SubmitClaim(c echo.Context) error {
	var cl Claim
	if err := c.Bind(&cl); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor, _ := auth.ActorFromContext(c.Request().Context())
	if !actor.ScopedToFacility(cl.FacilityID) {
		return echo.NewHTTPError(http.StatusForbidden, "claim belongs to another facility")
	}
	if err := h.svc.Submit(c.Request().Context(), &cl); err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusCreated, cl)
}

func (h *Handler) GetClaim(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	cl, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *Handler) ListClaims(c echo.Context) error {
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
	if v := c.QueryParam("batch_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid batch_id")
		}
		f.BatchID = &id
	}
	f.BeneficiaryID = c.QueryParam("beneficiary_id")
	f.Status = c.QueryParam("status")
	f.Decision = c.QueryParam("decision")
	f.Unassigned = c.QueryParam("unassigned") == "true"

	claims, total, err := h.svc.List(c.Request().Context(), f, p.Limit, p.Offset)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(claims, total, p))
}

func (h *Handler) UpdateClaim(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in UpdateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.requireFacilityScope(c, id); err != nil {
		return err
	}
	cl, err := h.svc.Update(c.Request().Context(), id, in)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *Handler) RecordDecision(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in DecisionInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.requireTPAScope(c, id); err != nil {
		return err
	}
	cl, err := h.svc.RecordDecision(c.Request().Context(), id, in)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, cl)
}

type verificationRequest struct {
	Outcome string `json:"outcome"`
}

func (h *Handler) AdvanceVerification(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req verificationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cl, err := h.svc.AdvanceVerification(c.Request().Context(), id, req.Outcome)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *Handler) QueueForPayment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	cl, err := h.svc.QueueForPayment(c.Request().Context(), id)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, cl)
}

type paymentRequest struct {
	PaymentDate time.Time `json:"payment_date"`
}

func (h *Handler) MarkPaid(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req paymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cl, err := h.svc.MarkPaid(c.Request().Context(), id, req.PaymentDate)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, cl)
}
