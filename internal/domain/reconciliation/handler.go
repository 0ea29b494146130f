package reconciliation

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
	read := api.Group("", auth.RequireRole(auth.RoleTPA, auth.RoleOversight))
	read.GET("/reimbursements", h.ListReimbursements)
	read.GET("/reimbursements/:id", h.GetReimbursement)
	read.GET("/advance-payments", h.ListAdvances)

	oversight := api.Group("", auth.RequireRole(auth.RoleOversight))
	oversight.POST("/reimbursements", h.CreateReimbursement)
	oversight.POST("/reimbursements/:id/status", h.UpdateStatus)
	oversight.POST("/reimbursements/:id/receipt", h.AttachReceipt)
	oversight.POST("/advance-payments", h.CreateAdvance)
	oversight.POST("/advance-payments/:id/status", h.UpdateAdvanceStatus)
}

func toHTTP(err error) error {
	return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
}

func (h *Handler) CreateReimbursement(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rb, err := h.svc.CreateReimbursement(c.Request().Context(), in)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusCreated, rb)
}

func (h *Handler) GetReimbursement(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rb, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return toHTTP(err)
	}
	actor, _ := auth.ActorFromContext(c.Request().Context())
	if !actor.ScopedToTPA(rb.TPAID) {
		return echo.NewHTTPError(http.StatusForbidden, "reimbursement belongs to another tpa")
	}
	return c.JSON(http.StatusOK, rb)
}

func (h *Handler) ListReimbursements(c echo.Context) error {
	p := pagination.FromContext(c)

	var f Filter
	if v := c.QueryParam("tpa_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid tpa_id")
		}
		f.TPAID = &id
	}
	f.Status = c.QueryParam("status")

	// TPA callers only ever see their own ledger.
	actor, _ := auth.ActorFromContext(c.Request().Context())
	if !actor.IsAdministrative() {
		if actor.TPAID == nil {
			return echo.NewHTTPError(http.StatusForbidden, "token carries no tpa scope")
		}
		f.TPAID = actor.TPAID
	}

	rbs, total, err := h.svc.List(c.Request().Context(), f, p.Limit, p.Offset)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(rbs, total, p))
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rb, err := h.svc.UpdateStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, rb)
}

type receiptRequest struct {
	URL string `json:"url"`
}

func (h *Handler) AttachReceipt(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req receiptRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rb, err := h.svc.AttachReceipt(c.Request().Context(), id, req.URL)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, rb)
}

func (h *Handler) CreateAdvance(c echo.Context) error {
	var a AdvancePayment
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateAdvancePayment(c.Request().Context(), &a); err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusCreated, a)
}

type advanceStatusRequest struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
}

func (h *Handler) UpdateAdvanceStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req advanceStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.UpdateAdvanceStatus(c.Request().Context(), id, req.Status, req.Reference)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListAdvances(c echo.Context) error {
	p := pagination.FromContext(c)

	var tpaID *uuid.UUID
	if v := c.QueryParam("tpa_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid tpa_id")
		}
		tpaID = &id
	}

	actor, _ := auth.ActorFromContext(c.Request().Context())
	if !actor.IsAdministrative() {
		if actor.TPAID == nil {
			return echo.NewHTTPError(http.StatusForbidden, "token carries no tpa scope")
		}
		tpaID = actor.TPAID
	}

	advances, total, err := h.svc.ListAdvances(c.Request().Context(), tpaID, p.Limit, p.Offset)
	if err != nil {
		return toHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(advances, total, p))
}
