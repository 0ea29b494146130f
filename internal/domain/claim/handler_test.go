package claim

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/nhis/claims/internal/platform/auth"
)

func scopedRequest(method, target, body string, actor auth.Actor) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithActor(req.Context(), actor))
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func assertForbidden(t *testing.T, err error) {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	if he.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", he.Code)
	}
}

func TestHandler_ForeignFacilityCannotUpdateClaim(t *testing.T) {
	svc, _ := newTestService()
	h := NewHandler(svc)

	cl := validClaim()
	if err := svc.Submit(context.Background(), cl); err != nil {
		t.Fatalf("submit: %v", err)
	}

	otherFacility := uuid.New()
	actor := auth.Actor{ID: uuid.New(), Role: auth.RoleFacility, FacilityID: &otherFacility}
	c, _ := scopedRequest(http.MethodPut, "/claims/"+cl.ID.String(),
		`{"beneficiary_name":"Changed"}`, actor)
	c.SetParamNames("id")
	c.SetParamValues(cl.ID.String())

	assertForbidden(t, h.UpdateClaim(c))

	got, err := svc.Get(context.Background(), cl.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.BeneficiaryName != cl.BeneficiaryName {
		t.Fatal("claim mutated despite foreign facility")
	}
}

func TestHandler_ForeignFacilityCannotSubmitClaim(t *testing.T) {
	svc, repo := newTestService()
	h := NewHandler(svc)

	otherFacility := uuid.New()
	actor := auth.Actor{ID: uuid.New(), Role: auth.RoleFacility, FacilityID: &otherFacility}
	body := `{"beneficiary_id":"BEN-001","beneficiary_name":"Amina Yusuf","facility_id":"` +
		uuid.NewString() + `","tpa_id":"` + uuid.NewString() + `","investigation_cost":"1000"}`
	c, _ := scopedRequest(http.MethodPost, "/claims", body, actor)

	assertForbidden(t, h.SubmitClaim(c))
	if len(repo.claims) != 0 {
		t.Fatal("claim persisted despite foreign facility")
	}
}

func TestHandler_ForeignTPACannotRecordDecision(t *testing.T) {
	svc, _ := newTestService()
	h := NewHandler(svc)

	cl := validClaim()
	if err := svc.Submit(context.Background(), cl); err != nil {
		t.Fatalf("submit: %v", err)
	}

	otherTPA := uuid.New()
	actor := auth.Actor{ID: uuid.New(), Role: auth.RoleTPA, TPAID: &otherTPA}
	c, _ := scopedRequest(http.MethodPost, "/claims/"+cl.ID.String()+"/decision",
		`{"decision":"approved","approved_amount":"1000"}`, actor)
	c.SetParamNames("id")
	c.SetParamValues(cl.ID.String())

	assertForbidden(t, h.RecordDecision(c))

	got, err := svc.Get(context.Background(), cl.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Decision != nil {
		t.Fatal("decision recorded despite foreign tpa")
	}
}

func TestHandler_OwnTPARecordsDecision(t *testing.T) {
	svc, _ := newTestService()
	h := NewHandler(svc)

	cl := validClaim()
	if err := svc.Submit(context.Background(), cl); err != nil {
		t.Fatalf("submit: %v", err)
	}

	actor := auth.Actor{ID: uuid.New(), Role: auth.RoleTPA, TPAID: &cl.TPAID}
	c, rec := scopedRequest(http.MethodPost, "/claims/"+cl.ID.String()+"/decision",
		`{"decision":"rejected","rejection_reason":"duplicate submission"}`, actor)
	c.SetParamNames("id")
	c.SetParamValues(cl.ID.String())

	if err := h.RecordDecision(c); err != nil {
		t.Fatalf("record decision: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got, err := svc.Get(context.Background(), cl.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.DecisionValue() != DecisionRejected {
		t.Fatalf("expected rejected decision, got %q", got.DecisionValue())
	}
}
