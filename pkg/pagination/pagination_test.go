package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(t *testing.T, query string) Params {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/claims"+query, nil)
	rec := httptest.NewRecorder()
	return FromContext(e.NewContext(req, rec))
}

func TestFromContext_Defaults(t *testing.T) {
	p := paramsFor(t, "")
	if p.Limit != DefaultLimit {
		t.Errorf("Limit = %d, want %d", p.Limit, DefaultLimit)
	}
	if p.Offset != 0 {
		t.Errorf("Offset = %d, want 0", p.Offset)
	}
}

func TestFromContext_ExplicitValues(t *testing.T) {
	p := paramsFor(t, "?limit=50&offset=120")
	if p.Limit != 50 {
		t.Errorf("Limit = %d, want 50", p.Limit)
	}
	if p.Offset != 120 {
		t.Errorf("Offset = %d, want 120", p.Offset)
	}
}

func TestFromContext_ClampsLimit(t *testing.T) {
	p := paramsFor(t, "?limit=5000")
	if p.Limit != MaxLimit {
		t.Errorf("Limit = %d, want %d", p.Limit, MaxLimit)
	}
}

func TestFromContext_RejectsNegative(t *testing.T) {
	p := paramsFor(t, "?limit=-5&offset=-10")
	if p.Limit != DefaultLimit {
		t.Errorf("Limit = %d, want %d", p.Limit, DefaultLimit)
	}
	if p.Offset != 0 {
		t.Errorf("Offset = %d, want 0", p.Offset)
	}
}

func TestFromContext_IgnoresGarbage(t *testing.T) {
	p := paramsFor(t, "?limit=abc&offset=xyz")
	if p.Limit != DefaultLimit || p.Offset != 0 {
		t.Errorf("garbage params not defaulted: %+v", p)
	}
}

func TestParams_HasNext(t *testing.T) {
	cases := []struct {
		limit, offset, total int
		want                 bool
	}{
		{10, 0, 25, true},
		{10, 10, 25, true},
		{10, 20, 25, false},
		{10, 0, 0, false},
		{10, 0, 10, false},
	}
	for _, tc := range cases {
		p := Params{Limit: tc.limit, Offset: tc.offset}
		if got := p.HasNext(tc.total); got != tc.want {
			t.Errorf("HasNext(limit=%d offset=%d total=%d) = %v, want %v",
				tc.limit, tc.offset, tc.total, got, tc.want)
		}
	}
}

func TestParams_NextOffset(t *testing.T) {
	p := Params{Limit: 20, Offset: 40}
	if got := p.NextOffset(); got != 60 {
		t.Errorf("NextOffset() = %d, want 60", got)
	}
}

func TestNewResponse(t *testing.T) {
	p := Params{Limit: 10, Offset: 0}
	resp := NewResponse([]int{1, 2, 3}, 25, p)

	if resp.Total != 25 {
		t.Errorf("Total = %d, want 25", resp.Total)
	}
	if !resp.HasMore {
		t.Errorf("HasMore = false, want true")
	}

	last := NewResponse([]int{1}, 25, Params{Limit: 10, Offset: 20})
	if last.HasMore {
		t.Errorf("HasMore = true on last page")
	}
}
