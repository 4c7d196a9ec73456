package httputil

import (
	"net/http/httptest"
	"testing"
)

func TestNewPageEnvelope(t *testing.T) {
	p := NewPage("/api/parcel-requests", 2, 10, 35, []int{1, 2, 3})

	if p.CurrentPage != 2 || p.PerPage != 10 || p.Total != 35 {
		t.Fatalf("unexpected envelope %+v", p)
	}
	if p.LastPage != 4 {
		t.Fatalf("last_page = %d, want 4", p.LastPage)
	}
	if p.From != 11 || p.To != 20 {
		t.Fatalf("from/to = %d/%d, want 11/20", p.From, p.To)
	}
	if p.NextPageURL == nil || *p.NextPageURL != "/api/parcel-requests?page=3&limit=10" {
		t.Fatalf("next_page_url = %v", p.NextPageURL)
	}
	if p.PrevPageURL == nil || *p.PrevPageURL != "/api/parcel-requests?page=1&limit=10" {
		t.Fatalf("prev_page_url = %v", p.PrevPageURL)
	}
}

func TestNewPageBoundaries(t *testing.T) {
	empty := NewPage("/x", 1, 20, 0, []int{})
	if empty.From != 0 || empty.To != 0 || empty.LastPage != 1 {
		t.Fatalf("empty envelope %+v", empty)
	}
	if empty.NextPageURL != nil || empty.PrevPageURL != nil {
		t.Fatal("empty page must not link to neighbours")
	}

	last := NewPage("/x", 4, 10, 35, []int{})
	if last.To != 35 {
		t.Fatalf("to = %d, want clamped 35", last.To)
	}
	if last.NextPageURL != nil {
		t.Fatal("last page must not link forward")
	}
}

func TestParsePagination(t *testing.T) {
	cases := []struct {
		query     string
		wantPage  int
		wantLimit int
	}{
		{"", 1, 20},
		{"?page=3&limit=50", 3, 50},
		{"?page=0&limit=0", 1, 1},
		{"?page=-2&limit=-5", 1, 1},
		{"?limit=1000", 1, 100},
		{"?page=abc&limit=xyz", 1, 20},
	}
	for _, tc := range cases {
		r := httptest.NewRequest("GET", "/list"+tc.query, nil)
		page, limit := ParsePagination(r)
		if page != tc.wantPage || limit != tc.wantLimit {
			t.Fatalf("%q: got page=%d limit=%d, want page=%d limit=%d", tc.query, page, limit, tc.wantPage, tc.wantLimit)
		}
	}
}
