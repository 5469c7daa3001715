package directqueue

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestServeHTTPAcceptsPost(t *testing.T) {
	q := New()
	req := httptest.NewRequest(http.MethodPost, "/notices/presentations", strings.NewReader(`{"said":"E1"}`))
	rr := httptest.NewRecorder()

	q.ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rr.Code)
	}

	n, ok, err := q.Next(context.Background())
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	if n.Route != "/notices/presentations" {
		t.Errorf("Route = %q, want /notices/presentations", n.Route)
	}
	if string(n.Body) != `{"said":"E1"}` {
		t.Errorf("Body = %s, want notice payload", n.Body)
	}
}

func TestServeHTTPRejectsNonPost(t *testing.T) {
	q := New()
	req := httptest.NewRequest(http.MethodGet, "/notices/presentations", nil)
	rr := httptest.NewRecorder()

	q.ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rr.Code)
	}
}

func TestNextFIFOOrdering(t *testing.T) {
	q := New()
	for _, body := range []string{"first", "second"} {
		req := httptest.NewRequest(http.MethodPost, "/n", strings.NewReader(body))
		q.ServeHTTP(httptest.NewRecorder(), req)
	}

	n1, _, _ := q.Next(context.Background())
	if string(n1.Body) != "first" {
		t.Errorf("first notice = %s, want first", n1.Body)
	}
	n2, _, _ := q.Next(context.Background())
	if string(n2.Body) != "second" {
		t.Errorf("second notice = %s, want second", n2.Body)
	}
	if _, ok, _ := q.Next(context.Background()); ok {
		t.Error("expected empty queue after draining both notices")
	}
}
