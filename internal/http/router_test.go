// README: End-to-end HTTP tests over the gin router with in-memory storage.
package http_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	httptransport "carpool/internal/http"
	"carpool/internal/infra"
	"carpool/internal/notify"
	"carpool/internal/service"
	"carpool/internal/storage"
)

func buildRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mem := storage.NewMemory()
	events := &notify.Recorder{}
	return httptransport.NewRouter(httptransport.RouterDeps{
		Trips:     service.NewTripService(mem, nil),
		Bookings:  service.NewBookingService(mem, events),
		Cascade:   service.NewCascadeService(mem, events),
		Lifecycle: service.NewLifecycleService(mem, nil, 24),
		Verifier:  infra.DevVerifier{},
	})
}

func doRequest(r *gin.Engine, method, path string, body any, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
}

func createTrip(t *testing.T, r *gin.Engine, seats int) string {
	t.Helper()
	dep := time.Now().UTC().Add(2 * time.Hour)
	w := doRequest(r, http.MethodPost, "/api/trips", map[string]any{
		"origin":               map[string]any{"text": "Taipei"},
		"destination":          map[string]any{"text": "Taichung"},
		"departure_at":         dep,
		"estimated_arrival_at": dep.Add(2 * time.Hour),
		"price_per_seat":       map[string]any{"amount": 300},
		"total_seats":          seats,
		"publish":              true,
	}, "d1:driver")
	if w.Code != http.StatusCreated {
		t.Fatalf("create trip: %d %s", w.Code, w.Body.String())
	}
	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	decode(t, w, &out)
	if out.Status != "published" {
		t.Fatalf("expected published trip, got %s", out.Status)
	}
	return out.ID
}

func requestSeat(t *testing.T, r *gin.Engine, tripID, passenger string) string {
	t.Helper()
	w := doRequest(r, http.MethodPost, "/api/trips/"+tripID+"/bookings", map[string]any{"seats": 1}, passenger)
	if w.Code != http.StatusCreated {
		t.Fatalf("book: %d %s", w.Code, w.Body.String())
	}
	var out struct {
		Booking struct {
			ID string `json:"id"`
		} `json:"booking"`
	}
	decode(t, w, &out)
	return out.Booking.ID
}

func TestUnauthenticatedRequestsAreRejected(t *testing.T) {
	r := buildRouter(t)
	if w := doRequest(r, http.MethodGet, "/api/passengers/me/bookings", nil, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if w := doRequest(r, http.MethodGet, "/health", nil, ""); w.Code != http.StatusOK {
		t.Fatalf("health should be public, got %d", w.Code)
	}
}

func TestCreateTripRequiresDriverRole(t *testing.T) {
	r := buildRouter(t)
	w := doRequest(r, http.MethodPost, "/api/trips", map[string]any{"total_seats": 2}, "p1")
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestBookingFlowOverHTTP(t *testing.T) {
	r := buildRouter(t)
	tripID := createTrip(t, r, 1)
	first := requestSeat(t, r, tripID, "p1")
	second := requestSeat(t, r, tripID, "p2")

	if w := doRequest(r, http.MethodPost, "/api/trips/"+tripID+"/bookings", nil, "p1"); w.Code != http.StatusConflict {
		t.Fatalf("duplicate booking: expected 409, got %d", w.Code)
	}
	if w := doRequest(r, http.MethodPost, "/api/bookings/"+first+"/accept", nil, "p2"); w.Code != http.StatusForbidden {
		t.Fatalf("accept by non-owner: expected 403, got %d", w.Code)
	}
	if w := doRequest(r, http.MethodPost, "/api/bookings/"+first+"/accept", nil, "d1:driver"); w.Code != http.StatusOK {
		t.Fatalf("accept: %d %s", w.Code, w.Body.String())
	}
	if w := doRequest(r, http.MethodPost, "/api/bookings/"+second+"/accept", nil, "d1:driver"); w.Code != http.StatusConflict {
		t.Fatalf("accept over capacity: expected 409, got %d", w.Code)
	}

	w := doRequest(r, http.MethodGet, "/api/trips/"+tripID, nil, "p2")
	var view struct {
		SeatsLeft int `json:"seats_left"`
	}
	decode(t, w, &view)
	if view.SeatsLeft != 0 {
		t.Fatalf("expected 0 seats left, got %d", view.SeatsLeft)
	}

	w = doRequest(r, http.MethodPost, "/api/bookings/"+first+"/cancel", map[string]any{"reason": "sick"}, "p1")
	if w.Code != http.StatusOK {
		t.Fatalf("cancel: %d %s", w.Code, w.Body.String())
	}
	var cancel struct {
		Changed       bool `json:"changed"`
		SeatsReleased int  `json:"seats_released"`
	}
	decode(t, w, &cancel)
	if !cancel.Changed || cancel.SeatsReleased != 1 {
		t.Fatalf("unexpected cancel result: %s", w.Body.String())
	}
	if bytes.Contains(w.Body.Bytes(), []byte("refund")) {
		t.Fatalf("refund flag must not be exposed: %s", w.Body.String())
	}

	if w := doRequest(r, http.MethodPost, "/api/bookings/"+second+"/accept", nil, "d1:driver"); w.Code != http.StatusOK {
		t.Fatalf("accept after cancel: %d %s", w.Code, w.Body.String())
	}
}

func TestCancelTripOverHTTP(t *testing.T) {
	r := buildRouter(t)
	tripID := createTrip(t, r, 2)
	pending := requestSeat(t, r, tripID, "p1")
	accepted := requestSeat(t, r, tripID, "p2")
	if w := doRequest(r, http.MethodPost, "/api/bookings/"+accepted+"/accept", nil, "d1:driver"); w.Code != http.StatusOK {
		t.Fatalf("accept: %d", w.Code)
	}

	w := doRequest(r, http.MethodPost, "/api/trips/"+tripID+"/cancel", nil, "d1:driver")
	if w.Code != http.StatusOK {
		t.Fatalf("cancel trip: %d %s", w.Code, w.Body.String())
	}
	var res struct {
		Effects service.CascadeEffects `json:"effects"`
	}
	decode(t, w, &res)
	if res.Effects.DeclinedAuto != 1 || res.Effects.CanceledByPlatform != 1 || res.Effects.RefundsCreated != 1 {
		t.Fatalf("unexpected effects: %+v", res.Effects)
	}

	w = doRequest(r, http.MethodGet, "/api/bookings/"+pending, nil, "p1")
	var b struct {
		Status string `json:"status"`
	}
	decode(t, w, &b)
	if b.Status != "declined_auto" {
		t.Fatalf("expected declined_auto, got %s", b.Status)
	}

	w = doRequest(r, http.MethodPost, "/api/trips/"+tripID+"/cancel", nil, "d1:driver")
	if w.Code != http.StatusOK {
		t.Fatalf("repeat cancel should succeed, got %d", w.Code)
	}
}

func TestInvalidIDAndAdminJobs(t *testing.T) {
	r := buildRouter(t)
	if w := doRequest(r, http.MethodGet, "/api/trips/bad!id", nil, "p1"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid id, got %d", w.Code)
	}
	if w := doRequest(r, http.MethodGet, "/api/trips/missing", nil, "p1"); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if w := doRequest(r, http.MethodPost, "/api/admin/jobs/auto-complete", nil, "p1"); w.Code != http.StatusForbidden {
		t.Fatalf("admin job without role: expected 403, got %d", w.Code)
	}
	w := doRequest(r, http.MethodPost, "/api/admin/jobs/expire-pending?ttl_hours=24", nil, "ops:admin")
	if w.Code != http.StatusOK {
		t.Fatalf("expire job: %d %s", w.Code, w.Body.String())
	}
	var out struct {
		Affected int64 `json:"affected"`
	}
	decode(t, w, &out)
	if out.Affected != 0 {
		t.Fatalf("expected nothing expired, got %d", out.Affected)
	}
	if w := doRequest(r, http.MethodPost, "/api/admin/jobs/expire-pending?ttl_hours=0", nil, "ops:admin"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero ttl, got %d", w.Code)
	}
}
