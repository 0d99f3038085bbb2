package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/limitgate/internal/dispatch"
	"github.com/friendsincode/limitgate/internal/events"
	"github.com/friendsincode/limitgate/internal/policy"
)

type memoryPolicies struct {
	mu   sync.Mutex
	recs map[string]policy.Record
	err  error
}

func (m *memoryPolicies) Lookup(_ context.Context, id string) (policy.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return policy.Record{}, m.err
	}
	rec, ok := m.recs[id]
	if !ok {
		return policy.Record{}, policy.ErrDeviceNotFound
	}
	return rec, nil
}

func (m *memoryPolicies) Put(_ context.Context, id string, rec policy.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[id] = rec
	return nil
}

type readOnlyPolicies struct{ inner *memoryPolicies }

func (r readOnlyPolicies) Lookup(ctx context.Context, id string) (policy.Record, error) {
	return r.inner.Lookup(ctx, id)
}

type fixedRand int

func (f fixedRand) IntN(int) int { return int(f) }

func newPolicies() *memoryPolicies {
	return &memoryPolicies{recs: map[string]policy.Record{
		"dev-la":  {Timezone: "America/Los_Angeles", OptOutStart: "07:00", OptOutEnd: "09:00"},
		"dev-bad": {Timezone: "America/Los_Angeles", OptOutStart: "7am", OptOutEnd: "09:00"},
	}}
}

func newRouter(t *testing.T, policies policy.Lookup, bus Publisher) chi.Router {
	t.Helper()
	svc := dispatch.New(policies, zerolog.Nop(), dispatch.WithRand(fixedRand(99)))
	r := chi.NewRouter()
	New(svc, policies, bus, zerolog.Nop()).Routes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, strings.NewReader(body)))
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("%s %s content type = %q", method, path, ct)
	}
	return rr
}

func TestScheduleResponses(t *testing.T) {
	r := newRouter(t, newPolicies(), nil)

	tests := []struct {
		name     string
		path     string
		body     string
		status   int
		contains string
	}{
		{
			name:     "accepted",
			path:     "/api/v1/schedules",
			body:     `{"devId":"dev-la","startAt":"24/06/01,10:00:00","interval":[900,1800],"maxWh":5000}`,
			status:   http.StatusOK,
			contains: `{"type":"limit","devId":"dev-la","startAt":"2024-06-01T17:00:00+00:00","interval":[900,1900],"maxWh":5000}`,
		},
		{
			name:     "root path",
			path:     "/",
			body:     `{"devId":"dev-la","startAt":"24/06/01,10:00:00","interval":[60],"maxWh":1.5}`,
			status:   http.StatusOK,
			contains: `"maxWh":1.5`,
		},
		{
			name:     "opted out",
			path:     "/api/v1/schedules",
			body:     `{"devId":"dev-la","startAt":"24/06/01,08:00:00","interval":[60],"maxWh":5000}`,
			status:   http.StatusOK,
			contains: `{"message":"This device is opt out"}`,
		},
		{
			name:     "malformed start",
			path:     "/api/v1/schedules",
			body:     `{"devId":"dev-la","startAt":"2024-06-01T10:00:00","interval":[60],"maxWh":5000}`,
			status:   http.StatusBadRequest,
			contains: `"error":"malformed_request"`,
		},
		{
			name:     "not json",
			path:     "/api/v1/schedules",
			body:     `devId=dev-la`,
			status:   http.StatusBadRequest,
			contains: `"error":"malformed_request"`,
		},
		{
			name:     "unknown device",
			path:     "/api/v1/schedules",
			body:     `{"devId":"dev-nope","startAt":"24/06/01,10:00:00","interval":[60],"maxWh":5000}`,
			status:   http.StatusNotFound,
			contains: `{"error":"device_not_found"}`,
		},
		{
			name:     "invalid stored policy",
			path:     "/api/v1/schedules",
			body:     `{"devId":"dev-bad","startAt":"24/06/01,10:00:00","interval":[60],"maxWh":5000}`,
			status:   http.StatusInternalServerError,
			contains: `{"error":"invalid_policy"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, r, http.MethodPost, tt.path, tt.body)
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d body=%s", rr.Code, tt.status, rr.Body.String())
			}
			if !strings.Contains(rr.Body.String(), tt.contains) {
				t.Fatalf("body = %s, want it to contain %s", rr.Body.String(), tt.contains)
			}
		})
	}
}

func TestScheduleLookupUnavailable(t *testing.T) {
	policies := newPolicies()
	policies.err = policy.ErrLookupUnavailable
	r := newRouter(t, policies, nil)

	rr := do(t, r, http.MethodPost, "/api/v1/schedules", `{"devId":"dev-la","startAt":"24/06/01,10:00:00","interval":[60],"maxWh":1}`)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestEvaluateIsDryRun(t *testing.T) {
	r := newRouter(t, newPolicies(), nil)

	rr := do(t, r, http.MethodPost, "/api/v1/schedules/evaluate", `{"devId":"dev-la","startAt":"24/06/01,06:30:00","interval":[1800,1800],"maxWh":1}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	var got EvaluationResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := EvaluationResponse{
		DeviceID:    "dev-la",
		OptOut:      true,
		StartAtUTC:  "2024-06-01T13:30:00+00:00",
		Timezone:    "America/Los_Angeles",
		StartLocal:  "2024-06-01T06:30:00-07:00",
		EndLocal:    "2024-06-01T07:30:00-07:00",
		WindowStart: "2024-06-01T07:00:00-07:00",
		WindowEnd:   "2024-06-01T09:00:00-07:00",
	}
	if got != want {
		t.Fatalf("evaluation = %+v, want %+v", got, want)
	}
}

func TestPolicyGetAndPut(t *testing.T) {
	bus := events.NewBus()
	updates := bus.Subscribe(events.EventPolicyUpdated)
	defer bus.Unsubscribe(events.EventPolicyUpdated, updates)

	r := newRouter(t, newPolicies(), bus)

	rr := do(t, r, http.MethodGet, "/api/v1/devices/dev-la/policy", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"timezone":"America/Los_Angeles"`) {
		t.Fatalf("get = %d %s", rr.Code, rr.Body.String())
	}

	rr = do(t, r, http.MethodGet, "/api/v1/devices/dev-new/policy", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("get missing = %d", rr.Code)
	}

	rr = do(t, r, http.MethodPut, "/api/v1/devices/dev-new/policy", `{"timezone":"Europe/Berlin","opt_out_start":"22:00","opt_out_end":"23:30"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("put = %d %s", rr.Code, rr.Body.String())
	}
	select {
	case payload := <-updates:
		if payload["device_id"] != "dev-new" {
			t.Fatalf("payload = %+v", payload)
		}
	default:
		t.Fatal("no policy update event")
	}

	rr = do(t, r, http.MethodPost, "/api/v1/schedules", `{"devId":"dev-new","startAt":"24/06/01,22:10:00","interval":[60],"maxWh":1}`)
	if !strings.Contains(rr.Body.String(), "This device is opt out") {
		t.Fatalf("schedule after put = %s", rr.Body.String())
	}
}

func TestPolicyPutValidation(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"bad json", `{"timezone":`, http.StatusBadRequest},
		{"unknown zone", `{"timezone":"Nowhere/City","opt_out_start":"07:00","opt_out_end":"09:00"}`, http.StatusBadRequest},
		{"bad clock", `{"timezone":"UTC","opt_out_start":"25:00","opt_out_end":"09:00"}`, http.StatusBadRequest},
	}

	r := newRouter(t, newPolicies(), nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, r, http.MethodPut, "/api/v1/devices/dev-x/policy", tt.body)
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d", rr.Code, tt.status)
			}
		})
	}
}

func TestPolicyPutReadOnlyBackend(t *testing.T) {
	r := newRouter(t, readOnlyPolicies{newPolicies()}, nil)

	rr := do(t, r, http.MethodPut, "/api/v1/devices/dev-la/policy", `{"timezone":"UTC","opt_out_start":"07:00","opt_out_end":"09:00"}`)
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", rr.Code)
	}
}
