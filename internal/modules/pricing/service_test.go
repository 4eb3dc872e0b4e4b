package pricing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"smartride/internal/types"
)

func newTestService(t *testing.T, status int, body string, got *predictRequest, calls *atomic.Int32) *Service {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost || r.URL.Path != "/predict_ride" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got != nil {
			_ = json.NewDecoder(r.Body).Decode(got)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewService(srv.URL+"/predict_ride", srv.Client(), time.Second, nil, zap.NewNop())
}

func testRequest() Request {
	return Request{
		Pickup:     types.GeoPoint{Lat: 13.3409, Lng: 74.7421},
		Drop:       types.GeoPoint{Lat: 13.3525, Lng: 74.7868},
		DistanceKm: 6.2,
		HourOfDay:  18,
		Preference: PreferenceCheapest,
	}
}

func TestPredict_RequestBody(t *testing.T) {
	var calls atomic.Int32
	var got predictRequest
	svc := newTestService(t, http.StatusOK, `[]`, &got, &calls)

	svc.Predict(context.Background(), testRequest())

	want := predictRequest{StartLat: 13.3409, StartLon: 74.7421, EndLat: 13.3525, EndLon: 74.7868, RoadDistance: 6.2, Hour: 18, Preference: PreferenceCheapest}
	if got != want {
		t.Fatalf("request body = %+v, want %+v", got, want)
	}
}

func TestPredict_ResponseShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []RideOffer
	}{
		{
			name: "bare list",
			body: `[{"vehicle":"Auto","fare":84.6,"eta":7,"distance":6.2,"demand":"High"},
			        {"vehicle":"Bike","fare":52,"eta":5,"distance":6.2,"demand":"Normal"}]`,
			want: []RideOffer{
				{VehicleClass: "Auto", Price: types.Rupees(85), ETAMinutes: 7, DistanceKm: 6.2, SurgeActive: true},
				{VehicleClass: "Bike", Price: types.Rupees(52), ETAMinutes: 5, DistanceKm: 6.2},
			},
		},
		{
			name: "rides envelope with long names",
			body: `{"rides":[{"vehicle":"Sedan","price":210,"eta_minutes":9,"distance_km":6.5,"surge":true}]}`,
			want: []RideOffer{
				{VehicleClass: "Sedan", Price: types.Rupees(210), ETAMinutes: 9, DistanceKm: 6.5, SurgeActive: true},
			},
		},
		{
			name: "missing distance uses route distance, malformed and duplicate entries dropped",
			body: `[{"vehicle":"Mini","fare":150,"eta":6},{"vehicle":"","fare":1},{"vehicle":"SUV"},{"vehicle":"Mini","fare":1}]`,
			want: []RideOffer{
				{VehicleClass: "Mini", Price: types.Rupees(150), ETAMinutes: 6, DistanceKm: 6.2},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			svc := newTestService(t, http.StatusOK, tt.body, nil, &calls)
			got := svc.Predict(context.Background(), testRequest())
			if len(got) != len(tt.want) {
				t.Fatalf("got %d offers, want %d: %+v", len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("offer %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestPredict_FailuresAreEmptyWithoutRetry(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{}`},
		{name: "error object", status: http.StatusOK, body: `{"error":"model not loaded"}`},
		{name: "garbage", status: http.StatusOK, body: `<html>`},
		{name: "empty", status: http.StatusOK, body: ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			svc := newTestService(t, tt.status, tt.body, nil, &calls)
			got := svc.Predict(context.Background(), testRequest())
			if got == nil || len(got) != 0 {
				t.Fatalf("expected empty non-nil slice, got %#v", got)
			}
			if calls.Load() != 1 {
				t.Fatalf("expected exactly one call, got %d", calls.Load())
			}
		})
	}
}

func TestPredict_Unreachable(t *testing.T) {
	svc := NewService("http://127.0.0.1:1/predict_ride", nil, 200*time.Millisecond, nil, zap.NewNop())
	if got := svc.Predict(context.Background(), testRequest()); len(got) != 0 {
		t.Fatalf("expected no offers, got %v", got)
	}
}

func TestParsePreference(t *testing.T) {
	tests := []struct {
		in      string
		want    Preference
		wantErr bool
	}{
		{in: "", want: PreferenceBalanced},
		{in: "Fastest", want: PreferenceFastest},
		{in: " cheapest ", want: PreferenceCheapest},
		{in: "luxury", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParsePreference(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParsePreference(%q) = %q, %v", tt.in, got, err)
		}
	}
}
