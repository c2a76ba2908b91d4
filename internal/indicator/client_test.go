package indicator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientComputeSkipsWarmupNulls(t *testing.T) {
	bars := makeBars("SPY", "2024-01-02", 4)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/indicator" {
			t.Errorf("path = %q, want /indicator", r.URL.Path)
		}
		var req indicatorRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Indicator != "RSI" {
			t.Errorf("indicator = %q, want RSI", req.Indicator)
		}
		if len(req.Prices) != len(bars) {
			t.Errorf("got %d prices, want %d", len(req.Prices), len(bars))
		}
		if len(req.High) != 0 || len(req.Volume) != 0 {
			t.Error("close-family request should not carry high or volume arrays")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"values": []any{nil, nil, 48.5, 51.2},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	series, err := client.Compute(context.Background(), Request{Symbol: "SPY", Type: "RSI", Params: map[string]float64{"period": 2}}, bars)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if len(series) != 2 {
		t.Fatalf("series has %d values, want 2 (warm-up nulls skipped)", len(series))
	}
	if got := series[bars[2].Date()]; got != 48.5 {
		t.Errorf("series[%s] = %v, want 48.5", bars[2].Date(), got)
	}
	if got := series[bars[3].Date()]; got != 51.2 {
		t.Errorf("series[%s] = %v, want 51.2", bars[3].Date(), got)
	}
}

func TestClientComputeHLCVFamily(t *testing.T) {
	bars := makeBars("SPY", "2024-01-02", 3)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req indicatorRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if len(req.High) != 3 || len(req.Low) != 3 || len(req.Close) != 3 || len(req.Volume) != 3 {
			t.Errorf("MFI request missing arrays: high=%d low=%d close=%d volume=%d",
				len(req.High), len(req.Low), len(req.Close), len(req.Volume))
		}
		if len(req.Prices) != 0 {
			t.Error("MFI request should not carry a prices array")
		}
		json.NewEncoder(w).Encode(map[string]any{"values": []any{nil, 40.0, 60.0}})
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	if _, err := client.Compute(context.Background(), Request{Symbol: "SPY", Type: "MFI"}, bars); err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
}

func TestClientComputeLengthMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"values": []any{1.0}})
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	_, err := client.Compute(context.Background(), Request{Symbol: "SPY", Type: "SMA"}, makeBars("SPY", "2024-01-02", 3))
	if err == nil {
		t.Fatal("expected an error when value count does not match bar count")
	}
}

func TestClientComputeServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "talib blew up", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	_, err := client.Compute(context.Background(), Request{Symbol: "SPY", Type: "SMA"}, makeBars("SPY", "2024-01-02", 3))
	if err == nil {
		t.Fatal("expected an error for a non-200 response")
	}
}

func TestClientComputeUnknownType(t *testing.T) {
	client := NewClient("http://localhost:0", time.Second)
	_, err := client.Compute(context.Background(), Request{Symbol: "SPY", Type: "FOURIER"}, makeBars("SPY", "2024-01-02", 3))
	if err == nil {
		t.Fatal("expected an error for an unknown indicator type")
	}
}
