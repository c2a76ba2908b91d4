package indicator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"maestro/internal/domain"
)

// Client calls the external indicator-calculation service. The service is a
// deterministic pure function of price arrays; no indicator math lives on
// this side of the wire.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

// NewClient creates a Client for the service at baseURL with the given
// request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		log:        slog.Default().With("component", "indicator-client"),
	}
}

// indicatorRequest is the wire format for POST /indicator. The service
// dispatches on which arrays are present, so only the family-appropriate
// fields are populated.
type indicatorRequest struct {
	Indicator string             `json:"indicator"`
	Params    map[string]float64 `json:"params,omitempty"`
	Prices    []float64          `json:"prices,omitempty"`
	High      []float64          `json:"high,omitempty"`
	Low       []float64          `json:"low,omitempty"`
	Close     []float64          `json:"close,omitempty"`
	Volume    []float64          `json:"volume,omitempty"`
}

type indicatorResponse struct {
	Values []*float64 `json:"values"`
}

// Compute sends the bar series to the indicator service and returns the
// resulting Series keyed by bar date. Null values (warm-up window) are
// omitted from the result.
func (c *Client) Compute(ctx context.Context, req Request, bars []domain.Bar) (Series, error) {
	family, err := FamilyOf(req.Type)
	if err != nil {
		return nil, err
	}

	body := indicatorRequest{
		Indicator: req.Type,
		Params:    req.Params,
	}
	switch family {
	case FamilyClose:
		body.Prices = closes(bars)
	case FamilyHLC:
		body.High, body.Low, body.Close = highs(bars), lows(bars), closes(bars)
	case FamilyHLCV:
		body.High, body.Low, body.Close = highs(bars), lows(bars), closes(bars)
		body.Volume = volumes(bars)
	case FamilyCloseVolume:
		body.Close, body.Volume = closes(bars), volumes(bars)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding indicator request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/indicator", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("indicator service %s: %w", req.Key(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("indicator service %s: status %d: %s", req.Key(), resp.StatusCode, msg)
	}

	var decoded indicatorResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding indicator response %s: %w", req.Key(), err)
	}
	if len(decoded.Values) != len(bars) {
		return nil, fmt.Errorf("indicator service %s: got %d values for %d bars", req.Key(), len(decoded.Values), len(bars))
	}

	series := make(Series, len(bars))
	for i, v := range decoded.Values {
		if v == nil {
			continue
		}
		series[bars[i].Date()] = *v
	}
	return series, nil
}

func closes(bars []domain.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

func highs(bars []domain.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.High
	}
	return out
}

func lows(bars []domain.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Low
	}
	return out
}

func volumes(bars []domain.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = float64(b.Volume)
	}
	return out
}
