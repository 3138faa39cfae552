package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prettygood-work/benefits-chat-demo/internal/api"
)

const defaultWeatherAPIURL = "https://api.open-meteo.com/v1/forecast"

type weatherArgs struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// NewWeatherTool looks up current conditions from Open-Meteo.
func NewWeatherTool(apiURL string) Tool {
	if apiURL == "" {
		apiURL = defaultWeatherAPIURL
	}
	client := &http.Client{Timeout: 10 * time.Second}

	return Tool{
		Name:        "get_weather",
		Description: "Get the current weather at a location",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"latitude":  map[string]any{"type": "number"},
				"longitude": map[string]any{"type": "number"},
			},
			"required": []string{"latitude", "longitude"},
		},
		Execute: func(ctx context.Context, args json.RawMessage) (any, error) {
			var in weatherArgs
			if err := decodeArgs(args, &in); err != nil {
				return nil, err
			}
			if in.Latitude < -90 || in.Latitude > 90 || in.Longitude < -180 || in.Longitude > 180 {
				return nil, api.E(api.KindBadRequest, "coordinates out of range")
			}

			url := fmt.Sprintf("%s?latitude=%f&longitude=%f&current=temperature_2m&hourly=temperature_2m&daily=sunrise,sunset&timezone=auto",
				apiURL, in.Latitude, in.Longitude)
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return nil, fmt.Errorf("weather: create request: %w", err)
			}
			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("weather: request failed: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
				return nil, fmt.Errorf("weather: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body)))
			}

			var forecast map[string]any
			if err := json.NewDecoder(resp.Body).Decode(&forecast); err != nil {
				return nil, fmt.Errorf("weather: decode response: %w", err)
			}
			return forecast, nil
		},
	}
}
