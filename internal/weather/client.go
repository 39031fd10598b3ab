// Package weather fetches current conditions from the OpenWeatherMap API.
package weather

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrMissingAPIKey is returned when the client was built without credentials.
var ErrMissingAPIKey = errors.New("weather: api key not configured")

// Observation is the current weather at a location.
type Observation struct {
	Location      string
	Temperature   float64
	WindSpeed     float64
	Precipitation float64
	ObservedAt    time.Time
}

// Client queries the current weather endpoint.
type Client struct {
	http   *resty.Client
	apiKey string
}

// NewClient constructs a client against baseURL, normally https://api.openweathermap.org.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Accept", "application/json")
	return &Client{http: client, apiKey: apiKey}
}

type currentResponse struct {
	Name string `json:"name"`
	Dt   int64  `json:"dt"`
	Main struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Rain *struct {
		OneHour float64 `json:"1h"`
	} `json:"rain"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// Current returns metric conditions for location. Precipitation is the last
// hour of rain, zero when the API reports none.
func (c *Client) Current(ctx context.Context, location string) (Observation, error) {
	if c.apiKey == "" {
		return Observation{}, ErrMissingAPIKey
	}

	var (
		result  currentResponse
		failure errorResponse
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":     location,
			"appid": c.apiKey,
			"units": "metric",
		}).
		SetResult(&result).
		SetError(&failure).
		Get("/data/2.5/weather")
	if err != nil {
		return Observation{}, fmt.Errorf("weather: fetch %s: %w", location, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return Observation{}, fmt.Errorf("weather: fetch %s: status %d: %s", location, resp.StatusCode(), failure.Message)
	}

	obs := Observation{
		Location:    location,
		Temperature: result.Main.Temp,
		WindSpeed:   result.Wind.Speed,
	}
	if result.Rain != nil {
		obs.Precipitation = result.Rain.OneHour
	}
	if result.Dt > 0 {
		obs.ObservedAt = time.Unix(result.Dt, 0).UTC()
	}
	return obs, nil
}
