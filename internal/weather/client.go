package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/skyfleet/flightsync/pkg/logger"
)

// Client handles HTTP requests to the METAR API
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a new weather API client
func NewClient(config Config, log *logger.Logger) *Client {
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.RequestTimeout,
		},
		logger: log.Named("weather-client"),
	}
}

// FetchMETAR fetches the latest METAR for the specified airport
func (c *Client) FetchMETAR(ctx context.Context, airportCode string) (*METAR, error) {
	url := fmt.Sprintf("%s/metar?ids=%s&format=json", c.config.APIBaseURL, airportCode)

	var result []METAR // API returns an array, newest first
	if err := c.fetchWithRetry(ctx, url, airportCode, &result); err != nil {
		return nil, err
	}

	if len(result) == 0 {
		return nil, fmt.Errorf("no METAR data found for %s", airportCode)
	}

	return &result[0], nil
}

// fetchWithRetry performs the HTTP request with exponential backoff
func (c *Client) fetchWithRetry(ctx context.Context, url, airportCode string, target interface{}) error {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(500*(1<<uint(attempt-1))) * time.Millisecond
			c.logger.Info("Retrying METAR fetch",
				logger.String("airport", airportCode),
				logger.Int("attempt", attempt),
				logger.String("backoff", backoff.String()))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("error building weather request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("error making request to weather API: %w", err)
			c.logger.Warn("Weather API request failed, may retry",
				logger.String("airport", airportCode),
				logger.Error(err),
				logger.Int("attempt", attempt+1),
				logger.Int("max_attempts", c.config.MaxRetries+1))
			continue
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastErr = fmt.Errorf("unexpected status code: %d", resp.StatusCode)
			c.logger.Warn("Weather API returned non-OK status, may retry",
				logger.String("airport", airportCode),
				logger.Int("status_code", resp.StatusCode),
				logger.Int("attempt", attempt+1),
				logger.Int("max_attempts", c.config.MaxRetries+1))
			continue
		}

		err = json.NewDecoder(resp.Body).Decode(target)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("error decoding weather data: %w", err)
			c.logger.Warn("Failed to decode weather data, may retry",
				logger.String("airport", airportCode),
				logger.Error(err),
				logger.Int("attempt", attempt+1),
				logger.Int("max_attempts", c.config.MaxRetries+1))
			continue
		}

		if attempt > 0 {
			c.logger.Info("Fetched weather data after retries",
				logger.String("airport", airportCode),
				logger.Int("attempts_needed", attempt+1))
		}
		return nil
	}

	c.logger.Error("All attempts to fetch weather data failed",
		logger.String("airport", airportCode),
		logger.Error(lastErr),
		logger.Int("max_attempts", c.config.MaxRetries+1))
	return lastErr
}
