// Package punchfeed pulls attendance punches from the external device
// gateway. The gateway aggregates the biometric terminals and exposes a
// plain JSON feed, so this client stays a thin HTTP adapter.
package punchfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"careops_backend/internal/hr/service"
	"careops_backend/platform/config"
	"careops_backend/platform/logger"
)

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *logger.Logger
}

type feedPunch struct {
	EmployeeID string     `json:"employeeId"`
	CheckIn    *time.Time `json:"checkIn"`
	CheckOut   *time.Time `json:"checkOut"`
}

// NewClient returns nil when no feed URL is configured; callers treat a
// nil client as "attendance sync disabled".
func NewClient(cfg config.PunchFeedConfig, log *logger.Logger) *Client {
	if cfg.GetPunchFeedURL() == "" {
		return nil
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.GetPunchFeedURL(), "/"),
		apiKey:  cfg.GetPunchFeedKey(),
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}
}

func (c *Client) Punches(ctx context.Context, day time.Time) ([]service.Punch, error) {
	url := fmt.Sprintf("%s/punches?day=%s", c.baseURL, day.Format("2006-01-02"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("punch feed request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("punch feed returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var raw []feedPunch
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode punch feed response: %w", err)
	}

	punches := make([]service.Punch, 0, len(raw))
	for _, p := range raw {
		employeeID, err := uuid.Parse(p.EmployeeID)
		if err != nil {
			c.log.Warn("skipping punch with bad employee id", "employeeId", p.EmployeeID)
			continue
		}
		punches = append(punches, service.Punch{
			EmployeeID: employeeID,
			Day:        day,
			CheckIn:    p.CheckIn,
			CheckOut:   p.CheckOut,
			Source:     "DEVICE_FEED",
		})
	}

	return punches, nil
}
