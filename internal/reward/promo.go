// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

package reward

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tourtracker/internal/logging"
)

// DefaultPromoURL is the Steam Web API endpoint that grants promotional items.
const DefaultPromoURL = "https://api.steampowered.com/ITFPromos_440/GrantItem/v1/"

// Hook grants the one-time reward. It returns true only when the remote
// side affirmatively confirms the grant; (false, nil) means the request
// went through but was declined.
type Hook interface {
	Grant(ctx context.Context, participant uint64) (bool, error)
}

// PromoClient grants a promotional item through the Steam Web API.
type PromoClient struct {
	url        string
	apiKey     string
	promoID    string
	httpClient *http.Client
}

// promoResponse is the GrantItem response body.
type promoResponse struct {
	Result struct {
		Status       int    `json:"status"`
		StatusDetail string `json:"statusDetail"`
		ItemID       string `json:"item_id"`
	} `json:"result"`
}

// NewPromoClient creates a GrantItem client. An empty endpoint uses DefaultPromoURL.
func NewPromoClient(endpoint, apiKey, promoID string, timeout time.Duration) *PromoClient {
	if endpoint == "" {
		endpoint = DefaultPromoURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PromoClient{
		url:     endpoint,
		apiKey:  apiKey,
		promoID: promoID,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Grant posts key, promoid and steamid as a form and reports whether
// result.status == 1.
func (c *PromoClient) Grant(ctx context.Context, participant uint64) (bool, error) {
	form := url.Values{}
	form.Set("key", c.apiKey)
	form.Set("promoid", c.promoID)
	form.Set("steamid", strconv.FormatUint(participant, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("create grant request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("grant request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return false, fmt.Errorf("read grant response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("grant returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed promoResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return false, fmt.Errorf("decode grant response: %w", err)
	}
	return parsed.Result.Status == 1, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// DryRunHook logs the grant it would have made and declines it, so the
// participant stays pending and nothing enters the ledger.
type DryRunHook struct{}

// Grant implements Hook.
func (DryRunHook) Grant(ctx context.Context, participant uint64) (bool, error) {
	logging.Ctx(ctx).Info().
		Str("steam64", formatID(participant)).
		Msg("Dry run: reward grant skipped")
	return false, nil
}
