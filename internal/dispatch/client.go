package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"shuttleops-backend/internal/models"
)

// Client talks to the dispatch backend over HTTP with a bearer service token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a dispatch backend client
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("dispatch request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("dispatch returned status %d: %s", resp.StatusCode, string(data))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode dispatch response: %w", err)
		}
	}
	return nil
}

// ListRoutes fetches routes matching the filter, stops included.
func (c *Client) ListRoutes(ctx context.Context, filter ListFilter) ([]models.Route, error) {
	query := url.Values{}
	if filter.From != nil {
		query.Set("from", filter.From.UTC().Format("2006-01-02"))
	}
	if filter.To != nil {
		query.Set("to", filter.To.UTC().Format("2006-01-02"))
	}
	if filter.Status != "" {
		query.Set("status", filter.Status)
	}
	if filter.Limit > 0 {
		query.Set("limit", strconv.Itoa(filter.Limit))
	}

	var routes []models.Route
	path := fmt.Sprintf("/drivers/%s/routes", url.PathEscape(filter.DriverID))
	if err := c.do(ctx, http.MethodGet, path, query, nil, &routes); err != nil {
		return nil, err
	}
	return routes, nil
}

// GetRoute fetches full route detail including stops.
func (c *Client) GetRoute(ctx context.Context, routeID string) (*models.Route, error) {
	var route models.Route
	path := fmt.Sprintf("/routes/%s", url.PathEscape(routeID))
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &route); err != nil {
		return nil, err
	}
	return &route, nil
}

// UpdateRouteStatus transitions a route and returns the updated record.
func (c *Client) UpdateRouteStatus(ctx context.Context, routeID, status string) (*models.Route, error) {
	var route models.Route
	path := fmt.Sprintf("/routes/%s/status", url.PathEscape(routeID))
	body := models.UpdateRouteStatusRequest{Status: status}
	if err := c.do(ctx, http.MethodPatch, path, nil, body, &route); err != nil {
		return nil, err
	}
	return &route, nil
}

// CheckinStop marks a stop completed (or skipped) on the backend.
func (c *Client) CheckinStop(ctx context.Context, routeID, stopID string, skipped bool) error {
	path := fmt.Sprintf("/routes/%s/stops/%s/checkin", url.PathEscape(routeID), url.PathEscape(stopID))
	body := models.CheckinStopRequest{Skipped: skipped}
	return c.do(ctx, http.MethodPost, path, nil, body, nil)
}

// PushLocation relays one GPS sample. Callers treat this as fire-and-forget.
func (c *Client) PushLocation(ctx context.Context, push LocationPush) error {
	path := fmt.Sprintf("/drivers/%s/location", url.PathEscape(push.DriverID))
	return c.do(ctx, http.MethodPost, path, nil, push, nil)
}

// RecordRouteCompletion writes the secondary completion record. Best-effort:
// callers log failures without rolling back the status transition.
func (c *Client) RecordRouteCompletion(ctx context.Context, routeID string) error {
	path := fmt.Sprintf("/routes/%s/completions", url.PathEscape(routeID))
	return c.do(ctx, http.MethodPost, path, nil, nil, nil)
}

// ListShiftTemplates fetches the driver's recurring shift patterns for
// calendar synthesis.
func (c *Client) ListShiftTemplates(ctx context.Context, driverID string) ([]models.ShiftTemplate, error) {
	var templates []models.ShiftTemplate
	path := fmt.Sprintf("/drivers/%s/shift-templates", url.PathEscape(driverID))
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &templates); err != nil {
		return nil, err
	}
	return templates, nil
}
