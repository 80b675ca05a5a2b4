// Package insights proxies financial snapshots to the upstream advisor
// service. Every call has a deterministic local fallback so the product keeps
// working when the advisor is unreachable, slow, or returns garbage; callers
// never see an error from this package.
package insights

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"finbook/internal/core"
	"finbook/internal/log"
)

// Client calls the advisor API. A nil or URL-less client serves fallbacks
// only, which is the configuration used in tests and offline deployments.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *log.Logger
}

// NewClient creates an advisor client. An empty baseURL disables remote calls.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *log.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.WithComponent(log.ComponentAdvisor),
	}
}

type insightsRequest struct {
	Snapshot core.Snapshot `json:"snapshot"`
}

type insightsResponse struct {
	Insights []core.Insight `json:"insights"`
}

// Insights returns advisor recommendations for a month snapshot.
func (c *Client) Insights(ctx context.Context, snap core.Snapshot) []core.Insight {
	var resp insightsResponse
	if err := c.post(ctx, "/insights", insightsRequest{Snapshot: snap}, &resp); err != nil {
		c.fallback(ctx, "/insights", err)
		return core.FallbackInsights(snap)
	}
	if len(resp.Insights) == 0 {
		return core.FallbackInsights(snap)
	}
	return resp.Insights
}

type categorizeRequest struct {
	Description string `json:"description"`
}

type categorizeResponse struct {
	Category string `json:"category"`
}

// Categorize suggests an expense category for a free-text description.
func (c *Client) Categorize(ctx context.Context, description string) core.ExpenseCategory {
	var resp categorizeResponse
	if err := c.post(ctx, "/categorize", categorizeRequest{Description: description}, &resp); err != nil {
		c.fallback(ctx, "/categorize", err)
		return core.FallbackCategory(description)
	}
	category := core.ExpenseCategory(resp.Category)
	if category.Validate() != nil {
		// Advisor invented a category outside the closed enum.
		return core.FallbackCategory(description)
	}
	return category
}

type healthResponse struct {
	Score     int      `json:"score"`
	Summary   string   `json:"feedback"`
	Strengths []string `json:"strengths"`
	Concerns  []string `json:"concerns"`
}

// AnalyzeHealth returns a 0-100 financial health score with commentary.
func (c *Client) AnalyzeHealth(ctx context.Context, snap core.Snapshot) core.HealthReport {
	var resp healthResponse
	if err := c.post(ctx, "/analyze-health", insightsRequest{Snapshot: snap}, &resp); err != nil {
		c.fallback(ctx, "/analyze-health", err)
		return core.FallbackHealthReport(snap)
	}
	if resp.Score < 0 || resp.Score > 100 || resp.Summary == "" {
		return core.FallbackHealthReport(snap)
	}
	return core.HealthReport{
		Score:     resp.Score,
		Summary:   resp.Summary,
		Strengths: resp.Strengths,
		Concerns:  resp.Concerns,
	}
}

type prioritizeRequest struct {
	Goals []core.Goal `json:"goals"`
}

type prioritizeResponse struct {
	Priorities []core.GoalPriority `json:"priorities"`
}

// PrioritizeGoals orders goals by suggested focus.
func (c *Client) PrioritizeGoals(ctx context.Context, goals []core.Goal) []core.GoalPriority {
	if len(goals) == 0 {
		return nil
	}
	var resp prioritizeResponse
	if err := c.post(ctx, "/prioritize-goals", prioritizeRequest{Goals: goals}, &resp); err != nil {
		c.fallback(ctx, "/prioritize-goals", err)
		return core.FallbackGoalPriorities(goals)
	}
	if len(resp.Priorities) != len(goals) {
		return core.FallbackGoalPriorities(goals)
	}
	return resp.Priorities
}

type goalAdviceRequest struct {
	Goal     core.Goal     `json:"goal"`
	Snapshot core.Snapshot `json:"snapshot"`
}

type goalAdviceResponse struct {
	Recommendations []string `json:"recommendations"`
}

// GoalRecommendations returns contribution advice for a single goal.
func (c *Client) GoalRecommendations(ctx context.Context, goal core.Goal, snap core.Snapshot) []string {
	var resp goalAdviceResponse
	if err := c.post(ctx, "/goal-recommendations", goalAdviceRequest{Goal: goal, Snapshot: snap}, &resp); err != nil {
		c.fallback(ctx, "/goal-recommendations", err)
		return core.FallbackGoalAdvice(goal, snap)
	}
	if len(resp.Recommendations) == 0 {
		return core.FallbackGoalAdvice(goal, snap)
	}
	return resp.Recommendations
}

type spendingResponse struct {
	Areas []core.SpendingArea `json:"areas"`
}

// AnalyzeSpending flags categories with optimization potential.
func (c *Client) AnalyzeSpending(ctx context.Context, snap core.Snapshot) []core.SpendingArea {
	var resp spendingResponse
	if err := c.post(ctx, "/analyze-spending", insightsRequest{Snapshot: snap}, &resp); err != nil {
		c.fallback(ctx, "/analyze-spending", err)
		return core.FallbackSpendingAreas(snap)
	}
	return resp.Areas
}

// post performs a single JSON request attempt. Any failure cause, dial error,
// timeout, non-2xx status, or undecodable body, comes back as an error so the
// caller takes the same fallback path regardless.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("advisor disabled")
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("advisor request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("advisor returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode advisor response: %w", err)
	}
	return nil
}

func (c *Client) fallback(ctx context.Context, path string, err error) {
	c.logger.WarnContext(ctx, "advisor call failed, using local fallback",
		log.FieldPath, path,
		log.FieldError, err.Error())
}
