package apiclient

import (
	"context"
	"net/http"
	"time"

	"github.com/nerrad567/gatekeeper-core/internal/audit"
	"github.com/nerrad567/gatekeeper-core/internal/dashboard"
)

// Overview returns device counts.
func (c *Client) Overview(ctx context.Context) (dashboard.Counts, error) {
	var out struct {
		Overview dashboard.Counts `json:"overview"`
	}
	err := c.do(ctx, http.MethodGet, "/dashboard/overview", nil, &out, nil)
	return out.Overview, err
}

// SystemStatus returns the overall health.
func (c *Client) SystemStatus(ctx context.Context) (dashboard.Health, error) {
	var out struct {
		Status dashboard.Health `json:"status"`
	}
	err := c.do(ctx, http.MethodGet, "/dashboard/system-status", nil, &out, nil)
	return out.Status, err
}

// Alerts returns current warnings.
func (c *Client) Alerts(ctx context.Context) ([]dashboard.Alert, error) {
	var out struct {
		Alerts []dashboard.Alert `json:"alerts"`
	}
	err := c.do(ctx, http.MethodGet, "/dashboard/alerts", nil, &out, nil)
	return out.Alerts, err
}

// RecentActivity returns the latest gate commands.
func (c *Client) RecentActivity(ctx context.Context) ([]audit.AuditLog, error) {
	var out struct {
		Activities []audit.AuditLog `json:"activities"`
	}
	err := c.do(ctx, http.MethodGet, "/dashboard/recent-activity", nil, &out, nil)
	return out.Activities, err
}

// AuditQuery filters the audit log. Zero fields are not sent.
type AuditQuery struct {
	Action     string
	EntityType string
	EntityID   string
	Operator   string
	Outcome    string
	Since      time.Time
	Page
}

// AuditLogs lists audit entries, newest first.
func (c *Client) AuditLogs(ctx context.Context, q AuditQuery) (*audit.ListResult, error) {
	params := q.Page.query()
	for k, v := range map[string]string{
		"action":      q.Action,
		"entity_type": q.EntityType,
		"entity_id":   q.EntityID,
		"operator":    q.Operator,
		"outcome":     q.Outcome,
	} {
		if v != "" {
			params[k] = v
		}
	}
	if !q.Since.IsZero() {
		params["since"] = q.Since.UTC().Format(time.RFC3339)
	}

	var out audit.ListResult
	if err := c.do(ctx, http.MethodGet, "/audit", nil, &out, params); err != nil {
		return nil, err
	}
	return &out, nil
}
