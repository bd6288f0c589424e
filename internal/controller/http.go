package controller

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/nerrad567/gatekeeper-core/internal/device"
)

// Default relay paths used when a gate has no custom command.
const (
	defaultOpenPath   = "relay/open"
	defaultClosePath  = "relay/close"
	defaultStatusPath = "relay/status"
)

// statusResponse is the body of GET /relay/status.
type statusResponse struct {
	Status string `json:"status"`
}

// HTTPController drives relay boards over plain HTTP:
//
//	GET http://{controller_ip}:{controller_port}/{open_command|relay/open}
//	GET http://{controller_ip}:{controller_port}/{close_command|relay/close}
//	GET http://{controller_ip}:{controller_port}/relay/status  → {"status":"open"}
//
// Any 2xx answer to a command counts as accepted.
type HTTPController struct {
	http *resty.Client
}

// NewHTTP creates an HTTP controller. timeout caps each request in addition
// to the caller's context.
func NewHTTP(timeout time.Duration) *HTTPController {
	r := resty.New()
	r.SetTimeout(timeout)
	r.SetHeader("Accept", "application/json")
	r.SetHeader("User-Agent", "gatekeeper-core")
	return &HTTPController{http: r}
}

// Actuate implements Controller.
func (c *HTTPController) Actuate(ctx context.Context, g *device.Gate, action device.Action) error {
	url, err := commandURL(g, action)
	if err != nil {
		return err
	}

	resp, err := c.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("%w: HTTP %d", ErrRejected, resp.StatusCode())
	}
	return nil
}

// Status implements Controller.
func (c *HTTPController) Status(ctx context.Context, g *device.Gate) (device.GateStatus, error) {
	base, err := baseURL(g)
	if err != nil {
		return "", err
	}

	var body statusResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&body).
		ForceContentType("application/json").
		Get(base + "/" + defaultStatusPath)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("%w: HTTP %d", ErrRejected, resp.StatusCode())
	}

	status := device.GateStatus(strings.ToLower(strings.TrimSpace(body.Status)))
	if !status.Valid() {
		return "", fmt.Errorf("%w: status %q", ErrBadResponse, body.Status)
	}
	return status, nil
}

func baseURL(g *device.Gate) (string, error) {
	if g.ControllerIP == "" {
		return "", ErrNoAddress
	}
	return "http://" + net.JoinHostPort(g.ControllerIP, strconv.Itoa(g.ControllerPort)), nil
}

func commandURL(g *device.Gate, action device.Action) (string, error) {
	base, err := baseURL(g)
	if err != nil {
		return "", err
	}

	path := defaultOpenPath
	custom := g.OpenCommand
	if action == device.ActionClose {
		path = defaultClosePath
		custom = g.CloseCommand
	}
	if custom != "" {
		path = strings.TrimPrefix(custom, "/")
	}
	return base + "/" + path, nil
}
