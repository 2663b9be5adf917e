package civi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"civisync/core/utils"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const apiVersion = "3"

// Client performs CiviCRM REST API calls.
type Client interface {
	// Call dispatches a single API call. The params must contain "entity" and
	// "action"; authentication and version metadata are injected by the client.
	Call(ctx context.Context, params Params) (*Result, error)
}

// NewClient creates a new REST client based on the configuration.
func NewClient(cfg Config, log *zap.Logger) Client {
	// Ensure timeout defaults if not set
	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = 30
	}
	timeoutDuration := time.Duration(timeout) * time.Second

	// Create custom transport with strict timeouts
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeoutDuration, // Connection setup timeout
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   timeoutDuration,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: timeoutDuration,
	}

	return &restClient{
		cfg:     cfg,
		restURL: cfg.RestURL(),
		http: &http.Client{
			Transport: transport,
			Timeout:   timeoutDuration,
		},
		log: log,
	}
}

type restClient struct {
	cfg     Config
	restURL string
	http    *http.Client
	log     *zap.Logger
}

func (c *restClient) Call(ctx context.Context, params Params) (*Result, error) {
	start := time.Now()

	action := utils.ToString(params["action"])

	form := url.Values{}
	for key, value := range params {
		form.Set(key, utils.ToString(value))
	}
	form.Set("api_key", c.cfg.UserKey)
	form.Set("key", c.cfg.SiteKey)
	form.Set("sequential", "1")
	form.Set("json", "1")
	form.Set("version", apiVersion)
	if c.cfg.Debug {
		form.Set("debug", "1")
	}

	var req *http.Request
	var err error
	if isMutatingAction(action) {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.restURL,
			strings.NewReader(form.Encode()))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, c.restURL+"?"+form.Encode(), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logCall(zap.ErrorLevel, "API call failed", params, start, zap.Error(err))
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	c.logCall(zap.DebugLevel, "API call completed", params, start,
		zap.Int("status", resp.StatusCode))

	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{StatusCode: resp.StatusCode, Err: err}
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode reply: %w", err)}
	}

	if result.IsError != 0 {
		c.logCall(zap.ErrorLevel, "API call error: "+result.ErrorMessage, params, start)
		return nil, &APIError{Message: result.ErrorMessage}
	}

	return &result, nil
}

// logCall emits the per-call record: action, entity type, primary/secondary
// identifiers and duration, regardless of outcome.
func (c *restClient) logCall(level zapcore.Level, msg string, params Params, start time.Time, extra ...zap.Field) {
	fields := []zap.Field{
		zap.String("action", utils.ToString(params["action"])),
		zap.String("entity", utils.ToString(params["entity"])),
		zap.String("primary_id", utils.ToString(params["id"])),
		zap.String("secondary_id", utils.ToString(params["external_identifier"])),
		zap.Duration("duration", time.Since(start)),
	}
	fields = append(fields, extra...)
	if ce := c.log.Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

// isMutatingAction reports whether the action semantics require a POST.
func isMutatingAction(action string) bool {
	return action == "create" || action == "delete"
}
