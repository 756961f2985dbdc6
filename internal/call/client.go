// Package call implements the chained HTTP call to a worker: circuit
// gating, trace and business header construction, outcome classification
// and breaker bookkeeping. Every failure mode resolves into a structured
// CallResult; this package never returns a Go error to its caller.
package call

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/bizobs/journeysim/internal/breaker"
	"github.com/bizobs/journeysim/pkg/domain"
	"github.com/bizobs/journeysim/pkg/trace"
	"github.com/tidwall/gjson"
)

// DefaultTimeout bounds a single worker call.
const DefaultTimeout = 15 * time.Second

// maxBodySize caps how much of a worker response is read.
const maxBodySize = 1 << 20

// passthroughHeaders are recognized inbound tracing headers forwarded
// verbatim when present, instead of synthesizing a fresh context.
var passthroughHeaders = []string{
	"traceparent",
	"tracestate",
	"x-dynatrace",
	"x-dtpc",
	"x-correlation-id",
}

// Business-context headers attached to every call for observability.
const (
	HeaderCompany  = "X-Journey-Company"
	HeaderDomain   = "X-Journey-Domain"
	HeaderIndustry = "X-Journey-Industry"
	HeaderStep     = "X-Journey-Step"
)

// HeaderDynaTrace is the vendor tag emitted per call, in the key=value
// format load-test tooling expects. An inbound x-dynatrace header always
// wins over the synthesized one.
const HeaderDynaTrace = "X-dynaTrace"

// Client implements ports.Caller.
type Client struct {
	http    *http.Client
	breaker *breaker.Breaker
	tracer  *trace.Builder
	timeout time.Duration
	logger  *slog.Logger
	hooks   domain.LifecycleHooks
}

// Option configures the client.
type Option func(*Client)

// WithTimeout overrides the per-call timeout (default 15s).
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithHTTPClient overrides the transport (tests).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithHooks registers observability callbacks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(c *Client) { c.hooks = hooks }
}

// New creates a call client. The breaker and trace builder are shared with
// the rest of the core, never owned here.
func New(br *breaker.Breaker, tracer *trace.Builder, opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{},
		breaker: br,
		tracer:  tracer,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call performs the chained HTTP POST to a worker on loopback.
//
//  1. An open circuit short-circuits without any network I/O.
//  2. Recognized inbound tracing headers pass through verbatim; otherwise
//     a fresh trace context is synthesized.
//  3. The outcome is classified into completed or a typed failure, the
//     breaker is updated, and trace info is attached either way.
func (c *Client) Call(ctx context.Context, owner domain.OwnerKey, port int, payload map[string]any, inbound http.Header) domain.CallResult {
	stepName, _ := payload["stepName"].(string)
	correlation := c.correlationID(inbound)

	if !c.breaker.CanAttempt(owner) {
		c.logger.Debug("circuit open, skipping call", "owner", owner, "step", stepName)
		res := c.Fallback(owner, stepName, domain.ErrorKindCircuitOpen, http.StatusServiceUnavailable)
		res.Trace.CorrelationID = correlation
		return res
	}

	tc := c.traceFor(inbound)
	requestTraceparent := tc.Header()
	// An inbound traceparent is forwarded verbatim by setHeaders, so the
	// diagnostics must report that header, not the rebuilt one.
	if inbound != nil {
		if v := inbound.Get(trace.HeaderTraceparent); v != "" {
			requestTraceparent = v
		}
	}

	started := time.Now()
	c.emitCall(ctx, owner, stepName)

	res := c.doCall(ctx, owner, port, payload, inbound, requestTraceparent, correlation)
	res.Trace.RequestTraceparent = requestTraceparent
	res.Trace.CorrelationID = correlation

	c.breaker.RecordOutcome(owner, res.Completed())
	c.emitReturn(ctx, owner, stepName, res, time.Since(started))
	return res
}

// Fallback synthesizes a failed result without touching the network, used
// for circuit-open short circuits and journey-level spawn failures.
func (c *Client) Fallback(owner domain.OwnerKey, stepName, kind string, httpStatus int) domain.CallResult {
	return domain.CallResult{
		Status:     domain.CallFailed,
		HTTPStatus: httpStatus,
		ErrorKind:  kind,
		Payload: map[string]any{
			"ownerKey": string(owner),
			"stepName": stepName,
			"fallback": true,
		},
	}
}

func (c *Client) doCall(ctx context.Context, owner domain.OwnerKey, port int, payload map[string]any, inbound http.Header, traceparent, correlation string) domain.CallResult {
	body, err := json.Marshal(payload)
	if err != nil {
		// Payloads come from journey definitions; a marshal failure is a
		// caller bug, reported as a parse failure rather than a panic.
		return domain.CallResult{
			Status:     domain.CallFailed,
			HTTPStatus: http.StatusInternalServerError,
			ErrorKind:  domain.ErrorKindJSONParse,
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("http://127.0.0.1:%d/process", port)
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return domain.CallResult{
			Status:     domain.CallFailed,
			HTTPStatus: http.StatusServiceUnavailable,
			ErrorKind:  domain.ErrorKindConnection,
		}
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req, payload, inbound, traceparent, correlation)

	resp, err := c.http.Do(req)
	if err != nil {
		return c.classifyTransportError(owner, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return domain.CallResult{
			Status:     domain.CallFailed,
			HTTPStatus: resp.StatusCode,
			ErrorKind:  domain.ErrorKindConnection,
			Trace:      domain.TraceInfo{ResponseTraceparent: resp.Header.Get(trace.HeaderTraceparent)},
		}
	}

	res := c.classifyResponse(resp.StatusCode, raw)
	res.Trace.ResponseTraceparent = resp.Header.Get(trace.HeaderTraceparent)
	return res
}

// setHeaders forwards recognized tracing headers verbatim and attaches the
// business-context headers derived from the payload.
func (c *Client) setHeaders(req *http.Request, payload map[string]any, inbound http.Header, traceparent, correlation string) {
	forwarded := false
	vendorForwarded := false
	for _, name := range passthroughHeaders {
		if inbound == nil {
			break
		}
		if v := inbound.Get(name); v != "" {
			req.Header.Set(name, v)
			if strings.EqualFold(name, trace.HeaderTraceparent) {
				forwarded = true
			}
			if strings.EqualFold(name, "x-dynatrace") {
				vendorForwarded = true
			}
		}
	}
	if !forwarded {
		req.Header.Set(trace.HeaderTraceparent, traceparent)
	}
	if !vendorForwarded {
		req.Header.Set(HeaderDynaTrace, vendorTag(payload, correlation))
	}

	if v, ok := payload["companyName"].(string); ok && v != "" {
		req.Header.Set(HeaderCompany, v)
	}
	if v, ok := payload["domain"].(string); ok && v != "" {
		req.Header.Set(HeaderDomain, v)
	}
	if v, ok := payload["industry"].(string); ok && v != "" {
		req.Header.Set(HeaderIndustry, v)
	}
	if v, ok := payload["stepName"].(string); ok && v != "" {
		req.Header.Set(HeaderStep, v)
	}
}

// vendorTag renders the X-dynaTrace tag for one hop: a virtual-user marker
// derived from the correlation id, plus step and company names.
func vendorTag(payload map[string]any, correlation string) string {
	vu := correlation
	if len(vu) > 8 {
		vu = vu[:8]
	}
	step, _ := payload["stepName"].(string)
	company, _ := payload["companyName"].(string)
	return fmt.Sprintf("VU=%s;SI=journeysim;TSN=%s;LSN=%s", vu, step, company)
}

// traceFor derives the current hop's context: a valid inbound traceparent
// keeps its trace id (its span becomes the parent), otherwise fresh.
func (c *Client) traceFor(inbound http.Header) trace.Context {
	inboundTP := ""
	if inbound != nil {
		inboundTP = inbound.Get(trace.HeaderTraceparent)
	}
	return c.tracer.Build(inboundTP)
}

func (c *Client) correlationID(inbound http.Header) string {
	if inbound != nil {
		if v := inbound.Get("x-correlation-id"); v != "" {
			return v
		}
	}
	return trace.NewCorrelationID()
}

func (c *Client) classifyTransportError(owner domain.OwnerKey, err error) domain.CallResult {
	kind := domain.ErrorKindConnection
	status := http.StatusServiceUnavailable

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = domain.ErrorKindTimeout
		status = http.StatusRequestTimeout
	}
	c.logger.Warn("worker call failed", "owner", owner, "kind", kind, "err", err)
	return domain.CallResult{
		Status:     domain.CallFailed,
		HTTPStatus: status,
		ErrorKind:  kind,
	}
}

// classifyResponse interprets the worker's body. Workers are supposed to
// answer JSON even on failure, but a crashing framework can hand back an
// HTML error page; both malformed shapes get their own error kind.
func (c *Client) classifyResponse(httpStatus int, raw []byte) domain.CallResult {
	trimmed := strings.TrimSpace(string(raw))

	if strings.HasPrefix(trimmed, "<") {
		status := httpStatus
		if status < 400 {
			status = http.StatusInternalServerError
		}
		return domain.CallResult{
			Status:     domain.CallFailed,
			HTTPStatus: status,
			ErrorKind:  domain.ErrorKindHTMLBody,
		}
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		status := httpStatus
		if status < 400 {
			status = http.StatusInternalServerError
		}
		return domain.CallResult{
			Status:     domain.CallFailed,
			HTTPStatus: status,
			ErrorKind:  domain.ErrorKindJSONParse,
		}
	}

	// Tolerant probing: status/httpStatus may sit at the top level or be
	// absent entirely; gjson shrugs at both.
	bodyStatus := gjson.GetBytes(raw, "status").String()
	if v := gjson.GetBytes(raw, "httpStatus"); v.Exists() && int(v.Int()) >= 400 {
		httpStatus = int(v.Int())
	}

	if bodyStatus != "error" && httpStatus < 400 {
		return domain.CallResult{
			Status:     domain.CallCompleted,
			HTTPStatus: httpStatus,
			Payload:    payload,
		}
	}

	kind := gjson.GetBytes(raw, "errorKind").String()
	if kind == "" {
		kind = domain.ErrorKindWorker
	}
	if httpStatus < 400 {
		httpStatus = http.StatusInternalServerError
	}
	return domain.CallResult{
		Status:     domain.CallFailed,
		HTTPStatus: httpStatus,
		ErrorKind:  kind,
		Payload:    payload,
	}
}

func (c *Client) emitCall(ctx context.Context, owner domain.OwnerKey, stepName string) {
	if c.hooks.OnStepCall == nil {
		return
	}
	c.hooks.OnStepCall(ctx, &domain.CallEvent{
		Timestamp: time.Now(),
		Type:      domain.EventStepCall,
		Owner:     owner,
		StepName:  stepName,
	})
}

func (c *Client) emitReturn(ctx context.Context, owner domain.OwnerKey, stepName string, res domain.CallResult, d time.Duration) {
	if c.hooks.OnStepReturn == nil {
		return
	}
	outcome := res.Status
	if res.ErrorKind != "" {
		outcome = res.ErrorKind
	}
	c.hooks.OnStepReturn(ctx, &domain.CallEvent{
		Timestamp:  time.Now(),
		Type:       domain.EventStepReturn,
		Owner:      owner,
		StepName:   stepName,
		Outcome:    outcome,
		HTTPStatus: res.HTTPStatus,
		Duration:   d,
	})
}
