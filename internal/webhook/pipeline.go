package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/mattjoyce/pagehooks/internal/log"
	"github.com/mattjoyce/pagehooks/internal/metrics"
	"github.com/mattjoyce/pagehooks/internal/router"
)

// Pipeline stages, as they appear in the "stage" log attribute.
const (
	stageMethod    = "receiving_method"
	stageBody      = "reading_body"
	stageVerify    = "verifying"
	stageNormalize = "normalizing"
	stageDispatch  = "dispatching"
	stageRespond   = "responding"
)

const (
	outcomeAccepted = "accepted"
	outcomeHealth   = "health"
)

// Pipeline handles requests for one endpoint: method check, body read,
// verification, normalization, dispatch and response. It holds no mutable
// state and is safe for concurrent use.
type Pipeline struct {
	endpoint EndpointConfig
	table    *router.Table
	sink     Sink
	logger   *slog.Logger
	now      func() time.Time
}

// NewPipeline builds the pipeline for ep. A nil table uses the built-in
// handlers; a nil sink drops accepted events after responding.
func NewPipeline(ep EndpointConfig, table *router.Table, sink Sink, logger *slog.Logger) *Pipeline {
	if ep.Scheme == "" {
		ep.Scheme = SchemeHMAC
	}
	if ep.Scheme == SchemeHMAC && ep.SignatureHeader == "" {
		ep.SignatureHeader = DefaultSignatureHeader
	}
	if ep.MaxBodySize <= 0 {
		ep.MaxBodySize = DefaultMaxBodySize
	}
	if table == nil {
		table = router.Default()
	}
	if logger == nil {
		logger = log.WithEndpoint(ep.Path)
	} else {
		logger = logger.With("endpoint", ep.Path)
	}

	if ep.Secret == "" {
		logger.Warn("webhook endpoint has no secret configured, verification disabled", "scheme", ep.Scheme)
	} else if !ep.Strict {
		logger.Warn("webhook endpoint is permissive, failed verification will not block requests", "scheme", ep.Scheme)
	}

	return &Pipeline{
		endpoint: ep,
		table:    table,
		sink:     sink,
		logger:   logger,
		now:      time.Now,
	}
}

// Endpoint returns the endpoint configuration with defaults applied.
func (p *Pipeline) Endpoint() EndpointConfig {
	return p.endpoint
}

// Handle runs req through every stage and returns the response to send.
// It does not panic: an unexpected fault becomes a 500 InternalFault.
func (p *Pipeline) Handle(ctx context.Context, req InboundRequest) (resp Response) {
	start := time.Now()
	logger := p.logger
	if id := middleware.GetReqID(ctx); id != "" {
		logger = logger.With("request_id", id)
	}

	stage := stageMethod
	defer func() {
		if r := recover(); r != nil {
			logger.Error("webhook pipeline panic", "stage", stage, "panic", fmt.Sprint(r))
			resp = p.fail(InternalFault)
		}
		metrics.RequestsTotal.WithLabelValues(p.endpoint.Path, resp.outcome).Inc()
		metrics.RequestDuration.WithLabelValues(p.endpoint.Path).Observe(time.Since(start).Seconds())
	}()

	switch req.Method {
	case http.MethodGet:
		return Response{Status: http.StatusOK, Body: Health, outcome: outcomeHealth}
	case http.MethodPost:
	default:
		logger.Warn("webhook method not allowed", "stage", stage, "method", req.Method)
		resp = p.fail(MethodNotAllowed)
		resp.Header = http.Header{"Allow": []string{"GET, POST"}}
		return resp
	}

	stage = stageBody
	body, kind, err := p.readBody(req.Body)
	if err != nil {
		logger.Warn("webhook body rejected", "stage", stage, "outcome", kind.String(), "error", err)
		return p.fail(kind)
	}
	metrics.BodyBytesTotal.WithLabelValues(p.endpoint.Path).Add(float64(len(body)))

	stage = stageVerify
	cred, present := ExtractCredential(p.endpoint, req.Header)
	verification := p.verify(cred, body)
	metrics.VerificationsTotal.WithLabelValues(p.endpoint.Path, string(verification)).Inc()
	if verification == VerificationFailed {
		if p.endpoint.Strict {
			logger.Warn("webhook verification failed, rejecting", "stage", stage, "scheme", p.endpoint.Scheme, "credential_present", present)
			return p.unauthorized()
		}
		logger.Warn("webhook verification failed, continuing", "stage", stage, "scheme", p.endpoint.Scheme, "credential_present", present)
	} else {
		logger.Debug("webhook verification", "stage", stage, "outcome", string(verification))
	}

	stage = stageNormalize
	ev, err := Normalize(body, p.now())
	if err != nil {
		logger.Warn("webhook payload rejected", "stage", stage, "error", err)
		return p.badPayload(err)
	}
	logger = logger.With("event_type", ev.EventType, "event_id", ev.ID)

	stage = stageDispatch
	result := p.table.Dispatch(ev.EventType, ev.Payload)
	metrics.EventsTotal.WithLabelValues(p.endpoint.Path, router.ParseKind(ev.EventType).String(), string(result.Outcome)).Inc()
	switch result.Outcome {
	case router.OutcomeFault:
		logger.Error("webhook handler failed", "stage", stage, "outcome", HandlerFault.String(), "error", result.Fault)
	case router.OutcomeUnknown:
		logger.Warn("webhook event type not recognized", "stage", stage, "outcome", string(result.Outcome))
	default:
		logger.Info("webhook event processed", "stage", stage, "outcome", string(result.Outcome))
	}

	stage = stageRespond
	var debug *Debug
	if p.endpoint.Debug {
		debug = NewDebug(body, ev, present, verification)
	}
	env := Success(ev, result, p.now(), debug)

	p.publish(ctx, logger, Delivery{
		ID:           ev.ID,
		Endpoint:     p.endpoint.Path,
		EventType:    ev.EventType,
		Payload:      ev.Payload,
		Result:       result,
		Verification: verification,
		ReceivedAt:   ev.ReceivedAt,
	})

	return Response{Status: http.StatusOK, Body: env, outcome: outcomeAccepted}
}

// ServeHTTP adapts the pipeline to net/http.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := p.Handle(r.Context(), InboundRequest{
		Method: r.Method,
		Header: r.Header,
		Body:   r.Body,
	})
	p.writeResponse(w, resp)
}

func (p *Pipeline) readBody(r io.Reader) ([]byte, ErrorKind, error) {
	if r == nil {
		return nil, 0, nil
	}
	body, err := io.ReadAll(io.LimitReader(r, p.endpoint.MaxBodySize+1))
	if err != nil {
		return nil, BodyReadError, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > p.endpoint.MaxBodySize {
		return nil, PayloadTooLarge, fmt.Errorf("body exceeds %d bytes", p.endpoint.MaxBodySize)
	}
	return body, 0, nil
}

func (p *Pipeline) verify(cred Credential, body []byte) Verification {
	if p.endpoint.Secret == "" {
		return VerificationOpen
	}
	if Verify(cred, p.endpoint.Secret, body) {
		return VerificationVerified
	}
	return VerificationFailed
}

func (p *Pipeline) publish(ctx context.Context, logger *slog.Logger, d Delivery) {
	if p.sink == nil {
		return
	}
	if err := p.sink.Publish(ctx, d); err != nil {
		metrics.SinkErrorsTotal.WithLabelValues(p.endpoint.Path).Inc()
		logger.Warn("webhook sink delivery failed", "error", err)
	}
}

func (p *Pipeline) fail(kind ErrorKind) Response {
	return Response{
		Status:  kind.Status(),
		Body:    Failure(kind, p.now()),
		outcome: kind.String(),
	}
}

func (p *Pipeline) unauthorized() Response {
	resp := p.fail(Unauthorized)
	env := resp.Body.(ErrorEnvelope)
	env.Message = UnauthorizedMessage(p.endpoint.Scheme)
	resp.Body = env
	return resp
}

func (p *Pipeline) badPayload(err error) Response {
	resp := p.fail(BadPayload)
	env := resp.Body.(ErrorEnvelope)

	received := ""
	var perr *ParseError
	if errors.As(err, &perr) {
		received = perr.Snippet
		if p.endpoint.Debug && perr.Err != nil {
			env.Detail = perr.Err.Error()
		}
	}
	env.Received = &received
	resp.Body = env
	return resp
}

// writeResponse encodes resp before writing any header so an encoding
// failure can still be reported as a 500.
func (p *Pipeline) writeResponse(w http.ResponseWriter, resp Response) {
	data, err := json.Marshal(resp.Body)
	if err != nil {
		p.logger.Error("webhook response encoding failed", "stage", stageRespond, "error", err)
		resp = p.fail(InternalFault)
		data, _ = json.Marshal(resp.Body)
	}

	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	_, _ = w.Write(append(data, '\n'))
}
