// Package provider talks to the text-generation services and turns their
// errors into a Result the handler can branch on.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"checkinbot/internal/domain"

	"github.com/openai/openai-go/v3"
	"google.golang.org/genai"
)

// ErrMalformedResponse is returned when the service answers without usable content.
var ErrMalformedResponse = errors.New("malformed response")

// FailureKind classifies a failed generation call.
type FailureKind string

const (
	FailureNetwork   FailureKind = "network"
	FailureTimeout   FailureKind = "timeout"
	FailureQuota     FailureKind = "quota"
	FailureAuth      FailureKind = "auth"
	FailureServer    FailureKind = "server"
	FailureMalformed FailureKind = "malformed"
	FailureCanceled  FailureKind = "canceled"
	FailureUnknown   FailureKind = "unknown"
)

// Failure describes why a generation call produced no reply.
type Failure struct {
	Kind   FailureKind
	Detail string
	Err    error
}

func (f *Failure) Error() string { return fmt.Sprintf("%s: %s", f.Kind, f.Detail) }
func (f *Failure) Unwrap() error { return f.Err }

// Result is either a reply text (possibly empty) or a Failure.
type Result struct {
	Text      string
	Usage     domain.Usage
	LatencyMs int64
	Failure   *Failure
}

func (r Result) OK() bool { return r.Failure == nil }

// Call runs one generation request. It never retries.
func Call(ctx context.Context, gen domain.Generator, req domain.GenerateRequest) Result {
	start := time.Now()
	resp, err := gen.Generate(ctx, req)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return Result{LatencyMs: latency, Failure: Classify(err)}
	}
	if resp == nil {
		return Result{LatencyMs: latency, Failure: Classify(fmt.Errorf("%w: nil response", ErrMalformedResponse))}
	}
	return Result{
		Text:      strings.TrimSpace(resp.Text),
		Usage:     resp.Usage,
		LatencyMs: latency,
	}
}

// Classify maps an error from either SDK or the network onto a FailureKind.
func Classify(err error) *Failure {
	f := &Failure{Kind: FailureUnknown, Detail: err.Error(), Err: err}

	var oaiErr *openai.Error
	var gErr genai.APIError
	var gErrPtr *genai.APIError
	var netErr net.Error

	switch {
	case errors.Is(err, context.Canceled):
		f.Kind = FailureCanceled
	case errors.Is(err, context.DeadlineExceeded):
		f.Kind = FailureTimeout
	case errors.Is(err, ErrMalformedResponse):
		f.Kind = FailureMalformed
	case errors.As(err, &oaiErr):
		f.Kind = kindForStatus(oaiErr.StatusCode, oaiErr.Code)
	case errors.As(err, &gErr):
		f.Kind = kindForStatus(gErr.Code, gErr.Status)
	case errors.As(err, &gErrPtr):
		f.Kind = kindForStatus(gErrPtr.Code, gErrPtr.Status)
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			f.Kind = FailureTimeout
		} else {
			f.Kind = FailureNetwork
		}
	}
	return f
}

func kindForStatus(code int, status string) FailureKind {
	switch {
	case code == 429 || strings.EqualFold(status, "RESOURCE_EXHAUSTED") || strings.EqualFold(status, "rate_limit_exceeded"):
		return FailureQuota
	case code == 401 || code == 403:
		return FailureAuth
	case code >= 500:
		return FailureServer
	case code == 400 || code == 404:
		return FailureMalformed
	default:
		return FailureUnknown
	}
}

// Flatten renders utterances as "role: content" lines, the single-prompt
// form accepted by plain text-completion endpoints.
func Flatten(utterances []domain.Utterance) string {
	lines := make([]string, len(utterances))
	for i, u := range utterances {
		lines[i] = string(u.Role) + ": " + u.Content
	}
	return strings.Join(lines, "\n")
}
