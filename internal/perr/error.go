// Package perr defines the error kinds the gateway surfaces, from the
// synchronous setup path (parse / process / config / upstream) through
// to the in-band frame errors that can only occur once a stream has
// already started.
package perr

import "fmt"

// Kind identifies which stage of the pipeline produced an error. The HTTP
// edge uses it to pick a status code. Once a stream has started, errors
// travel as in-band sse Error messages; the encoder frames each one the
// same way regardless of Kind, and the upstream reader is what closes the
// stream after a transport-level failure.
type Kind int

const (
	// KindParse means the raw request body could not be decoded as JSON.
	KindParse Kind = iota
	// KindProcess means a processor in the chain rejected the request.
	KindProcess
	// KindConfig means a provider (token/url/client) or route lookup failed
	// because of something wrong in configuration — a missing env var, an
	// unknown LLM id, an unknown provider tag.
	KindConfig
	// KindLLM means the upstream call failed before any frame was emitted:
	// a non-2xx response or a transport failure on the initial request.
	KindLLM
	// KindFrame means something went wrong after streaming had already
	// begun: either a single SSE frame could not be decoded (recoverable —
	// the stream continues) or the upstream body could not be read (the
	// stream closes after the error is reported).
	KindFrame
	// KindPipeline means an internal invariant was violated (for example,
	// a route referencing a processor id that was never registered).
	KindPipeline
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "parse error"
	case KindProcess:
		return "process error"
	case KindConfig:
		return "config error"
	case KindLLM:
		return "llm error"
	case KindFrame:
		return "frame error"
	case KindPipeline:
		return "pipeline error"
	default:
		return "unknown error"
	}
}

// Error is the single error type used across the gateway. It carries a
// Kind (for status-code mapping at the edge) and wraps the underlying
// cause so callers can still use errors.Is/errors.As.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func newf(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Parse wraps a malformed-request-body failure.
func Parse(err error, format string, args ...any) *Error { return newf(KindParse, err, format, args...) }

// Process wraps a processor-chain failure.
func Process(err error, format string, args ...any) *Error {
	return newf(KindProcess, err, format, args...)
}

// Config wraps a missing-credential / unknown-route / unknown-provider failure.
func Config(err error, format string, args ...any) *Error {
	return newf(KindConfig, err, format, args...)
}

// LLM wraps an upstream failure that occurred before any frame was sent.
func LLM(err error, format string, args ...any) *Error { return newf(KindLLM, err, format, args...) }

// Frame wraps a failure after streaming began: a malformed SSE frame
// (recoverable) or an upstream body read error (ends the stream).
func Frame(err error, format string, args ...any) *Error {
	return newf(KindFrame, err, format, args...)
}

// Pipeline wraps an internal invariant violation.
func Pipeline(err error, format string, args ...any) *Error {
	return newf(KindPipeline, err, format, args...)
}
