package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyRequest is returned when a request carries neither a message nor
// attachments.
var ErrEmptyRequest = errors.New("message and attachments are both empty")

// ErrNotSupported is returned by adapters for optional capabilities they do
// not implement (e.g. model discovery).
var ErrNotSupported = errors.New("not supported by this provider")

// ErrorKind classifies a failed provider attempt. The failover orchestrator
// keys its escalation decisions off this value alone.
type ErrorKind string

const (
	KindAuth          ErrorKind = "auth_error"
	KindRateLimit     ErrorKind = "rate_limit_error"
	KindModelNotFound ErrorKind = "model_not_found"
	KindSafetyBlock   ErrorKind = "safety_block"
	KindTransport     ErrorKind = "transport_error"
	KindContentFormat ErrorKind = "content_format_error"
	KindUnknown       ErrorKind = "unknown_error"
)

// ProviderError wraps a vendor failure with its taxonomy classification.
type ProviderError struct {
	Kind     ErrorKind
	Provider string
	Model    string
	Status   int
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%s): %v", e.Provider, e.Kind, e.Model, e.Err)
	}
	return fmt.Sprintf("%s: %s (%s): %s", e.Provider, e.Kind, e.Model, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError builds a classified error for one provider attempt.
func NewProviderError(kind ErrorKind, provider, model, message string) *ProviderError {
	return &ProviderError{Kind: kind, Provider: provider, Model: model, Message: message}
}

// WrapProviderError classifies err by its message and attaches provider context.
func WrapProviderError(provider, model string, err error) *ProviderError {
	return &ProviderError{
		Kind:     ClassifyMessage(err.Error()),
		Provider: provider,
		Model:    model,
		Err:      err,
	}
}

// KindOf extracts the taxonomy kind from any error. Unclassified errors are
// KindUnknown; context/network failures surfaced without wrapping are
// KindTransport.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ClassifyMessage(err.Error())
}

// Classify maps an HTTP status and a vendor error message to the taxonomy.
// The status code takes precedence; message substrings break ties for vendors
// that return errors with a 200 or a generic 400.
func Classify(status int, message string) ErrorKind {
	switch status {
	case 401, 403:
		return KindAuth
	case 429:
		return KindRateLimit
	case 404:
		return KindModelNotFound
	}
	return ClassifyMessage(message)
}

// ClassifyMessage maps a vendor error message to the taxonomy by substring
// inspection.
func ClassifyMessage(message string) ErrorKind {
	msg := strings.ToLower(message)
	switch {
	case strings.Contains(msg, "authentication"),
		strings.Contains(msg, "api_key"),
		strings.Contains(msg, "api key"),
		strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "invalid key"):
		return KindAuth
	case strings.Contains(msg, "rate_limit"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "quota"),
		strings.Contains(msg, "429"):
		return KindRateLimit
	case strings.Contains(msg, "not found"),
		strings.Contains(msg, "404"),
		strings.Contains(msg, "does not exist"),
		strings.Contains(msg, "decommissioned"):
		return KindModelNotFound
	case strings.Contains(msg, "safety"),
		strings.Contains(msg, "blocked by"),
		strings.Contains(msg, "content policy"),
		strings.Contains(msg, "content_filter"):
		return KindSafetyBlock
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "deadline"),
		strings.Contains(msg, "connection"),
		strings.Contains(msg, "eof"),
		strings.Contains(msg, "no such host"):
		return KindTransport
	}
	return KindUnknown
}
