// Package classify maps arbitrary faults raised by provider calls, tool
// executions, and MCP transports onto a small set of classes the rest of
// the daemon can make scheduling decisions on.
package classify

import "strings"

// Class is the outcome of classifying a fault.
type Class string

const (
	ClassTransient Class = "transient"
	ClassAuth      Class = "auth"
	ClassResource  Class = "resource"
	ClassUnknown   Class = "unknown"
)

// Fault carries whatever structured information the caller could recover
// from a provider SDK error. Go errors don't carry ad hoc fields the way a
// caught JS exception does, so call sites that classify provider responses
// populate this from the response they already have in hand (HTTP status,
// a wire-level code, an explicit timeout flag) and pass the original error
// as Cause.
type Fault struct {
	Status  int    // numeric HTTP-style status, 0 if unknown
	Code    string // wire-level error code (e.g. "ECONNRESET")
	Timeout bool   // true if the caller knows this was a timeout
	Message string // human-readable message, classified by substring match
	Cause   error
}

// ClassifiedError is the result of Classify.
type ClassifiedError struct {
	Class     Class
	Message   string
	Status    int
	Retryable bool
	Cause     error
}

func (e *ClassifiedError) Error() string { return e.Message }

func (e *ClassifiedError) Unwrap() error { return e.Cause }

var networkCodes = map[string]bool{
	"ECONNRESET":    true,
	"ECONNREFUSED":  true,
	"ECONNABORTED":  true,
	"ETIMEDOUT":     true,
	"EPIPE":         true,
	"EAI_AGAIN":     true,
	"EHOSTUNREACH":  true,
	"ENETUNREACH":   true,
}

var rateLimitPatterns = []string{"rate limit", "too many requests"}

var resourcePatterns = []string{
	"quota exceeded", "token length exceeded", "context length exceeded",
	"billing", "insufficient_quota", "budget", "credit",
	"too many tokens", "max_tokens",
}

var authPatterns = []string{
	"unauthorized", "invalid api key", "authentication failed",
	"forbidden", "permission denied", "access denied",
}

var transientPatterns = []string{
	"timeout", "timed out", "network error", "socket hang up",
	"fetch failed", "server error", "internal server error",
	"bad gateway", "service unavailable", "overloaded",
}

// Classify maps a Fault to a ClassifiedError following the decision order
// in the daemon's error-handling design: numeric status first, then wire
// codes, then an explicit timeout flag, then curated message-substring
// sets (rate-limit before resource, always), falling back to unknown.
func Classify(f Fault) *ClassifiedError {
	msg := f.Message
	if msg == "" && f.Cause != nil {
		msg = f.Cause.Error()
	}

	switch {
	case f.Status == 401 || f.Status == 403:
		return result(ClassAuth, msg, f.Status, false, f.Cause)
	case f.Status == 429:
		return result(ClassTransient, msg, f.Status, true, f.Cause)
	case f.Status >= 500 && f.Status <= 599:
		return result(ClassTransient, msg, f.Status, true, f.Cause)
	}

	if networkCodes[f.Code] {
		return result(ClassTransient, msg, f.Status, true, f.Cause)
	}

	if f.Timeout {
		return result(ClassTransient, msg, f.Status, true, f.Cause)
	}

	lower := strings.ToLower(msg)

	if containsAny(lower, rateLimitPatterns) {
		return result(ClassTransient, msg, f.Status, true, f.Cause)
	}
	if containsAny(lower, resourcePatterns) {
		return result(ClassResource, msg, f.Status, false, f.Cause)
	}
	if containsAny(lower, authPatterns) {
		return result(ClassAuth, msg, f.Status, false, f.Cause)
	}
	if containsAny(lower, transientPatterns) {
		return result(ClassTransient, msg, f.Status, true, f.Cause)
	}

	return result(ClassUnknown, msg, f.Status, false, f.Cause)
}

// FromError is a convenience wrapper for call sites that only have a plain
// error and no extra wire-level detail.
func FromError(err error) *ClassifiedError {
	if err == nil {
		return nil
	}
	return Classify(Fault{Message: err.Error(), Cause: err})
}

func containsAny(haystack string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(haystack, p) {
			return true
		}
	}
	return false
}

func result(class Class, msg string, status int, retryable bool, cause error) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Message:   msg,
		Status:    status,
		Retryable: retryable,
		Cause:     cause,
	}
}
