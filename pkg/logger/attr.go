package logger

import (
	"log/slog"
	"strconv"
	"time"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// IdentityID records the account-system identity under the key "identity_id".
// If id is nil, it returns an empty Attr.
func IdentityID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("identity_id", id)
}

// CredentialID records the credential identifier under the key "credential_id".
// If id is nil, it returns an empty Attr.
func CredentialID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("credential_id", id)
}

// Method records the verification method under the key "method".
func Method(method string) slog.Attr {
	return slog.String("method", method)
}

// AttemptsRemaining records the attempt budget left under the key
// "attempts_remaining".
func AttemptsRemaining(n int) slog.Attr {
	return slog.Int("attempts_remaining", n)
}

// RetryAfter records a lockout wait under the key "retry_after".
func RetryAfter(d time.Duration) slog.Attr {
	return slog.Duration("retry_after", d)
}

// Duration records a duration under the key "duration".
func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Event records the event name under the key "event".
func Event(name string) slog.Attr {
	return slog.String("event", name)
}
