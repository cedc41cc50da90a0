// Package portal speaks the gateway's password login protocol.
package portal

import (
	"fmt"

	"go.uber.org/zap"
)

// Credentials identify the account to log in. The password is only ever
// sent as ciphertext and is never rendered by String or logging helpers.
type Credentials struct {
	Username string
	Password string //nolint:gosec // G101: field name, not a credential
	LoginURL string
}

func (c Credentials) String() string {
	return fmt.Sprintf("%s@%s", c.Username, c.LoginURL)
}

// Fields returns zap fields that identify the account without the password.
func (c Credentials) Fields() []zap.Field {
	return []zap.Field{
		zap.String("username", c.Username),
		zap.String("login_url", c.LoginURL),
	}
}

// AuthAttempt is the per-request material derived from the auth tag.
type AuthAttempt struct {
	// AuthTag is the Unix millisecond timestamp in decimal. It is sent as
	// auth_tag and is also the RC4 key, so both uses must share one value.
	AuthTag    string
	Ciphertext string
}

// FailureKind classifies why a login did not succeed.
type FailureKind string

const (
	FailureNone            FailureKind = ""
	FailureTransport       FailureKind = "transport"        // timeout, refused, reset
	FailureStatus          FailureKind = "http_status"      // non-200 response
	FailureInvalidResponse FailureKind = "invalid_response" // body is not the expected JSON
	FailureRejected        FailureKind = "rejected"         // gateway answered success=false
)

// Result is the outcome of a single login request.
type Result struct {
	Success    bool        `json:"success"`
	Reason     string      `json:"reason,omitempty"`
	Kind       FailureKind `json:"kind,omitempty"`
	StatusCode int         `json:"status_code,omitempty"`
}

func failure(kind FailureKind, format string, args ...any) Result {
	return Result{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}
