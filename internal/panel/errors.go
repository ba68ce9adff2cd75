package panel

import (
	"errors"
	"fmt"
)

// Kind classifies a failed fetch.
type Kind int

const (
	// KindClient is the catch-all for unexpected failures, decode errors included.
	KindClient Kind = iota
	// KindCommunication covers timeouts, transport errors and non-2xx responses.
	KindCommunication
	// KindAuthentication means the panel rejected the request (401/403).
	KindAuthentication
)

func (k Kind) String() string {
	switch k {
	case KindCommunication:
		return "communication"
	case KindAuthentication:
		return "authentication"
	default:
		return "client"
	}
}

// ErrMalformedResponse is returned by Decode when the dump does not carry
// exactly one value line per known field.
var ErrMalformedResponse = errors.New("malformed panel response")

// Error is the error returned by Client.
type Error struct {
	Kind Kind
	Host string
	Err  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindAuthentication:
		return fmt.Sprintf("panel %s: invalid credentials: %v", e.Host, e.Err)
	case KindCommunication:
		return fmt.Sprintf("panel %s: error fetching information: %v", e.Host, e.Err)
	default:
		return fmt.Sprintf("panel %s: unexpected error: %v", e.Host, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err. Errors that did not come from Client are
// reported as KindClient.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindClient
}

// IsAuthentication reports whether err is an authentication failure.
func IsAuthentication(err error) bool {
	return err != nil && KindOf(err) == KindAuthentication
}

// IsCommunication reports whether err is a communication failure.
func IsCommunication(err error) bool {
	return err != nil && KindOf(err) == KindCommunication
}
