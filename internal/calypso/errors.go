package calypso

import "fmt"

// Kind identifies a member of the device error family.
type Kind string

const (
	KindAdapter      Kind = "adapter"
	KindDiscovery    Kind = "discovery"
	KindConversation Kind = "conversation"
	KindTimeout      Kind = "timeout"
	KindDecoding     Kind = "decoding"
)

// Error is the single device error type. Every failure the session surfaces
// is an *Error with one of the kinds above; callers match on the sentinels
// with errors.Is.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

var (
	// ErrDevice matches every device error regardless of kind.
	ErrDevice = &Error{}
	// ErrAdapter reports an unusable host Bluetooth adapter.
	ErrAdapter = &Error{Kind: KindAdapter}
	// ErrDiscovery reports that no matching peripheral was found.
	ErrDiscovery = &Error{Kind: KindDiscovery}
	// ErrConversation reports a failure talking to a connected peripheral.
	ErrConversation = &Error{Kind: KindConversation}
	// ErrTimeout reports that connect or I/O exceeded its deadline.
	ErrTimeout = &Error{Kind: KindTimeout}
	// ErrDecoding reports a reading frame that does not match the wire layout.
	ErrDecoding = &Error{Kind: KindDecoding}
)

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("calypso: %s: %v", e.Msg, e.Err)
	case e.Msg != "":
		return "calypso: " + e.Msg
	case e.Err != nil:
		return fmt.Sprintf("calypso: %s error: %v", e.Kind, e.Err)
	case e.Kind != "":
		return fmt.Sprintf("calypso: %s error", e.Kind)
	}
	return "calypso: device error"
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind. A target without a kind matches
// every device error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == "" || t.Kind == e.Kind
}

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}
