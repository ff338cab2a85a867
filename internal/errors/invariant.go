package errors

import "fmt"

var _ error = (*InvariantError)(nil)

// InvariantError marks a programming-error class failure: the run must
// abort with full context instead of clamping state. Dump carries the
// offending order/trade/position rendered at the failure site.
type InvariantError struct {
	Msg  string
	Dump string
}

// Invariant builds an InvariantError with a formatted state dump.
func Invariant(msg string, dump any) error {
	return &InvariantError{Msg: msg, Dump: fmt.Sprintf("%+v", dump)}
}

func (e *InvariantError) Error() string {
	if e.Dump == "" {
		return "invariant violated: " + e.Msg
	}
	return "invariant violated: " + e.Msg + ", state: " + e.Dump
}

// IsInvariant reports whether err is an invariant violation anywhere in
// its chain.
func IsInvariant(err error) bool {
	var ie *InvariantError
	return As(err, &ie)
}
