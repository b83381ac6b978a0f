package exittrap

import (
	"errors"
	"fmt"
)

// ExitSignal is an intercepted termination request.
type ExitSignal struct {
	Status  int
	Message string
}

func newSignal(status int) *ExitSignal {
	return &ExitSignal{
		Status:  status,
		Message: fmt.Sprintf("exit requested with status %d", status),
	}
}

func (s *ExitSignal) Error() string {
	if s.Message != "" {
		return s.Message
	}
	return fmt.Sprintf("exit requested with status %d", s.Status)
}

// AsSignal extracts an *ExitSignal from a recovered panic value or an error
// chain.
func AsSignal(v any) (*ExitSignal, bool) {
	switch x := v.(type) {
	case *ExitSignal:
		return x, x != nil
	case error:
		var sig *ExitSignal
		if errors.As(x, &sig) {
			return sig, true
		}
	}
	return nil, false
}
