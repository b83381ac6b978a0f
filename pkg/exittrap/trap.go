package exittrap

import (
	"go.uber.org/zap"

	"sysguard/internal/logging"
)

// Trap is the policy installed while a Rule's statement runs. It turns every
// termination request into an *ExitSignal panic and allows everything else.
type Trap struct {
	previous Policy
}

// NewTrap returns a trap stacked on previous, which may be nil.
func NewTrap(previous Policy) *Trap {
	return &Trap{previous: previous}
}

// CheckExit never returns.
func (t *Trap) CheckExit(status int) {
	logging.Get(logging.CategoryExitTrap).Debug("termination intercepted", zap.Int("status", status))
	panic(newSignal(status))
}

// CheckPermission lets the previous policy observe the query but always
// allows it.
func (t *Trap) CheckPermission(name string) error {
	if t.previous != nil {
		if err := t.previous.CheckPermission(name); err != nil {
			logging.Get(logging.CategoryExitTrap).Debug("previous policy objected",
				zap.String("permission", name), zap.Error(err))
		}
	}
	return nil
}

// Previous returns the policy the trap was stacked on.
func (t *Trap) Previous() Policy {
	return t.previous
}
