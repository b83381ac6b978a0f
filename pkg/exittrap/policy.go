package exittrap

import (
	"os"
	"sync/atomic"

	"sysguard/pkg/guard"
)

// Policy authorizes process-level actions. CheckExit either returns,
// allowing termination, or does not return.
type Policy interface {
	CheckExit(status int)
	CheckPermission(name string) error
}

type policyHolder struct {
	policy Policy
}

var active atomic.Pointer[policyHolder]

// osExit terminates the process.
var osExit = os.Exit

// Current returns the active policy, or nil.
func Current() Policy {
	if h := active.Load(); h != nil {
		return h.policy
	}
	return nil
}

// SetPolicy installs p (nil uninstalls) and returns the policy it replaced.
func SetPolicy(p Policy) Policy {
	prev := active.Swap(&policyHolder{policy: p})
	if prev == nil {
		return nil
	}
	return prev.policy
}

// Exit requests termination with status. The active policy may intercept.
func Exit(status int) {
	if p := Current(); p != nil {
		p.CheckExit(status)
	}
	osExit(status)
}

// CheckPermission asks the active policy whether the named action is
// allowed. Without a policy everything is.
func CheckPermission(name string) error {
	if p := Current(); p != nil {
		return p.CheckPermission(name)
	}
	return nil
}

// policyResource is the termination policy as a guarded resource.
var policyResource = guard.Resource[Policy]{
	Name: "exit policy",
	Get:  Current,
	Set: func(p Policy) error {
		SetPolicy(p)
		return nil
	},
}
