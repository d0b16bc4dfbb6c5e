package task

import (
	"fmt"
	"sync"
)

// codelets is the process-wide name→Codelet registry a remote submission
// (pkg/rpc) or the CLI (cmd/taskrunner) resolves against, since a Codelet's
// CPUFunc is a function value and cannot itself travel over the wire.
var (
	codeletsMu sync.RWMutex
	codelets   = make(map[string]*Codelet)
)

// RegisterCodelet makes cl available to name-based lookup under cl.Name.
// Panics on a duplicate name, matching pkg/sched.RegisterPolicy's
// registration-panics-on-conflict convention for anything wired at init
// time.
func RegisterCodelet(cl *Codelet) {
	if cl.Name == "" {
		panic("task: RegisterCodelet requires a non-empty Name")
	}
	codeletsMu.Lock()
	defer codeletsMu.Unlock()
	if _, exists := codelets[cl.Name]; exists {
		panic(fmt.Sprintf("task: codelet %q already registered", cl.Name))
	}
	codelets[cl.Name] = cl
}

// LookupCodelet resolves a registered codelet by name.
func LookupCodelet(name string) (*Codelet, bool) {
	codeletsMu.RLock()
	defer codeletsMu.RUnlock()
	cl, ok := codelets[name]
	return cl, ok
}

// CodeletNames returns every registered codelet name, for cmd/taskrunner's
// `info` subcommand.
func CodeletNames() []string {
	codeletsMu.RLock()
	defer codeletsMu.RUnlock()
	names := make([]string, 0, len(codelets))
	for n := range codelets {
		names = append(names, n)
	}
	return names
}
