package sched

import (
	"fmt"
	"sync"
)

// PolicyFactory builds a fresh Policy instance for one new context. Policy
// packages register a factory under a stable name in their own init(), the
// same "register under a name, look up by string" shape database/sql uses
// for drivers, so runtime.Init can pick a scheduler by the SCHED env var
// without importing every policy package by name.
type PolicyFactory func() Policy

var (
	registryMu sync.RWMutex
	factories  = make(map[string]PolicyFactory)

	ctxMu     sync.Mutex
	contexts  = make(map[int]*Context)
	nextCtxID int
)

// RegisterPolicy makes a named policy factory available to CreateContext.
// Panics on a duplicate name, the registration-panics-on-conflict
// convention used for anything wired at init time.
func RegisterPolicy(name string, factory PolicyFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("sched: policy %q already registered", name))
	}
	factories[name] = factory
}

// CreateContext builds a new Context bound to a fresh instance of the named
// policy and tracks it for DeleteContext/LookupContext.
func CreateContext(name string, policyName string, perfArch PerfArch) (*Context, error) {
	registryMu.RLock()
	factory, ok := factories[policyName]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("sched: unknown policy %q", policyName)
	}

	ctxMu.Lock()
	id := nextCtxID
	nextCtxID++
	ctxMu.Unlock()

	c := NewContext(id, name, factory(), perfArch)

	ctxMu.Lock()
	contexts[id] = c
	ctxMu.Unlock()
	return c, nil
}

// DeleteContext tears down a context's policy and removes it from the
// process-wide registry.
func DeleteContext(c *Context) {
	ctxMu.Lock()
	delete(contexts, c.ID)
	ctxMu.Unlock()
	c.Delete()
}

// LookupContext finds a previously created context by id.
func LookupContext(id int) (*Context, bool) {
	ctxMu.Lock()
	defer ctxMu.Unlock()
	c, ok := contexts[id]
	return c, ok
}

// PolicyNames returns every registered policy name, for cmd/taskrunner's
// `info` subcommand and the rpc gateway's Info call.
func PolicyNames() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	return names
}
