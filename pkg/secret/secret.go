// Package secret resolves token references. A value beginning with "op://"
// is read through the secret-manager CLI; anything else passes through
// unchanged. Resolved values are cached for the life of the process so the
// manager's approval prompt fires at most once per reference.
package secret

import (
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// Scheme marks a reference that needs resolution.
const Scheme = "op://"

// runner executes the secret-manager binary. Swapped in tests.
type runner func(name string, args ...string) ([]byte, error)

func run(name string, args ...string) ([]byte, error) {
	out, err := exec.Command(name, args...).Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok && len(ee.Stderr) > 0 {
			return nil, fmt.Errorf("%s: %s", name, strings.TrimSpace(string(ee.Stderr)))
		}
		return nil, err
	}
	return out, nil
}

// Resolver resolves references and remembers the answers.
type Resolver struct {
	mu    sync.Mutex
	cache map[string]string
	run   runner
	bin   string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithBinary overrides the secret-manager binary name.
func WithBinary(bin string) Option {
	return func(r *Resolver) {
		if bin != "" {
			r.bin = bin
		}
	}
}

// withRunner substitutes the command runner in tests.
func withRunner(fn runner) Option {
	return func(r *Resolver) {
		r.run = fn
	}
}

// NewResolver creates a Resolver using the "op" CLI.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		cache: make(map[string]string),
		run:   run,
		bin:   "op",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the secret behind ref. Non-references come back as-is.
// The first successful resolution of each ref is cached; failures are not,
// so a fixed environment can be retried.
func (r *Resolver) Resolve(ref string) (string, error) {
	if !strings.HasPrefix(ref, Scheme) {
		return ref, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.cache[ref]; ok {
		return v, nil
	}

	out, err := r.run(r.bin, "read", "-n", ref)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", ref, err)
	}
	v := strings.TrimSpace(string(out))
	if v == "" {
		return "", fmt.Errorf("secret manager returned nothing for %s", ref)
	}
	r.cache[ref] = v
	return v, nil
}
