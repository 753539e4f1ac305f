// Package secrets abstracts secret resolution (C1): looking up a named
// credential (API key, webhook signing secret, tool-server token) without
// activities or workflow code depending on where it is actually stored.
//
// No teacher precedent exists for this concern (goa-ai has no secret-manager
// abstraction); it is kept intentionally minimal — a single-method interface
// plus an environment-backed default — documented in DESIGN.md.
package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Resolver resolves a named secret to its current value. The secret manager
// is stateless per call, per spec.md §5.
type Resolver interface {
	// Resolve returns the current value of the named secret. Returns
	// ErrNotFound if name is unknown.
	Resolve(ctx context.Context, name string) (string, error)
}

// ErrNotFound is returned when a Resolver has no value for the requested
// secret name.
var ErrNotFound = fmt.Errorf("secrets: not found")

// EnvResolver resolves secrets from process environment variables, applying
// Prefix and upper-casing/dash-to-underscore normalization so callers can
// reference secrets by their catalogue-facing name (e.g. "openai-api-key")
// rather than the shell-safe env var name (OPENAI_API_KEY).
type EnvResolver struct {
	Prefix string
}

var _ Resolver = EnvResolver{}

// Resolve implements Resolver.
func (r EnvResolver) Resolve(_ context.Context, name string) (string, error) {
	key := r.envKey(name)
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", ErrNotFound
	}
	return v, nil
}

func (r EnvResolver) envKey(name string) string {
	key := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	if r.Prefix == "" {
		return key
	}
	return strings.ToUpper(strings.ReplaceAll(r.Prefix, "-", "_")) + "_" + key
}

// StaticResolver resolves secrets from a fixed in-memory map, useful for
// tests and local development.
type StaticResolver map[string]string

var _ Resolver = StaticResolver(nil)

// Resolve implements Resolver.
func (r StaticResolver) Resolve(_ context.Context, name string) (string, error) {
	v, ok := r[name]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}
