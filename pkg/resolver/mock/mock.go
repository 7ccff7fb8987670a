// Package mock provides an in-memory mock implementation of
// [resolver.Resolver] for use in unit tests.
//
// The mock records every locator it is asked to resolve and lets tests
// control results either with static fields or per-call functions.
package mock

import (
	"context"
	"sync"

	"github.com/olclarke/hermes/pkg/resolver"
)

// Resolver is a mock implementation of [resolver.Resolver].
// Set the exported fields before use; inspect the Recorded* fields after.
type Resolver struct {
	mu sync.Mutex

	// QuickFunc, when set, handles ResolveQuick calls.
	QuickFunc func(ctx context.Context, locator string) (resolver.Result, error)

	// FullFunc, when set, handles ResolveFull calls.
	FullFunc func(ctx context.Context, locator string) (*resolver.Descriptor, error)

	// QuickResult and QuickError are returned by ResolveQuick when
	// QuickFunc is nil.
	QuickResult resolver.Result
	QuickError  error

	// FullResult and FullError are returned by ResolveFull when FullFunc
	// is nil.
	FullResult *resolver.Descriptor
	FullError  error

	// RecordedQuick holds locators passed to ResolveQuick, in order.
	RecordedQuick []string

	// RecordedFull holds locators passed to ResolveFull, in order.
	RecordedFull []string
}

var _ resolver.Resolver = (*Resolver)(nil)

// ResolveQuick implements [resolver.Resolver].
func (r *Resolver) ResolveQuick(ctx context.Context, locator string) (resolver.Result, error) {
	r.mu.Lock()
	r.RecordedQuick = append(r.RecordedQuick, locator)
	fn := r.QuickFunc
	res, err := r.QuickResult, r.QuickError
	r.mu.Unlock()

	if fn != nil {
		return fn(ctx, locator)
	}
	return res, err
}

// ResolveFull implements [resolver.Resolver].
func (r *Resolver) ResolveFull(ctx context.Context, locator string) (*resolver.Descriptor, error) {
	r.mu.Lock()
	r.RecordedFull = append(r.RecordedFull, locator)
	fn := r.FullFunc
	res, err := r.FullResult, r.FullError
	r.mu.Unlock()

	if fn != nil {
		return fn(ctx, locator)
	}
	return res, err
}
