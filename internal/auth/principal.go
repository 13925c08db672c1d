package auth

import (
	"context"
	"slices"
)

// Capabilities a principal may hold.
const (
	CapCreate = "create"
	CapUpdate = "update"
	CapDelete = "delete"
)

// Principal is the identity a request acts as.
type Principal struct {
	Username     string
	Capabilities []string
}

// Can reports whether p holds capability.
func (p *Principal) Can(capability string) bool {
	return p != nil && slices.Contains(p.Capabilities, capability)
}

// Anonymous is the principal used when authentication is disabled. It holds
// every capability.
func Anonymous() *Principal {
	return &Principal{Username: "anonymous", Capabilities: []string{CapCreate, CapUpdate, CapDelete}}
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored in ctx, or nil.
func PrincipalFrom(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}
