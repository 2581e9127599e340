// Package identity resolves the system user that worker jobs run as.
package identity

import (
	"context"
	"fmt"

	"github.com/mendhq/mend/internal/types"
)

// Store is the slice of storage the resolver needs.
type Store interface {
	GetOwner(ctx context.Context) (*types.User, error)
	GetFirstAdmin(ctx context.Context) (*types.User, error)
}

// Resolver finds the identity healing attributes its actions to.
// Resolution order: configured owner ID, persisted owner flag, first
// admin. When nothing resolves, worker delegation fails cleanly instead
// of inventing a user.
type Resolver struct {
	store           Store
	configuredOwner string
}

// NewResolver builds a resolver. configuredOwner is an operator override
// and is used verbatim when set; it does not need a users row.
func NewResolver(store Store, configuredOwner string) *Resolver {
	return &Resolver{store: store, configuredOwner: configuredOwner}
}

// SystemUserID returns the resolved user ID, or "" when no identity
// exists. A non-nil error means a lookup failed, not that nothing
// matched.
func (r *Resolver) SystemUserID(ctx context.Context) (string, error) {
	if r.configuredOwner != "" {
		return r.configuredOwner, nil
	}

	owner, err := r.store.GetOwner(ctx)
	if err != nil {
		return "", fmt.Errorf("looking up owner: %w", err)
	}
	if owner != nil {
		return owner.ID, nil
	}

	admin, err := r.store.GetFirstAdmin(ctx)
	if err != nil {
		return "", fmt.Errorf("looking up admin: %w", err)
	}
	if admin != nil {
		return admin.ID, nil
	}

	return "", nil
}
