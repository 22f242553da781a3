package auth

import (
	"context"
	"errors"
	"strings"
)

// Resolver maps a verified subject to a local account. It returns
// ErrNotFound when the subject has never registered.
type Resolver interface {
	Resolve(ctx context.Context, subject string) (Account, error)
}

// StoreResolver resolves subjects through an AccountStore. It never creates
// accounts; provisioning belongs to the registration flow.
type StoreResolver struct {
	Accounts AccountStore
}

func (r StoreResolver) Resolve(ctx context.Context, subject string) (Account, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return Account{}, ErrNotFound
	}
	if r.Accounts == nil {
		return Account{}, errors.New("account store is not configured")
	}
	return r.Accounts.FindAccountBySubject(ctx, subject)
}
