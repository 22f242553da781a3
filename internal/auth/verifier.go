package auth

import "context"

// VerifiedToken is what a verifier returns for a valid credential.
type VerifiedToken struct {
	Subject string
	Issuer  string
	Email   string
}

// Verifier validates a bearer credential. Any returned error means the
// credential is unusable, whatever the cause.
type Verifier interface {
	Verify(ctx context.Context, token string) (VerifiedToken, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, token string) (VerifiedToken, error)

func (f VerifierFunc) Verify(ctx context.Context, token string) (VerifiedToken, error) {
	return f(ctx, token)
}
