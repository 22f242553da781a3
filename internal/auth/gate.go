package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"duka.app/internal/obs"
)

const (
	// DefaultProtectedPrefix is the API namespace guarded by the gate.
	DefaultProtectedPrefix = "/api/"
	bearerPrefix           = "Bearer "
)

// Request is the transport-neutral view of an inbound call.
type Request struct {
	Path          string
	Authorization string
}

// Exemptions reports whether the handler serving path opted out of the gate.
type Exemptions interface {
	Exempt(path string) bool
}

// ExemptionFunc adapts a function to Exemptions.
type ExemptionFunc func(path string) bool

func (f ExemptionFunc) Exempt(path string) bool { return f(path) }

// Gate sequences exemption, token verification, identity resolution and
// policy evaluation for every request. It holds no per-request state and is
// safe for concurrent use.
type Gate struct {
	verifier   Verifier
	resolver   Resolver
	evaluator  *Evaluator
	exemptions Exemptions
	prefix     string
	evalOpts   []EvaluatorOption
}

// GateOption configures Gate.
type GateOption func(*Gate) error

// WithExemptions wires the route dispatcher's exemption lookup.
func WithExemptions(e Exemptions) GateOption {
	return func(g *Gate) error {
		g.exemptions = e
		return nil
	}
}

// WithProtectedPrefix overrides DefaultProtectedPrefix.
func WithProtectedPrefix(prefix string) GateOption {
	return func(g *Gate) error {
		prefix = strings.TrimSpace(prefix)
		if prefix == "" || !strings.HasPrefix(prefix, "/") {
			return errors.New("auth: protected prefix must start with /")
		}
		g.prefix = prefix
		return nil
	}
}

// WithEvaluatorOptions passes options through to the policy evaluator.
func WithEvaluatorOptions(opts ...EvaluatorOption) GateOption {
	return func(g *Gate) error {
		g.evalOpts = append(g.evalOpts, opts...)
		return nil
	}
}

func NewGate(verifier Verifier, resolver Resolver, policies PolicyStore, opts ...GateOption) (*Gate, error) {
	if verifier == nil {
		return nil, errors.New("auth: token verifier is required")
	}
	if resolver == nil {
		return nil, errors.New("auth: identity resolver is required")
	}
	g := &Gate{
		verifier: verifier,
		resolver: resolver,
		prefix:   DefaultProtectedPrefix,
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	g.evaluator = NewEvaluator(policies, g.evalOpts...)
	return g, nil
}

// Authorize produces the outcome for one request. It never panics on
// collaborator failures; every failure becomes a rejection.
func (g *Gate) Authorize(ctx context.Context, req Request) Outcome {
	start := time.Now()
	out := g.authorize(ctx, req)
	obs.ObserveDecision(string(out.Decision), time.Since(start))
	if !out.Proceed() {
		fields := map[string]any{
			"path":     req.Path,
			"decision": string(out.Decision),
			"status":   out.Status,
			"detail":   out.Payload,
		}
		if out.Principal != nil {
			fields["subject"] = out.Principal.SubjectID
		}
		level := "warn"
		if out.Status >= http.StatusInternalServerError {
			level = "error"
		}
		obs.Log(level, "authz_rejected", fields)
	}
	return out
}

func (g *Gate) authorize(ctx context.Context, req Request) Outcome {
	if g.exemptions != nil && g.exemptions.Exempt(req.Path) {
		return skip()
	}
	if !strings.HasPrefix(req.Path, g.prefix) {
		return skip()
	}

	token, ok := BearerToken(req.Authorization)
	if !ok {
		return reject(DecisionUnauthenticated, http.StatusUnauthorized, MessageUnauthorised, "Bad Request")
	}

	verified, err := g.verifier.Verify(ctx, token)
	if err != nil {
		return reject(DecisionUnauthenticated, http.StatusUnauthorized, MessageInvalid, err.Error())
	}
	principal := Principal{SubjectID: verified.Subject}

	account, err := g.resolver.Resolve(ctx, verified.Subject)
	switch {
	case errors.Is(err, ErrNotFound):
		return withPrincipal(reject(DecisionAccountNotFound, http.StatusNotFound, MessageNotFound, "User Not Found"), principal)
	case err != nil:
		return withPrincipal(reject(DecisionInternalError, http.StatusInternalServerError, MessageInternal, err.Error()), principal)
	}
	principal.Account = account

	out := g.evaluator.Evaluate(ctx, account, req.Path)
	return withPrincipal(out, principal)
}

func withPrincipal(out Outcome, p Principal) Outcome {
	out.Principal = &p
	return out
}

// BearerToken extracts the credential from an Authorization header value.
// The header must start with exactly "Bearer " (case and single space
// significant); the remainder is returned as is and may be empty, in which
// case the verifier is the one to reject it.
func BearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	return header[len(bearerPrefix):], true
}
