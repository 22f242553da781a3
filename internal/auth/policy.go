package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// MissingPolicyMode decides what happens when no RBAC task exists for a path.
type MissingPolicyMode int

const (
	// MissingPolicyAllow lets any authenticated account through (fail-open).
	MissingPolicyAllow MissingPolicyMode = iota
	// MissingPolicyReject answers 502 Task Not Found (fail-closed).
	MissingPolicyReject
)

// ParseMissingPolicyMode accepts "allow" / "open" and "reject" / "closed".
func ParseMissingPolicyMode(s string) (MissingPolicyMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "allow", "open":
		return MissingPolicyAllow, nil
	case "reject", "closed":
		return MissingPolicyReject, nil
	default:
		return MissingPolicyAllow, fmt.Errorf("%w: unknown missing policy mode %q", ErrInvalidInput, s)
	}
}

func (m MissingPolicyMode) String() string {
	if m == MissingPolicyReject {
		return "reject"
	}
	return "allow"
}

// Evaluator decides whether a resolved account may reach a path.
type Evaluator struct {
	policies           PolicyStore
	missing            MissingPolicyMode
	required           map[string]struct{}
	roleMismatchStatus int
}

// EvaluatorOption configures Evaluator.
type EvaluatorOption func(*Evaluator)

// WithMissingPolicyMode sets the behaviour for paths without an RBAC task.
func WithMissingPolicyMode(mode MissingPolicyMode) EvaluatorOption {
	return func(e *Evaluator) { e.missing = mode }
}

// WithRequiredPolicyPaths declares paths whose RBAC task must exist. A
// missing task for one of them is reported as 502 even in allow mode.
func WithRequiredPolicyPaths(paths ...string) EvaluatorOption {
	return func(e *Evaluator) {
		for _, p := range paths {
			if p = strings.TrimSpace(p); p != "" {
				e.required[p] = struct{}{}
			}
		}
	}
}

// WithRoleMismatchStatus overrides the status sent when no role matches.
func WithRoleMismatchStatus(code int) EvaluatorOption {
	return func(e *Evaluator) {
		if code >= 400 && code <= 599 {
			e.roleMismatchStatus = code
		}
	}
}

func NewEvaluator(policies PolicyStore, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		policies:           policies,
		required:           make(map[string]struct{}),
		roleMismatchStatus: StatusRoleMismatchLegacy,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate applies, in order: the superadmin override, the task lookup for
// the exact path, the organisation requirement and the role match.
func (e *Evaluator) Evaluate(ctx context.Context, account Account, path string) Outcome {
	if account.IsSuperadmin() {
		return authorized()
	}
	if e.policies == nil {
		return reject(DecisionInternalError, http.StatusInternalServerError, MessageInternal, "policy store is not configured")
	}

	entry, err := e.policies.FindPolicy(ctx, path)
	switch {
	case errors.Is(err, ErrNotFound):
		if _, must := e.required[path]; must || e.missing == MissingPolicyReject {
			return reject(DecisionPolicyLookupError, http.StatusBadGateway, MessageTaskNotFound,
				fmt.Sprintf("RBAC task for path %s does not exist", path))
		}
		return authorized()
	case errors.Is(err, ErrAmbiguousPolicy):
		return reject(DecisionPolicyLookupError, http.StatusBadGateway, MessageTaskNotFound, err.Error())
	case err != nil:
		return reject(DecisionInternalError, http.StatusInternalServerError, MessageInternal, err.Error())
	}

	if !account.BelongsToOrganisation() {
		return reject(DecisionNoOrganisation, http.StatusForbidden, MessageForbidden,
			"User does not belong to an organisation")
	}
	if !RolesMatch(account.Roles, entry.Roles) {
		return reject(DecisionRoleMismatch, e.roleMismatchStatus, MessageForbidden,
			fmt.Sprintf("User is not authorised to access task { %s }", entry.Task))
	}
	return authorized()
}
