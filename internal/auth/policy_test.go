package auth

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

type stubPolicies struct {
	entries map[string]PolicyEntry
	err     error
	calls   int
}

func (s *stubPolicies) FindPolicy(_ context.Context, path string) (PolicyEntry, error) {
	s.calls++
	if s.err != nil {
		return PolicyEntry{}, s.err
	}
	entry, ok := s.entries[path]
	if !ok {
		return PolicyEntry{}, ErrNotFound
	}
	return entry, nil
}

func myViewPolicies(roles ...string) *stubPolicies {
	return &stubPolicies{entries: map[string]PolicyEntry{
		"/api/my_view/": {ID: "t1", Task: "mock-my-view", URLPath: "/api/my_view/", Roles: NewRoleSet(roles...)},
	}}
}

func TestEvaluatorSuperadminSkipsLookup(t *testing.T) {
	policies := &stubPolicies{err: errors.New("store down")}
	e := NewEvaluator(policies)

	out := e.Evaluate(context.Background(), Account{Superuser: true}, "/api/my_view/")
	if out.Decision != DecisionAuthorized {
		t.Fatalf("expected authorized, got %+v", out)
	}
	if policies.calls != 0 {
		t.Fatalf("superadmin must not consult the policy store")
	}
}

func TestEvaluatorOutcomes(t *testing.T) {
	member := Account{OrganisationID: "org_1", Roles: NewRoleSet("admin")}
	client := Account{OrganisationID: "org_1", Roles: NewRoleSet("client")}
	orphan := Account{Roles: NewRoleSet("admin")}

	cases := []struct {
		name     string
		eval     *Evaluator
		account  Account
		path     string
		decision Decision
		status   int
		message  string
		payload  any
	}{
		{
			name: "matching role", eval: NewEvaluator(myViewPolicies("admin")),
			account: member, path: "/api/my_view/", decision: DecisionAuthorized,
		},
		{
			name: "role mismatch keeps legacy status", eval: NewEvaluator(myViewPolicies("admin")),
			account: client, path: "/api/my_view/", decision: DecisionRoleMismatch,
			status: 413, message: MessageForbidden, payload: "User is not authorised to access task { mock-my-view }",
		},
		{
			name: "role mismatch with configured status", eval: NewEvaluator(myViewPolicies("admin"), WithRoleMismatchStatus(http.StatusForbidden)),
			account: client, path: "/api/my_view/", decision: DecisionRoleMismatch,
			status: http.StatusForbidden, message: MessageForbidden, payload: "User is not authorised to access task { mock-my-view }",
		},
		{
			name: "no organisation", eval: NewEvaluator(myViewPolicies("admin")),
			account: orphan, path: "/api/my_view/", decision: DecisionNoOrganisation,
			status: http.StatusForbidden, message: MessageForbidden, payload: "User does not belong to an organisation",
		},
		{
			name: "no task fails open", eval: NewEvaluator(myViewPolicies("admin")),
			account: orphan, path: "/api/getUserDetails/", decision: DecisionAuthorized,
		},
		{
			name: "no task fails closed", eval: NewEvaluator(myViewPolicies("admin"), WithMissingPolicyMode(MissingPolicyReject)),
			account: member, path: "/api/getUserDetails/", decision: DecisionPolicyLookupError,
			status: http.StatusBadGateway, message: MessageTaskNotFound, payload: "RBAC task for path /api/getUserDetails/ does not exist",
		},
		{
			name: "required task missing", eval: NewEvaluator(myViewPolicies("admin"), WithRequiredPolicyPaths("/api/adminListOrders/")),
			account: member, path: "/api/adminListOrders/", decision: DecisionPolicyLookupError,
			status: http.StatusBadGateway, message: MessageTaskNotFound, payload: "RBAC task for path /api/adminListOrders/ does not exist",
		},
		{
			name: "ambiguous task", eval: NewEvaluator(&stubPolicies{err: ErrAmbiguousPolicy}),
			account: member, path: "/api/my_view/", decision: DecisionPolicyLookupError,
			status: http.StatusBadGateway, message: MessageTaskNotFound, payload: ErrAmbiguousPolicy.Error(),
		},
		{
			name: "store failure", eval: NewEvaluator(&stubPolicies{err: errors.New("connection refused")}),
			account: member, path: "/api/my_view/", decision: DecisionInternalError,
			status: http.StatusInternalServerError, message: MessageInternal, payload: "connection refused",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := tc.eval.Evaluate(context.Background(), tc.account, tc.path)
			if out.Decision != tc.decision {
				t.Fatalf("decision=%s, want %s", out.Decision, tc.decision)
			}
			if tc.decision == DecisionAuthorized {
				return
			}
			if out.Status != tc.status || out.Message != tc.message || out.Payload != tc.payload {
				t.Fatalf("got (%d,%q,%v), want (%d,%q,%v)", out.Status, out.Message, out.Payload, tc.status, tc.message, tc.payload)
			}
		})
	}
}

func TestParseMissingPolicyMode(t *testing.T) {
	for in, want := range map[string]MissingPolicyMode{
		"": MissingPolicyAllow, "allow": MissingPolicyAllow, "OPEN": MissingPolicyAllow,
		"reject": MissingPolicyReject, " closed ": MissingPolicyReject,
	} {
		got, err := ParseMissingPolicyMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseMissingPolicyMode(%q)=(%v,%v), want %v", in, got, err, want)
		}
	}
	if _, err := ParseMissingPolicyMode("maybe"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestWithRoleMismatchStatusIgnoresNonErrorCodes(t *testing.T) {
	e := NewEvaluator(nil, WithRoleMismatchStatus(http.StatusOK))
	if e.roleMismatchStatus != StatusRoleMismatchLegacy {
		t.Fatalf("expected legacy status to be kept, got %d", e.roleMismatchStatus)
	}
}
