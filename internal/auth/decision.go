package auth

import "net/http"

// Decision classifies the result of authorizing one request.
type Decision string

const (
	DecisionSkip              Decision = "skip"
	DecisionUnauthenticated   Decision = "unauthenticated"
	DecisionAccountNotFound   Decision = "not-found-account"
	DecisionNoOrganisation    Decision = "forbidden-no-org"
	DecisionRoleMismatch      Decision = "forbidden-role-mismatch"
	DecisionPolicyLookupError Decision = "policy-lookup-error"
	DecisionAuthorized        Decision = "authorized"
	DecisionInternalError     Decision = "internal-error"
)

// StatusRoleMismatchLegacy is the wire status historically returned when an
// account lacks every role a task requires. 413 is kept for client
// compatibility; use WithRoleMismatchStatus to send 403 instead.
const StatusRoleMismatchLegacy = http.StatusRequestEntityTooLarge

// Envelope message tags. Clients match on these strings.
const (
	MessageUnauthorised = "unauthorised"
	MessageInvalid      = "INVALID"
	MessageNotFound     = "NOT FOUND"
	MessageForbidden    = "UNAUTHORISED"
	MessageTaskNotFound = "Task Not Found"
	MessageInternal     = "INTERNAL"
)

// Outcome is the gate's answer: proceed (optionally with a principal) or
// reject with status, message tag and payload.
type Outcome struct {
	Decision  Decision
	Status    int
	Message   string
	Payload   any
	Principal *Principal
}

// Proceed reports whether the request may reach its handler.
func (o Outcome) Proceed() bool {
	return o.Decision == DecisionSkip || o.Decision == DecisionAuthorized
}

func skip() Outcome { return Outcome{Decision: DecisionSkip} }

func authorized() Outcome { return Outcome{Decision: DecisionAuthorized} }

func reject(d Decision, status int, message string, payload any) Outcome {
	return Outcome{Decision: d, Status: status, Message: message, Payload: payload}
}
