// Package liveness implements the challenge-response protocol that certifies
// a live human presence: ephemeral hashed session codes, strict TTL
// enforcement, and environment-fingerprint screening.
package liveness

import "time"

// State is the lifecycle state of a liveness session.
type State string

const (
	StateIssued    State = "ISSUED"
	StateResponded State = "RESPONDED"
	StateAccepted  State = "ACCEPTED"
	StateRejected  State = "REJECTED"
	StateExpired   State = "EXPIRED"
)

// Terminal reports whether no further transitions are allowed from s.
func (s State) Terminal() bool {
	switch s {
	case StateAccepted, StateRejected, StateExpired:
		return true
	}
	return false
}

// allowedTransitions is the explicit transition table. Anything not listed
// here is an illegal transition and is refused by Session.transition.
var allowedTransitions = map[State][]State{
	StateIssued:    {StateResponded, StateExpired},
	StateResponded: {StateAccepted, StateRejected, StateExpired},
}

func canTransition(from, to State) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// RejectionReason identifies which check failed for audit purposes.
type RejectionReason string

const (
	// ReasonCodeMismatch: the submitted code did not match the challenge.
	ReasonCodeMismatch RejectionReason = "code"
	// ReasonEnvironment: the environment fingerprint tripped the policy.
	ReasonEnvironment RejectionReason = "environment"
	// ReasonNoResponse: the session expired without ever receiving a response.
	ReasonNoResponse RejectionReason = "expired_no_response"
	// ReasonLateResponse: a response arrived after the TTL window closed.
	ReasonLateResponse RejectionReason = "expired_late_response"
)

// Session is the per-challenge state owned by the Manager. The plaintext
// challenge code is never stored here; only its one-way hash survives
// issuance.
type Session struct {
	ID                string                  `json:"id"`
	ChallengeCodeHash string                  `json:"challenge_code_hash"`
	CreatedAt         time.Time               `json:"created_at"`
	ExpiresAt         time.Time               `json:"expires_at"`
	RespondedAt       *time.Time              `json:"responded_at,omitempty"`
	State             State                   `json:"state"`
	Reason            RejectionReason         `json:"reason,omitempty"`
	Fingerprint       *EnvironmentFingerprint `json:"fingerprint,omitempty"`

	// Version counts store writes. Store.Update only succeeds when the
	// caller's version matches the stored one, so two writers holding the
	// same read can never both record a terminal state.
	Version int64 `json:"version"`
}

// transition moves the session to next, refusing anything outside the
// transition table. Terminal states are final by construction.
func (s *Session) transition(next State) bool {
	if !canTransition(s.State, next) {
		return false
	}
	s.State = next
	return true
}

// ExpiredAt reports whether the session TTL has elapsed at the given instant.
// The comparison is strict: a response landing exactly at ExpiresAt is still
// inside the window.
func (s *Session) ExpiredAt(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
