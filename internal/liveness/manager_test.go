package liveness

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/proofframe/proofframe/pkg/logging"
)

// fakeClock is a movable time source shared by manager tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestManager(t *testing.T, opts ...ManagerOption) (*Manager, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	opts = append([]ManagerOption{WithClock(clock.Now)}, opts...)
	return NewManager(NewMemoryStore(), logging.Default(), opts...), clock
}

func cleanFingerprint() *EnvironmentFingerprint {
	return &EnvironmentFingerprint{HardwareConcurrency: 8}
}

func TestIssueChallenge(t *testing.T) {
	m, clock := newTestManager(t)
	issued, err := m.IssueChallenge(context.Background())
	if err != nil {
		t.Fatalf("IssueChallenge failed: %v", err)
	}

	if len(issued.Code) != codeLength {
		t.Errorf("expected %d-char code, got %q", codeLength, issued.Code)
	}
	for _, r := range issued.Code {
		if !strings.ContainsRune(codeAlphabet, r) {
			t.Errorf("code contains character outside alphabet: %q", r)
		}
	}

	s := issued.Session
	if s.State != StateIssued {
		t.Errorf("expected state ISSUED, got %s", s.State)
	}
	if want := clock.Now().Add(DefaultTTL); !s.ExpiresAt.Equal(want) {
		t.Errorf("expected expiry %v, got %v", want, s.ExpiresAt)
	}
	if s.ChallengeCodeHash == "" || strings.Contains(s.ChallengeCodeHash, issued.Code) {
		t.Error("session must store only a hash of the code")
	}

	stored, err := m.GetSession(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if stored.ChallengeCodeHash != s.ChallengeCodeHash {
		t.Error("stored session hash mismatch")
	}
}

func TestSubmitResponseAccepted(t *testing.T) {
	m, _ := newTestManager(t)
	issued, err := m.IssueChallenge(context.Background())
	if err != nil {
		t.Fatalf("IssueChallenge failed: %v", err)
	}

	s, err := m.SubmitResponse(context.Background(), issued.Session.ID, issued.Code, cleanFingerprint())
	if err != nil {
		t.Fatalf("SubmitResponse failed: %v", err)
	}
	if s.State != StateAccepted {
		t.Errorf("expected ACCEPTED, got %s (reason %s)", s.State, s.Reason)
	}
	if s.RespondedAt == nil {
		t.Error("expected RespondedAt to be set")
	}
}

func TestSubmitResponseSpokenVariantAccepted(t *testing.T) {
	m, _ := newTestManager(t)
	issued, err := m.IssueChallenge(context.Background())
	if err != nil {
		t.Fatalf("IssueChallenge failed: %v", err)
	}

	// A transcription with separators and lowercase still matches.
	spoken := strings.ToLower(issued.Code[:3]) + " - " + issued.Code[3:]
	s, err := m.SubmitResponse(context.Background(), issued.Session.ID, spoken, cleanFingerprint())
	if err != nil {
		t.Fatalf("SubmitResponse failed: %v", err)
	}
	if s.State != StateAccepted {
		t.Errorf("expected ACCEPTED for normalized variant, got %s", s.State)
	}
}

func TestSubmitResponseWrongCode(t *testing.T) {
	m, _ := newTestManager(t)
	issued, _ := m.IssueChallenge(context.Background())

	s, err := m.SubmitResponse(context.Background(), issued.Session.ID, "WRONG1", cleanFingerprint())
	if err != nil {
		t.Fatalf("SubmitResponse failed: %v", err)
	}
	if s.State != StateRejected || s.Reason != ReasonCodeMismatch {
		t.Errorf("expected REJECTED/code, got %s/%s", s.State, s.Reason)
	}
}

func TestSubmitResponseSuspiciousEnvironment(t *testing.T) {
	m, _ := newTestManager(t)
	issued, _ := m.IssueChallenge(context.Background())

	fp := cleanFingerprint()
	fp.AutomationDriver = true
	s, err := m.SubmitResponse(context.Background(), issued.Session.ID, issued.Code, fp)
	if err != nil {
		t.Fatalf("SubmitResponse failed: %v", err)
	}
	if s.State != StateRejected || s.Reason != ReasonEnvironment {
		t.Errorf("correct code with automation driver must reject with environment reason, got %s/%s", s.State, s.Reason)
	}
}

func TestSubmitResponseUnknownSession(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.SubmitResponse(context.Background(), "no-such-session", "ABC123", cleanFingerprint())
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSubmitResponseExpiredNeverAccepted(t *testing.T) {
	m, clock := newTestManager(t)
	issued, _ := m.IssueChallenge(context.Background())

	// One second past the TTL window; the code is correct but it must not matter.
	clock.Advance(DefaultTTL + time.Second)
	s, err := m.SubmitResponse(context.Background(), issued.Session.ID, issued.Code, cleanFingerprint())
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if s.State != StateExpired {
		t.Errorf("expected EXPIRED, got %s", s.State)
	}
	if s.Reason != ReasonLateResponse {
		t.Errorf("expected late-response reason, got %s", s.Reason)
	}
}

func TestSubmitResponseAtExactExpiryStillAccepted(t *testing.T) {
	m, clock := newTestManager(t)
	issued, _ := m.IssueChallenge(context.Background())

	clock.Advance(DefaultTTL) // now == expiresAt: still inside the window
	s, err := m.SubmitResponse(context.Background(), issued.Session.ID, issued.Code, cleanFingerprint())
	if err != nil {
		t.Fatalf("SubmitResponse failed: %v", err)
	}
	if s.State != StateAccepted {
		t.Errorf("expected ACCEPTED at exact expiry instant, got %s", s.State)
	}
}

func TestSubmitResponseSingleUse(t *testing.T) {
	m, _ := newTestManager(t)
	issued, _ := m.IssueChallenge(context.Background())

	first, err := m.SubmitResponse(context.Background(), issued.Session.ID, issued.Code, cleanFingerprint())
	if err != nil {
		t.Fatalf("first SubmitResponse failed: %v", err)
	}
	if first.State != StateAccepted {
		t.Fatalf("expected first response ACCEPTED, got %s", first.State)
	}

	second, err := m.SubmitResponse(context.Background(), issued.Session.ID, issued.Code, cleanFingerprint())
	if !errors.Is(err, ErrDuplicateResponse) {
		t.Fatalf("expected ErrDuplicateResponse, got %v", err)
	}
	if second.State != StateAccepted {
		t.Errorf("duplicate response must not change state, got %s", second.State)
	}
}

func TestSweepExpiresIdleSessions(t *testing.T) {
	m, clock := newTestManager(t)
	issued, _ := m.IssueChallenge(context.Background())

	clock.Advance(DefaultTTL + time.Minute)
	if err := m.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	s, err := m.GetSession(context.Background(), issued.Session.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if s.State != StateExpired || s.Reason != ReasonNoResponse {
		t.Errorf("expected EXPIRED/no-response after sweep, got %s/%s", s.State, s.Reason)
	}
}

func TestSweepDoesNotTouchTerminalSessions(t *testing.T) {
	m, clock := newTestManager(t)
	issued, _ := m.IssueChallenge(context.Background())

	if _, err := m.SubmitResponse(context.Background(), issued.Session.ID, issued.Code, cleanFingerprint()); err != nil {
		t.Fatalf("SubmitResponse failed: %v", err)
	}

	clock.Advance(DefaultTTL + time.Minute)
	if err := m.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	s, err := m.GetSession(context.Background(), issued.Session.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if s.State != StateAccepted {
		t.Errorf("sweep must not overwrite terminal state, got %s", s.State)
	}
}

func TestSweepArchivesPastRetention(t *testing.T) {
	m, clock := newTestManager(t, WithRetention(10*time.Minute))
	issued, _ := m.IssueChallenge(context.Background())
	if _, err := m.SubmitResponse(context.Background(), issued.Session.ID, issued.Code, cleanFingerprint()); err != nil {
		t.Fatalf("SubmitResponse failed: %v", err)
	}

	clock.Advance(DefaultTTL + 20*time.Minute)
	if err := m.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	if _, err := m.GetSession(context.Background(), issued.Session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected archived session to be gone, got %v", err)
	}
}

func TestConcurrentResponsesReachOneTerminalState(t *testing.T) {
	m, _ := newTestManager(t)
	issued, _ := m.IssueChallenge(context.Background())

	const attempts = 16
	var wg sync.WaitGroup
	accepted := make(chan State, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := m.SubmitResponse(context.Background(), issued.Session.ID, issued.Code, cleanFingerprint())
			if err == nil {
				accepted <- s.State
			}
		}()
	}
	wg.Wait()
	close(accepted)

	var successes int
	for range accepted {
		successes++
	}
	if successes != 1 {
		t.Errorf("exactly one response may succeed, got %d", successes)
	}

	s, err := m.GetSession(context.Background(), issued.Session.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if s.State != StateAccepted {
		t.Errorf("expected final state ACCEPTED, got %s", s.State)
	}
}

// contendedStore injects one remote write between a manager's read and its
// terminal write, simulating a second process racing on the same session.
type contendedStore struct {
	Store
	intrude func()
	once    sync.Once
}

func (c *contendedStore) Update(ctx context.Context, s *Session) error {
	c.once.Do(c.intrude)
	return c.Store.Update(ctx, s)
}

func TestSubmitResponseLostWriteResolvesToDuplicate(t *testing.T) {
	inner := NewMemoryStore()
	var sessionID string
	cs := &contendedStore{Store: inner, intrude: func() {
		s, err := inner.Get(context.Background(), sessionID)
		if err != nil {
			t.Errorf("intruding Get failed: %v", err)
			return
		}
		s.State = StateAccepted
		if err := inner.Update(context.Background(), s); err != nil {
			t.Errorf("intruding Update failed: %v", err)
		}
	}}
	m := NewManager(cs, logging.Default())

	issued, err := m.IssueChallenge(context.Background())
	if err != nil {
		t.Fatalf("IssueChallenge failed: %v", err)
	}
	sessionID = issued.Session.ID

	s, err := m.SubmitResponse(context.Background(), sessionID, issued.Code, cleanFingerprint())
	if !errors.Is(err, ErrDuplicateResponse) {
		t.Fatalf("losing a terminal write must surface ErrDuplicateResponse, got %v", err)
	}
	if s.State != StateAccepted {
		t.Errorf("expected the remote writer's state, got %s", s.State)
	}
}

func TestSubmitResponseLostWriteToExpiry(t *testing.T) {
	inner := NewMemoryStore()
	var sessionID string
	cs := &contendedStore{Store: inner, intrude: func() {
		s, err := inner.Get(context.Background(), sessionID)
		if err != nil {
			t.Errorf("intruding Get failed: %v", err)
			return
		}
		s.State = StateExpired
		s.Reason = ReasonNoResponse
		if err := inner.Update(context.Background(), s); err != nil {
			t.Errorf("intruding Update failed: %v", err)
		}
	}}
	m := NewManager(cs, logging.Default())

	issued, err := m.IssueChallenge(context.Background())
	if err != nil {
		t.Fatalf("IssueChallenge failed: %v", err)
	}
	sessionID = issued.Session.ID

	s, err := m.SubmitResponse(context.Background(), sessionID, issued.Code, cleanFingerprint())
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("losing to a remote expiry must surface ErrSessionExpired, got %v", err)
	}
	if s.State != StateExpired || s.Reason != ReasonNoResponse {
		t.Errorf("expected the remote expiry state, got %s/%s", s.State, s.Reason)
	}
}

func TestLateResponseFiresExpiryHook(t *testing.T) {
	var expired []*Session
	hook := func(_ context.Context, s *Session) { expired = append(expired, s) }
	m, clock := newTestManager(t, WithExpiryHook(hook))
	issued, _ := m.IssueChallenge(context.Background())

	clock.Advance(DefaultTTL + time.Second)
	if _, err := m.SubmitResponse(context.Background(), issued.Session.ID, issued.Code, cleanFingerprint()); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if len(expired) != 1 {
		t.Fatalf("expected one hook invocation, got %d", len(expired))
	}
	if expired[0].Reason != ReasonLateResponse {
		t.Errorf("expected late-response reason, got %s", expired[0].Reason)
	}

	// A repeat submit to the expired session must not fire the hook again.
	if _, err := m.SubmitResponse(context.Background(), issued.Session.ID, issued.Code, cleanFingerprint()); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired on repeat, got %v", err)
	}
	if len(expired) != 1 {
		t.Errorf("expiry hook must fire once per session, got %d", len(expired))
	}
}

func TestSweepFiresExpiryHook(t *testing.T) {
	var expired []*Session
	hook := func(_ context.Context, s *Session) { expired = append(expired, s) }
	m, clock := newTestManager(t, WithExpiryHook(hook))
	issued, _ := m.IssueChallenge(context.Background())

	clock.Advance(DefaultTTL + time.Minute)
	if err := m.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if len(expired) != 1 {
		t.Fatalf("expected one hook invocation, got %d", len(expired))
	}
	if expired[0].ID != issued.Session.ID || expired[0].Reason != ReasonNoResponse {
		t.Errorf("expected swept session with no-response reason, got %s/%s", expired[0].ID, expired[0].Reason)
	}

	// A second sweep sees a terminal session and stays quiet.
	if err := m.Sweep(context.Background()); err != nil {
		t.Fatalf("second Sweep failed: %v", err)
	}
	if len(expired) != 1 {
		t.Errorf("expiry hook must fire once per session, got %d", len(expired))
	}
}

func TestMemoryStoreUpdateRejectsStaleVersion(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	s := &Session{ID: "sess-1", State: StateIssued}
	if err := store.Create(ctx, s); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	first, _ := store.Get(ctx, "sess-1")
	second, _ := store.Get(ctx, "sess-1")

	first.State = StateAccepted
	if err := store.Update(ctx, first); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	second.State = StateRejected
	if err := store.Update(ctx, second); !errors.Is(err, ErrStaleSession) {
		t.Fatalf("expected ErrStaleSession for the stale writer, got %v", err)
	}
}

func TestTransitionTableForbidsIllegalMoves(t *testing.T) {
	if canTransition(StateResponded, StateIssued) {
		t.Error("RESPONDED -> ISSUED must be forbidden")
	}
	if canTransition(StateAccepted, StateExpired) {
		t.Error("terminal states must not transition")
	}
	if !canTransition(StateIssued, StateExpired) {
		t.Error("ISSUED -> EXPIRED must be allowed")
	}
	if !canTransition(StateResponded, StateExpired) {
		t.Error("RESPONDED -> EXPIRED must be allowed for slow validation")
	}
}
