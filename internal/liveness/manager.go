package liveness

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/proofframe/proofframe/pkg/logging"
)

// DefaultTTL is the challenge window: a session not answered within it can
// never be accepted.
const DefaultTTL = 400 * time.Second

// IssuedChallenge carries the one-time plaintext code back to the caller for
// display to the live subject. The code exists nowhere else; the stored
// session holds only its hash.
type IssuedChallenge struct {
	Session *Session
	Code    string
}

// Manager owns the liveness session lifecycle. Mutations within one process
// serialize on the per-session lock; across processes the store's versioned
// Update arbitrates, so exactly one terminal state is ever recorded.
type Manager struct {
	store     Store
	policy    FingerprintPolicy
	ttl       time.Duration
	retention time.Duration
	logger    *logging.Logger

	// now is swappable for tests that need to move the clock.
	now func() time.Time

	// onExpired fires once per session, at the moment an EXPIRED state is
	// recorded, whether by a late response or by the sweep.
	onExpired func(ctx context.Context, s *Session)

	locks keyedLocks
}

// ManagerOption tweaks Manager construction.
type ManagerOption func(*Manager)

// WithTTL overrides the challenge TTL.
func WithTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) { m.ttl = ttl }
}

// WithRetention sets how long terminal sessions stay readable before the
// sweep archives them.
func WithRetention(d time.Duration) ManagerOption {
	return func(m *Manager) { m.retention = d }
}

// WithFingerprintPolicy overrides the environment screening policy.
func WithFingerprintPolicy(p FingerprintPolicy) ManagerOption {
	return func(m *Manager) { m.policy = p }
}

// WithClock replaces the time source, for TTL tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithExpiryHook registers a callback invoked when a session is recorded
// EXPIRED. Expiry is the one terminal state with no response to answer, so
// this is how it reaches the audit trail.
func WithExpiryHook(fn func(ctx context.Context, s *Session)) ManagerOption {
	return func(m *Manager) { m.onExpired = fn }
}

// NewManager creates a session manager over the given store.
func NewManager(store Store, logger *logging.Logger, opts ...ManagerOption) *Manager {
	if store == nil {
		panic("liveness: store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	m := &Manager{
		store:     store,
		ttl:       DefaultTTL,
		retention: time.Hour,
		logger:    logger,
		now:       time.Now,
		locks:     keyedLocks{locks: make(map[string]*sync.Mutex)},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IssueChallenge creates a new session in state ISSUED and returns the
// plaintext code exactly once. The code must not be logged or persisted.
func (m *Manager) IssueChallenge(ctx context.Context) (*IssuedChallenge, error) {
	code, err := generateCode()
	if err != nil {
		return nil, err
	}
	now := m.now().UTC()
	session := &Session{
		ID:                uuid.NewString(),
		ChallengeCodeHash: hashCode(code),
		CreatedAt:         now,
		ExpiresAt:         now.Add(m.ttl),
		State:             StateIssued,
	}
	if err := m.store.Create(ctx, session); err != nil {
		return nil, err
	}
	m.logger.Info("liveness challenge issued",
		"session_id", session.ID,
		"expires_at", session.ExpiresAt,
	)
	return &IssuedChallenge{Session: session, Code: code}, nil
}

// GetSession returns the current state of a session.
func (m *Manager) GetSession(ctx context.Context, id string) (*Session, error) {
	return m.store.Get(ctx, id)
}

// SubmitResponse consumes the single allowed response for a session. The
// expiry check uses one timestamp captured under the session lock, so it
// cannot race the background sweep. An expired session is never accepted,
// even with the correct code.
func (m *Manager) SubmitResponse(ctx context.Context, id, code string, fp *EnvironmentFingerprint) (*Session, error) {
	unlock := m.locks.lock(id)
	defer unlock()

	session, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	if session.ExpiredAt(now) {
		if !session.State.Terminal() {
			session.transition(StateExpired)
			session.Reason = ReasonLateResponse
			session.RespondedAt = &now
			if err := m.store.Update(ctx, session); err != nil {
				if errors.Is(err, ErrStaleSession) {
					return m.resolveConflict(ctx, id)
				}
				return nil, err
			}
			m.notifyExpired(ctx, session)
			m.logger.Info("liveness session expired on late response", "session_id", id)
		}
		return session, ErrSessionExpired
	}

	if session.State != StateIssued {
		return session, ErrDuplicateResponse
	}

	session.transition(StateResponded)
	session.RespondedAt = &now
	session.Fingerprint = fp

	// Both checks always run so a rejection's timing does not reveal which
	// one failed.
	matched := codeMatches(session.ChallengeCodeHash, code)
	envFailures := m.policy.Evaluate(fp)

	switch {
	case matched && len(envFailures) == 0:
		session.transition(StateAccepted)
	case !matched:
		session.transition(StateRejected)
		session.Reason = ReasonCodeMismatch
	default:
		session.transition(StateRejected)
		session.Reason = ReasonEnvironment
	}

	if err := m.store.Update(ctx, session); err != nil {
		if errors.Is(err, ErrStaleSession) {
			return m.resolveConflict(ctx, id)
		}
		return nil, err
	}
	m.logger.Info("liveness response recorded",
		"session_id", id,
		"state", session.State,
		"reason", session.Reason,
		"env_failures", len(envFailures),
	)
	return session, nil
}

// resolveConflict re-reads a session after a lost store write. A writer in
// another process already recorded a terminal state; surface it the same way
// a local second response would be.
func (m *Manager) resolveConflict(ctx context.Context, id string) (*Session, error) {
	session, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.State == StateExpired {
		return session, ErrSessionExpired
	}
	return session, ErrDuplicateResponse
}

func (m *Manager) notifyExpired(ctx context.Context, s *Session) {
	if m.onExpired == nil {
		return
	}
	cp := *s
	m.onExpired(ctx, &cp)
}

// Sweep transitions ISSUED sessions past their TTL to EXPIRED and archives
// terminal sessions past the retention window. It takes the same per-session
// lock as SubmitResponse; an in-flight response always wins.
func (m *Manager) Sweep(ctx context.Context) error {
	ids, err := m.store.ActiveIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := m.sweepOne(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) sweepOne(ctx context.Context, id string) error {
	unlock := m.locks.lock(id)
	defer unlock()

	session, err := m.store.Get(ctx, id)
	if err != nil {
		if err == ErrSessionNotFound {
			return nil
		}
		return err
	}

	now := m.now().UTC()
	if !session.State.Terminal() && session.ExpiredAt(now) {
		session.transition(StateExpired)
		session.Reason = ReasonNoResponse
		if err := m.store.Update(ctx, session); err != nil {
			if errors.Is(err, ErrStaleSession) {
				// An in-flight response in another process won the write.
				return nil
			}
			return err
		}
		m.notifyExpired(ctx, session)
		m.logger.Info("liveness session expired by sweep", "session_id", id)
		return nil
	}

	if age, terminal := terminalSince(session, now); terminal && age > m.retention {
		if err := m.store.Delete(ctx, id); err != nil {
			return err
		}
		m.locks.forget(id)
	}
	return nil
}

// StartSweeper runs Sweep on the given interval until ctx is canceled.
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.Sweep(ctx); err != nil {
					m.logger.Error("liveness sweep failed", "error", err)
				}
			}
		}
	}()
}

// keyedLocks hands out one mutex per session id.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedLocks) lock(id string) func() {
	k.mu.Lock()
	l, ok := k.locks[id]
	if !ok {
		l = &sync.Mutex{}
		k.locks[id] = l
	}
	k.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (k *keyedLocks) forget(id string) {
	k.mu.Lock()
	delete(k.locks, id)
	k.mu.Unlock()
}

// String renders a session one-liner for operator logs without touching any
// secret material.
func (s *Session) String() string {
	return fmt.Sprintf("session %s state=%s expires=%s", s.ID, s.State, s.ExpiresAt.Format(time.RFC3339))
}
