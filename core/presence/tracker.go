package presence

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/toniiplaycode/DNC-Learning-sub001/core"
	"github.com/toniiplaycode/DNC-Learning-sub001/core/attendance"
	"github.com/toniiplaycode/DNC-Learning-sub001/core/session"
)

var (
	nowFunc = time.Now // mockable

	// errors
	ErrNotIdle                = errors.New("tracker already started")
	ErrAlreadyActiveElsewhere = errors.New("participant is already active on another device")
)

// State is a tracker's local lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StateJoining State = "joining"
	StateActive  State = "active"
	StateLeaving State = "leaving"
)

// Ledger is the slice of the attendance ledger a tracker talks to;
// implemented by the attendance service.
type Ledger interface {
	Join(ctx context.Context, sessionID, participantID string, at time.Time) (attendance.Record, error)
	Leave(ctx context.Context, sessionID, participantID string, at time.Time) (attendance.Record, error)
}

// PresenceSession is the ephemeral "currently inside this session" view: a
// value snapshot over one ledger record, never ambient shared state.
// Elapsed is always re-derived from the ledger's authoritative join
// timestamp, not from a client clock snapshot.
type PresenceSession struct {
	SessionID     string        `json:"sessionId"`
	ParticipantID string        `json:"participantId"`
	JoinTime      time.Time     `json:"joinTime"`
	Elapsed       time.Duration `json:"elapsed"`
}

// Tracker drives one participant's presence in one live session from a
// single device. Its tick loop is a cooperative timer on its own goroutine;
// only Start and Stop perform a (bounded) round trip to the ledger.
type Tracker struct {
	ledger        Ledger
	registry      *Registry
	sess          session.Session
	participantID string
	conf          core.PresenceConfig

	mu       sync.Mutex
	state    State
	rec      attendance.Record
	elapsed  time.Duration
	stopTick chan struct{}
}

func NewTracker(ledger Ledger, registry *Registry, sess session.Session, participantID string, conf core.PresenceConfig) *Tracker {
	if conf.TickInterval <= 0 {
		conf.TickInterval = time.Second
	}
	if conf.CallTimeout <= 0 {
		conf.CallTimeout = 5 * time.Second
	}
	return &Tracker{
		ledger:        ledger,
		registry:      registry,
		sess:          sess,
		participantID: participantID,
		conf:          conf,
		state:         StateIdle,
	}
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Elapsed reports the participation time derived from the ledger's join
// timestamp at the last tick.
func (t *Tracker) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.elapsed
}

// Snapshot returns the current presence view; zero value while Idle.
func (t *Tracker) Snapshot() PresenceSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateActive || t.rec.JoinTime == nil {
		return PresenceSession{}
	}
	return PresenceSession{
		SessionID:     t.sess.ID,
		ParticipantID: t.participantID,
		JoinTime:      *t.rec.JoinTime,
		Elapsed:       t.elapsed,
	}
}

// Start transitions Idle→Joining→Active: it joins through the ledger with a
// bounded timeout and begins the periodic tick. On any failure the tracker
// returns to Idle and the error is surfaced to the caller; there is no
// silent retry.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.state != StateIdle {
		t.mu.Unlock()
		return ErrNotIdle
	}
	t.state = StateJoining
	t.mu.Unlock()

	if t.registry != nil {
		if err := t.registry.acquire(t); err != nil {
			t.setState(StateIdle)
			return err
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, t.conf.CallTimeout)
	defer cancel()
	rec, err := t.ledger.Join(callCtx, t.sess.ID, t.participantID, nowFunc().UTC())
	if err != nil {
		if t.registry != nil {
			t.registry.release(t)
		}
		t.setState(StateIdle)
		return err
	}

	stop := make(chan struct{})
	t.mu.Lock()
	t.rec = rec
	t.state = StateActive
	if rec.JoinTime != nil {
		t.elapsed = nowFunc().UTC().Sub(*rec.JoinTime)
	}
	t.stopTick = stop
	t.mu.Unlock()

	go t.loop(stop)
	return nil
}

// Stop transitions Active→Leaving→Idle. The leave round trip is
// best-effort: local state releases whatever the ledger says, and the
// session-end finalize acts as the safety net for a lost leave. Stopping an
// idle tracker is a no-op.
func (t *Tracker) Stop(ctx context.Context) (attendance.Record, error) {
	t.mu.Lock()
	if t.state != StateActive {
		rec := t.rec
		t.mu.Unlock()
		return rec, nil
	}
	t.state = StateLeaving
	stop := t.stopTick
	t.stopTick = nil
	t.mu.Unlock()

	if stop != nil {
		close(stop)
	}

	callCtx, cancel := context.WithTimeout(ctx, t.conf.CallTimeout)
	defer cancel()
	rec, err := t.ledger.Leave(callCtx, t.sess.ID, t.participantID, nowFunc().UTC())

	t.mu.Lock()
	if err == nil {
		t.rec = rec
	}
	rec = t.rec
	t.state = StateIdle
	t.mu.Unlock()

	if t.registry != nil {
		t.registry.release(t)
	}
	if err != nil {
		return rec, errors.Wrap(err, "leaving session")
	}
	return rec, nil
}

func (t *Tracker) loop(stop chan struct{}) {
	ticker := time.NewTicker(t.conf.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !t.tick() {
				return
			}
		}
	}
}

// tick recomputes elapsed from the authoritative join timestamp and forces
// Active→Idle once the session window has elapsed; the ledger record is
// then closed by finalize, not by the tracker.
func (t *Tracker) tick() bool {
	now := nowFunc().UTC()

	t.mu.Lock()
	if t.state != StateActive {
		t.mu.Unlock()
		return false
	}
	if t.rec.JoinTime != nil {
		t.elapsed = now.Sub(*t.rec.JoinTime)
	}
	if now.After(t.sess.EndTime) {
		t.state = StateIdle
		t.stopTick = nil
		t.mu.Unlock()
		if t.registry != nil {
			t.registry.release(t)
		}
		return false
	}
	t.mu.Unlock()
	return true
}

func (t *Tracker) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// Registry guards against the same participant tracking the same session
// from two devices at once; enforcement is policy-gated.
type Registry struct {
	mu     sync.Mutex
	active map[string]*Tracker
	single bool
}

func NewRegistry(singleActiveTracker bool) *Registry {
	return &Registry{
		active: make(map[string]*Tracker),
		single: singleActiveTracker,
	}
}

func (r *Registry) key(t *Tracker) string {
	return t.sess.ID + "/" + t.participantID
}

func (r *Registry) acquire(t *Tracker) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := r.key(t)
	if cur, ok := r.active[key]; ok && cur != t && r.single {
		return ErrAlreadyActiveElsewhere
	}
	r.active[key] = t
	return nil
}

func (r *Registry) release(t *Tracker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := r.key(t)
	if cur, ok := r.active[key]; ok && cur == t {
		delete(r.active, key)
	}
}
