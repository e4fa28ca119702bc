// Package supervisor implements the Timeout Supervisor of spec.md
// §4.10: on startup (init or post-upgrade), every Transaction still in
// Processing gets a one-shot timer; if it is still Processing when the
// timer fires, it is forced to Fail and the failure cascades to its
// Intent and Action per spec.md §3 invariant 3.
//
// Re-arming every outstanding timer from persisted state at startup
// mirrors the teacher's breacharbiter.go, which re-schedules a justice
// watch for every retribution record found in its store when the
// process (re)starts.
package supervisor

import (
	"sync"
	"time"

	"github.com/CashierHQ/cashier-sub000/build"
	"github.com/CashierHQ/cashier-sub000/domain"
)

var log = build.NewSubLogger(build.SubsystemSupervisor)

// DefaultTxTimeout is spec.md §4.10's TX_TIMEOUT default.
const DefaultTxTimeout = 5 * time.Minute

// Resolver is called when a watched Transaction times out; it must
// persist the cascaded Fail state for the Transaction, its Intent and
// its Action (spec.md §3 invariant 3) and is expected to re-run the
// Link/LinkAction state machines exactly as update_action would.
type Resolver func(actionID, intentID, transactionID string)

// Supervisor tracks one timer per outstanding Transaction id.
type Supervisor struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	timeout time.Duration
	now     func() time.Time
	resolve Resolver
}

// New constructs a Supervisor. nowFn defaults to time.Now when nil.
func New(timeout time.Duration, nowFn func() time.Time, resolve Resolver) *Supervisor {
	if timeout <= 0 {
		timeout = DefaultTxTimeout
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Supervisor{
		timers:  make(map[string]*time.Timer),
		timeout: timeout,
		now:     nowFn,
		resolve: resolve,
	}
}

// Watched is one Processing Transaction the supervisor must re-arm,
// together with the Intent/Action it belongs to.
type Watched struct {
	ActionID      string
	IntentID      string
	TransactionID string
	CreatedAtTime time.Time
}

// RearmAll schedules (or immediately fires, if already overdue) a timer
// for every Watched entry. Called once at process startup with every
// persisted Transaction in state Processing (spec.md §4.10: "On init
// and post-upgrade, enumerate all Transactions in state Processing").
func (s *Supervisor) RearmAll(watched []Watched) {
	for _, w := range watched {
		s.Arm(w)
	}
}

// Arm schedules a one-shot timer for a single Transaction at
// created_at + TX_TIMEOUT. If that instant has already passed, the
// callback fires on the next scheduler tick rather than synchronously,
// so RearmAll never blocks startup on a burst of already-overdue
// transactions.
func (s *Supervisor) Arm(w Watched) {
	deadline := w.CreatedAtTime.Add(s.timeout)
	delay := deadline.Sub(s.now())
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.timers[w.TransactionID]; ok {
		existing.Stop()
	}
	s.timers[w.TransactionID] = time.AfterFunc(delay, func() {
		s.fire(w)
	})
}

// Disarm cancels a pending timer, called once the Transaction resolves
// through the normal update_action path before the timer fires.
func (s *Supervisor) Disarm(transactionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[transactionID]; ok {
		t.Stop()
		delete(s.timers, transactionID)
	}
}

func (s *Supervisor) fire(w Watched) {
	s.mu.Lock()
	delete(s.timers, w.TransactionID)
	s.mu.Unlock()

	log.Warnf("transaction=%s timed out after %s, forcing Fail", w.TransactionID, s.timeout)
	s.resolve(w.ActionID, w.IntentID, w.TransactionID)
}

// Cascade applies the spec.md §3 invariant 3 cascade in memory: forces
// tx to Fail, then recomputes intent's and action's derived states. It
// is the pure-logic half of what a Resolver must do; the Resolver is
// additionally responsible for persisting the result and re-running the
// Link/Accountant pipeline, which needs storage access this package
// deliberately does not have.
func Cascade(action *domain.Action, intentID, transactionID string) {
	for i := range action.Intents {
		intent := &action.Intents[i]
		if intent.ID != intentID {
			continue
		}
		for j := range intent.Transactions {
			tx := &intent.Transactions[j]
			if tx.ID == transactionID && !tx.State.Terminal() {
				tx.State = domain.StateFail
			}
		}
		intent.State = intent.DeriveState()
	}
	action.State = action.DeriveState()
}
