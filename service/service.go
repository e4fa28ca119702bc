// Package service is the orchestration facade of spec.md §6/SPEC_FULL.md
// §6: the single type every external entry point (Link API, Action API)
// calls through. It wires the rate limiter, request lock, storage,
// assembler, state machines, accountant, validator, executor and
// timeout supervisor behind one Service, the same role the teacher's
// server.go plays wiring htlcswitch.Switch, channeldb.DB and
// routing.Router behind one server type.
package service

import (
	"context"
	"time"

	"github.com/lightningnetwork/lnd/clock"

	"github.com/CashierHQ/cashier-sub000/accountant"
	"github.com/CashierHQ/cashier-sub000/assembler"
	"github.com/CashierHQ/cashier-sub000/build"
	"github.com/CashierHQ/cashier-sub000/candid"
	"github.com/CashierHQ/cashier-sub000/cashiererr"
	"github.com/CashierHQ/cashier-sub000/config"
	"github.com/CashierHQ/cashier-sub000/domain"
	"github.com/CashierHQ/cashier-sub000/executor"
	"github.com/CashierHQ/cashier-sub000/icrc112"
	"github.com/CashierHQ/cashier-sub000/ledger"
	"github.com/CashierHQ/cashier-sub000/ratelimit"
	"github.com/CashierHQ/cashier-sub000/requestlock"
	"github.com/CashierHQ/cashier-sub000/statemachine"
	"github.com/CashierHQ/cashier-sub000/storage"
	"github.com/CashierHQ/cashier-sub000/supervisor"
	"github.com/CashierHQ/cashier-sub000/validator"
)

var log = build.NewSubLogger(build.SubsystemService)

// Service is the orchestration core behind every entry point in spec.md
// §6. The zero value is not usable; construct with New.
type Service struct {
	cfg   *config.Config
	db    *storage.DB
	clock clock.Clock

	rateLimit  *ratelimit.Limiter[int64]
	lock       *requestlock.Service
	assembler  *assembler.Assembler
	linkSM     *statemachine.Link
	actionSM   *statemachine.Action
	linkActSM  *statemachine.LinkActionMachine
	accountant *accountant.Accountant
	executor   *executor.Executor
	builder    *icrc112.Builder
	supervisor *supervisor.Supervisor
}

// New wires every subsystem the orchestration core needs. ledgerClient
// and encoder are the two out-of-scope collaborators (spec.md §1, §6):
// a real deployment supplies ledger canister RPC clients and a Candid
// encoder; tests supply ledger.Fake and candid.JSONEncoder.
func New(cfg *config.Config, db *storage.DB, ledgerClient ledger.Client, encoder candid.Encoder) *Service {
	v := validator.New(ledgerClient)
	exec := executor.New(ledgerClient, v)

	rules := make(map[string]ratelimit.Rule, len(cfg.RateLimits))
	for method, r := range cfg.RateLimits {
		rules[method] = ratelimit.Rule{Capacity: r.Capacity, Window: r.Window}
	}

	s := &Service{
		cfg:        cfg,
		db:         db,
		clock:      clock.NewDefaultClock(),
		lock:       requestlock.New(),
		assembler:  assembler.New(),
		linkSM:     statemachine.NewLink(),
		linkActSM:  statemachine.NewLinkActionMachine(),
		accountant: accountant.New(),
		executor:   exec,
	}
	s.rateLimit = ratelimit.New(rules, func(t time.Time) int64 { return t.UnixNano() })
	s.builder = icrc112.New(encoder, s.now, s.persistTransaction)
	s.actionSM = statemachine.NewAction(s.linkSM, s.builder, v, exec)
	s.supervisor = supervisor.New(cfg.TxTimeout, s.now, s.onTransactionTimeout)
	return s
}

func (s *Service) now() time.Time { return s.clock.Now() }

// SetClock overrides the "now" source, used by tests that need
// deterministic timeout behavior via clock.NewTestClock.
func (s *Service) SetClock(c clock.Clock) { s.clock = c }

// persistTransaction implements icrc112.PersistTransaction: when the
// Builder refreshes a stale Transaction's CreatedAtTime, the updated
// Action (which embeds the Transaction) must be written back before the
// caller sees the refreshed request (spec.md §4.3 step 5). The Builder
// only gives us the Transaction, so we resolve its owning Action via the
// secondary index and rewrite the whole aggregate.
func (s *Service) persistTransaction(ctx context.Context, tx *domain.Transaction) error {
	actionID, err := s.db.Actions().ActionIDForTransaction(tx.ID)
	if err != nil {
		return err
	}
	action, err := s.db.Actions().Get(actionID)
	if err != nil {
		return err
	}
	for i := range action.Intents {
		for j := range action.Intents[i].Transactions {
			if action.Intents[i].Transactions[j].ID == tx.ID {
				action.Intents[i].Transactions[j].CreatedAtTime = tx.CreatedAtTime
			}
		}
	}
	return s.db.Actions().Put(action)
}

// onTransactionTimeout is the supervisor.Resolver: it cascades the
// timed-out Transaction's Action to Fail (spec.md §3 invariant 3, §4.10)
// and re-runs the same Link/LinkAction/Accountant pipeline update_action
// runs on a normal resolution, since a forced timeout is a resolution.
func (s *Service) onTransactionTimeout(actionID, intentID, transactionID string) {
	action, err := s.db.Actions().Get(actionID)
	if err != nil {
		log.Errorf("timeout cascade: load action=%s: %v", actionID, err)
		return
	}
	if action.State.Terminal() {
		return
	}
	supervisor.Cascade(action, intentID, transactionID)
	if err := s.db.Actions().Put(action); err != nil {
		log.Errorf("timeout cascade: persist action=%s: %v", actionID, err)
		return
	}
	if err := s.finalizeResolvedAction(action); err != nil {
		log.Errorf("timeout cascade: finalize action=%s: %v", actionID, err)
	}
}

// RearmTimeouts re-schedules a supervisor timer for every Transaction
// still Processing, called once at process startup (spec.md §4.10).
func (s *Service) RearmTimeouts() error {
	pending, err := s.db.Actions().ListProcessing()
	if err != nil {
		return err
	}
	watched := make([]supervisor.Watched, 0, len(pending))
	for _, p := range pending {
		watched = append(watched, supervisor.Watched{
			ActionID:      p.ActionID,
			IntentID:      p.IntentID,
			TransactionID: p.TransactionID,
			CreatedAtTime: p.CreatedAt,
		})
	}
	s.supervisor.RearmAll(watched)
	log.Infof("rearmed %d outstanding transaction timeouts", len(watched))
	return nil
}

// StartBackgroundWorkers starts the rate limiter's idle-entry cleanup
// sweep. Call Close to stop it at shutdown.
func (s *Service) StartBackgroundWorkers() {
	s.rateLimit.StartCleanup()
}

func (s *Service) Close() {
	s.rateLimit.Stop()
}

// checkRateLimit wraps ratelimit.Limiter.TryAcquire, translating a denial
// into the stable cashiererr.KindRateLimit per spec.md §7.
func (s *Service) checkRateLimit(caller, method string) error {
	_, err := s.rateLimit.TryAcquire(caller, method, s.now(), 1)
	if err == nil {
		return nil
	}
	rateLimitRejectionsTotal.WithLabelValues(method).Inc()
	var retryAfter time.Duration
	if denied, ok := err.(*ratelimit.DeniedError); ok {
		retryAfter = denied.RetryAfter
	}
	return cashiererr.RateLimited(retryAfter)
}

// withLock acquires key, runs fn, and always releases key before
// returning — the "acquire on entry, drop on every exit path" rule every
// mutating entry point in spec.md §5 must follow.
func (s *Service) withLock(key string, fn func() error) error {
	release, err := s.lock.Guard(key, s.now())
	if err != nil {
		lockContentionTotal.WithLabelValues(lockMethod(key)).Inc()
		return err
	}
	defer release()
	return fn()
}

// lockMethod extracts the leading "method:" segment of a requestlock
// key (e.g. "update_action:alice:link1:action1" -> "update_action") for
// use as a low-cardinality metric label.
func lockMethod(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return key[:i]
		}
	}
	return key
}
