// Package requestlock implements the per-resource mutual exclusion of
// spec.md §4.2. It is the concurrency substitute for the IC canister's
// single-threaded cooperative scheduling guarantee (spec.md §5,
// SPEC_FULL.md §5): every mutating entry point acquires a scoped lock
// before touching storage and releases it on every exit path.
//
// The shape is lifted directly from the teacher's
// htlcswitch.paymentControl (htlcswitch/switch_control.go): a
// sync.Mutex-guarded map, atomic insert-or-fail on entry, unconditional
// remove on exit, no re-entrancy.
package requestlock

import (
	"fmt"
	"sync"
	"time"

	"github.com/CashierHQ/cashier-sub000/cashiererr"
)

// Service is a process-wide table of held locks. The zero value is
// ready to use.
type Service struct {
	mu    sync.Mutex
	held  map[string]time.Time
}

// New returns an empty lock Service.
func New() *Service {
	return &Service{held: make(map[string]time.Time)}
}

// CreateLock atomically inserts key if absent, recording now as the
// holder timestamp. If key is already held it returns
// *cashiererr.Error with Kind KindRequestLockExists.
func (s *Service) CreateLock(key string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.held[key]; exists {
		return cashiererr.LockHeld(key)
	}
	if s.held == nil {
		s.held = make(map[string]time.Time)
	}
	s.held[key] = now
	return nil
}

// Drop unconditionally removes key, whether or not it was held. Callers
// must invoke Drop on every exit path of the guarded operation,
// including error returns — locks here are not re-entrant and nothing
// else will release them.
func (s *Service) Drop(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.held, key)
}

// HeldSince reports whether key is currently held and, if so, since when.
func (s *Service) HeldSince(key string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.held[key]
	return t, ok
}

// Guard acquires key then returns a release func that must be deferred
// immediately: `release, err := lock.Guard(...); if err != nil { return
// err }; defer release()`. It exists purely to make the "drop on every
// exit path" rule hard to get wrong at call sites.
func (s *Service) Guard(key string, now time.Time) (release func(), err error) {
	if err := s.CreateLock(key, now); err != nil {
		return func() {}, err
	}
	return func() { s.Drop(key) }, nil
}

// Key-building helpers. Keys are deterministic strings composed from the
// mutating operation and its scope, per spec.md §4.2's examples.

func CreateActionKey(linkID, caller string) string {
	return fmt.Sprintf("create_action:%s:%s", linkID, caller)
}

func ProcessActionKey(caller, linkID, actionID string) string {
	return fmt.Sprintf("process_action:%s:%s:%s", caller, linkID, actionID)
}

func UpdateActionKey(caller, linkID, actionID string) string {
	return fmt.Sprintf("update_action:%s:%s:%s", caller, linkID, actionID)
}

func CreateLinkKey(caller string) string {
	return fmt.Sprintf("create_link:%s", caller)
}

func TriggerTransactionKey(transactionID string) string {
	return fmt.Sprintf("trigger_transaction:%s", transactionID)
}
