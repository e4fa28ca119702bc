package storage

import (
	"time"

	"go.etcd.io/bbolt"

	"github.com/CashierHQ/cashier-sub000/cashiererr"
	"github.com/CashierHQ/cashier-sub000/domain"
)

// Actions is the repository for domain.Action aggregates (which embed
// their Intents and the Intents' Transactions), keyed by Action.ID. It
// additionally maintains txIndexBucket, a Transaction.ID -> Action.ID
// secondary index, the same role channeldb's "index bucket next to the
// primary bucket" pattern plays for its payment/htlc lookups.
type Actions struct{ db *DB }

func (d *DB) Actions() *Actions { return &Actions{db: d} }

// Put upserts an Action and refreshes its Transaction index entries.
func (r *Actions) Put(action *domain.Action) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		if err := putJSON(tx, actionsBucket, action.ID, action); err != nil {
			return err
		}
		idx := tx.Bucket(txIndexBucket)
		for _, intent := range action.Intents {
			for _, t := range intent.Transactions {
				if err := idx.Put([]byte(t.ID), []byte(action.ID)); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Get fetches an Action by id, returning cashiererr.NotFound if absent.
func (r *Actions) Get(id string) (*domain.Action, error) {
	var action domain.Action
	var found bool
	err := r.db.View(func(tx *bbolt.Tx) error {
		var e error
		found, e = getJSON(tx, actionsBucket, id, &action)
		return e
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, cashiererr.NotFound("action_not_found", "action %s not found", id)
	}
	return &action, nil
}

// ActionIDForTransaction resolves a Transaction id to its owning Action
// id via the secondary index, used by service's ICRC-112 persist callback
// and trigger_transaction to locate the aggregate a bare transaction id
// belongs to.
func (r *Actions) ActionIDForTransaction(transactionID string) (string, error) {
	var actionID string
	err := r.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(txIndexBucket).Get([]byte(transactionID))
		if v == nil {
			return cashiererr.NotFound("transaction_not_indexed", "transaction %s has no owning action", transactionID)
		}
		actionID = string(v)
		return nil
	})
	return actionID, err
}

// ListByLink returns every Action recorded against linkID, in bucket
// iteration order. Used to build an ActionDto history (spec.md §6,
// SPEC_FULL.md §C.3's GetLinkOptions.IncludeActionHistory).
func (r *Actions) ListByLink(linkID string) ([]domain.Action, error) {
	var out []domain.Action
	err := r.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(actionsBucket).ForEach(func(_, v []byte) error {
			var a domain.Action
			if err := unmarshalInto(v, &a); err != nil {
				return err
			}
			if a.LinkID == linkID {
				out = append(out, a)
			}
			return nil
		})
	})
	return out, err
}

// ListProcessing returns every Transaction still in domain.StateProcessing
// across every Action, paired with its owning Action and Intent ids. The
// Timeout Supervisor calls this once at startup to re-arm a timer for
// each (spec.md §4.10), mirroring breacharbiter.go's restart scan over
// its retribution bucket.
type ProcessingTx struct {
	ActionID      string
	IntentID      string
	TransactionID string
	CreatedAt     time.Time
}

func (r *Actions) ListProcessing() ([]ProcessingTx, error) {
	var out []ProcessingTx
	err := r.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(actionsBucket).ForEach(func(_, v []byte) error {
			var a domain.Action
			if err := unmarshalInto(v, &a); err != nil {
				return err
			}
			for _, intent := range a.Intents {
				for _, t := range intent.Transactions {
					if t.State == domain.StateProcessing {
						out = append(out, ProcessingTx{
							ActionID:      a.ID,
							IntentID:      intent.ID,
							TransactionID: t.ID,
							CreatedAt:     t.CreatedAtTime,
						})
					}
				}
			}
			return nil
		})
	})
	return out, err
}
