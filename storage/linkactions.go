package storage

import (
	"bytes"

	"go.etcd.io/bbolt"

	"github.com/CashierHQ/cashier-sub000/domain"
)

// LinkActions is the repository for the (LinkID, ActionType, UserID,
// ActionID) join entity described in spec.md §3. Keys are
// PrefixKey()+"\x00"+ActionID so a prefix scan over
// (LinkID, ActionType, UserID) returns every Action a user has taken of
// that type against that link, in key (and so ActionID) order —
// bbolt's B+tree keeps keys sorted, which is what makes Cursor.Seek +
// prefix-walk efficient instead of a full-bucket scan.
type LinkActions struct{ db *DB }

func (d *DB) LinkActions() *LinkActions { return &LinkActions{db: d} }

func linkActionKey(la *domain.LinkAction) []byte {
	return []byte(la.PrefixKey() + "\x00" + la.ActionID)
}

// Put upserts a LinkAction row.
func (r *LinkActions) Put(la *domain.LinkAction) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		data, err := marshalLinkAction(la)
		if err != nil {
			return err
		}
		return tx.Bucket(linkActionsBucket).Put(linkActionKey(la), data)
	})
}

// ByPrefix returns every LinkAction matching (linkID, actionType, userID),
// i.e. spec.md's get_by_prefix lookup, in ascending ActionID order.
func (r *LinkActions) ByPrefix(linkID string, actionType domain.ActionType, userID string) ([]domain.LinkAction, error) {
	prefix := []byte(domain.LinkActionPrefix(linkID, actionType, userID) + "\x00")
	var out []domain.LinkAction
	err := r.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(linkActionsBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var la domain.LinkAction
			if err := unmarshalLinkAction(v, &la); err != nil {
				return err
			}
			out = append(out, la)
		}
		return nil
	})
	return out, err
}

// Latest returns the LinkAction for (linkID, actionType, userID) with
// the lexicographically greatest ActionID suffix. ActionID is a google/uuid v4 string, so
// "greatest suffix" is not chronological order; callers that need the
// actual latest-in-time row should compare the returned Actions'
// Transaction.CreatedAtTime via storage.Actions instead. This mirrors
// spec.md's LinkUserState use case of "does this user have any row at
// all for this (link, action_type)", not a time-ordering query.
func (r *LinkActions) Latest(linkID string, actionType domain.ActionType, userID string) (*domain.LinkAction, error) {
	rows, err := r.ByPrefix(linkID, actionType, userID)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[len(rows)-1], nil
}

func marshalLinkAction(la *domain.LinkAction) ([]byte, error) { return jsonMarshal(la) }
func unmarshalLinkAction(data []byte, la *domain.LinkAction) error {
	return unmarshalInto(data, la)
}
