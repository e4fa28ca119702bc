package storage

import (
	"go.etcd.io/bbolt"
)

// UserWallets maps a wallet principal to the stable user id it
// authenticated as (spec.md §6's UserWallet store), mirroring
// original_source's UserWalletRepository: callers look up their
// authenticated user id by wallet principal before any Action or
// LinkAction row is written, so every such row carries a stable user
// id rather than a possibly-rotated wallet address.
type UserWallets struct{ db *DB }

func (d *DB) UserWallets() *UserWallets { return &UserWallets{db: d} }

// Link associates wallet with userID. Idempotent; last write wins if the
// wallet was previously linked to a different user id.
func (r *UserWallets) Link(wallet, userID string) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(userWalletsBucket).Put([]byte(wallet), []byte(userID))
	})
}

// UserIDFor resolves a wallet principal to its linked user id, or
// returns ok=false if the wallet has never been linked — the anonymous
// case, where callers fall back to domain.AnonymousCreator(wallet).
func (r *UserWallets) UserIDFor(wallet string) (userID string, ok bool, err error) {
	err = r.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(userWalletsBucket).Get([]byte(wallet))
		if v != nil {
			userID = string(v)
			ok = true
		}
		return nil
	})
	return userID, ok, err
}
