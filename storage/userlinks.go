package storage

import (
	"go.etcd.io/bbolt"
)

// UserLinks indexes which Link ids a user has interacted with (created,
// used, or withdrawn from), so user_get_links can answer "links visible
// to user U" without scanning the full Links bucket and filtering in
// application code the way Links.ListByCreator does for the
// creator-only view.
type UserLinks struct{ db *DB }

func (d *DB) UserLinks() *UserLinks { return &UserLinks{db: d} }

// Add records that userID has a relationship with linkID. Idempotent.
func (r *UserLinks) Add(userID, linkID string) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(userLinksBucket)
		var ids []string
		if _, err := getJSON(tx, userLinksBucket, userID, &ids); err != nil {
			return err
		}
		for _, existing := range ids {
			if existing == linkID {
				return nil
			}
		}
		ids = append(ids, linkID)
		data, err := jsonMarshal(ids)
		if err != nil {
			return err
		}
		return b.Put([]byte(userID), data)
	})
}

// List returns every Link id associated with userID.
func (r *UserLinks) List(userID string) ([]string, error) {
	var ids []string
	err := r.db.View(func(tx *bbolt.Tx) error {
		_, e := getJSON(tx, userLinksBucket, userID, &ids)
		return e
	})
	return ids, err
}
