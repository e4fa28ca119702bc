package storage

import (
	"go.etcd.io/bbolt"

	"github.com/CashierHQ/cashier-sub000/cashiererr"
	"github.com/CashierHQ/cashier-sub000/domain"
)

// Links is the repository for domain.Link aggregates, keyed by Link.ID.
type Links struct{ db *DB }

func (d *DB) Links() *Links { return &Links{db: d} }

// Put upserts a Link.
func (r *Links) Put(link *domain.Link) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		return putJSON(tx, linksBucket, link.ID, link)
	})
}

// Get fetches a Link by id, returning cashiererr.NotFound if absent.
func (r *Links) Get(id string) (*domain.Link, error) {
	var link domain.Link
	var found bool
	err := r.db.View(func(tx *bbolt.Tx) error {
		var e error
		found, e = getJSON(tx, linksBucket, id, &link)
		return e
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, cashiererr.NotFound("link_not_found", "link %s not found", id)
	}
	return &link, nil
}

// ListByCreator returns every Link whose Creator matches creator, in
// bucket-iteration (key) order. user_get_links does not use it; it reads
// storage.UserLinks.
func (r *Links) ListByCreator(creator string) ([]domain.Link, error) {
	var out []domain.Link
	err := r.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(linksBucket)
		return b.ForEach(func(_, v []byte) error {
			var link domain.Link
			if err := unmarshalInto(v, &link); err != nil {
				return err
			}
			if link.Creator == creator {
				out = append(out, link)
			}
			return nil
		})
	})
	return out, err
}
