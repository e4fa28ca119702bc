// Package storage is the typed repository layer over a single bbolt
// database, grounded on the teacher's channeldb/db.go: one file, one
// bucket per entity, JSON-encoded values (the teacher binary-encodes
// its domain-specific wire types; this port has no such wire format of
// its own, so JSON is the pragmatic encoding — still one bucket per
// concern, same open/migrate/close shape).
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"
)

const (
	dbFileName       = "cashier.db"
	dbFilePermission = 0600
)

var (
	linksBucket       = []byte("links")
	actionsBucket     = []byte("actions")
	linkActionsBucket = []byte("link_actions")
	userLinksBucket   = []byte("user_links")
	userWalletsBucket = []byte("user_wallets")

	// txIndexBucket maps a Transaction id to the owning Action id, the
	// secondary index the ICRC-112 persist callback and
	// trigger_transaction use to find a Transaction's parent Action
	// without scanning every Action
	// (spec.md §6 "Persistent layout").
	txIndexBucket = []byte("transaction_index")
)

var allBuckets = [][]byte{
	linksBucket, actionsBucket, linkActionsBucket,
	userLinksBucket, userWalletsBucket, txIndexBucket,
}

// DB is the primary datastore for cashierd: link, action and
// link-action state, plus the secondary indices the core needs.
type DB struct {
	*bbolt.DB
	dbPath string
}

// Open opens (creating if necessary) the bbolt store under dataDir and
// ensures every bucket this package uses exists, mirroring
// channeldb.Open's createChannelDB + bucket-ensure sequence.
func Open(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("storage: create data dir: %w", err)
	}
	path := filepath.Join(dataDir, dbFileName)

	bdb, err := bbolt.Open(path, dbFilePermission, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open bbolt: %w", err)
	}

	db := &DB{DB: bdb, dbPath: dataDir}
	if err := db.ensureBuckets(); err != nil {
		bdb.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) ensureBuckets() error {
	return d.Update(func(tx *bbolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
}

// Wipe deletes all stored state in a single atomic transaction, used by
// tests that need a clean slate without reopening the file.
func (d *DB) Wipe() error {
	return d.Update(func(tx *bbolt.Tx) error {
		for _, b := range allBuckets {
			if err := tx.DeleteBucket(b); err != nil && err != bbolt.ErrBucketNotFound {
				return err
			}
		}
		return nil
	})
}

func jsonMarshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func putJSON(tx *bbolt.Tx, bucket []byte, key string, v interface{}) error {
	data, err := jsonMarshal(v)
	if err != nil {
		return err
	}
	return tx.Bucket(bucket).Put([]byte(key), data)
}

func getJSON(tx *bbolt.Tx, bucket []byte, key string, v interface{}) (bool, error) {
	data := tx.Bucket(bucket).Get([]byte(key))
	if data == nil {
		return false, nil
	}
	return true, json.Unmarshal(data, v)
}

// unmarshalInto decodes a raw bucket value fetched during a ForEach scan.
// bbolt's Get/ForEach byte slices are only valid for the life of the
// transaction, so every scanning repository method must copy through
// json.Unmarshal before the transaction closes.
func unmarshalInto(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
