package channeldb

import (
	"errors"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"
)

const (
	dbName           = "channel.db"
	dbFilePermission = 0600
)

var (
	// openChannelBucket stores the serialized state of all currently
	// open channels, keyed by the compressed public key of the remote
	// peer.
	openChannelBucket = []byte("ocb")

	// ErrNoChannelFound is returned when no channel state exists for
	// the queried peer.
	ErrNoChannelFound = errors.New("no channel found for peer")
)

// DB is the durable store for channel state. A single DB backs all of a
// node's peers.
type DB struct {
	store *bbolt.DB
	path  string
}

// Open opens (creating if necessary) the channel database within the given
// directory.
func Open(dbPath string) (*DB, error) {
	path := filepath.Join(dbPath, dbName)

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		if err := os.MkdirAll(dbPath, 0700); err != nil {
			return nil, err
		}
	}

	store, err := bbolt.Open(path, dbFilePermission, nil)
	if err != nil {
		return nil, err
	}

	err = store.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(openChannelBucket)
		return err
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &DB{
		store: store,
		path:  path,
	}, nil
}

// Close shuts the underlying database down.
func (d *DB) Close() error {
	return d.store.Close()
}

// PutChannel writes the full serialized state of the channel with the
// given peer, replacing any prior snapshot.
func (d *DB) PutChannel(channel *Channel) error {
	return d.store.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(openChannelBucket)

		serialized, err := serializeChannel(channel)
		if err != nil {
			return err
		}

		return bucket.Put(channel.PeerID[:], serialized)
	})
}

// FetchChannel loads the channel state stored for the given peer.
func (d *DB) FetchChannel(peerID [33]byte) (*Channel, error) {
	var channel *Channel

	err := d.store.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(openChannelBucket)

		serialized := bucket.Get(peerID[:])
		if serialized == nil {
			return ErrNoChannelFound
		}

		var err error
		channel, err = deserializeChannel(serialized)
		return err
	})
	if err != nil {
		return nil, err
	}

	return channel, nil
}

// DeleteChannel removes all state stored for the given peer, typically
// after the channel has fully closed on-chain.
func (d *DB) DeleteChannel(peerID [33]byte) error {
	return d.store.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(openChannelBucket).Delete(peerID[:])
	})
}
