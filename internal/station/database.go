package station

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	identifierBucketName = "identifiers"
	scanBucketName       = "scans"
)

// DB defines the interface for registry and scan log operations
type DB interface {
	// CreateIdentifier registers a new identifier, failing with
	// ErrDuplicateIdentifier if the ID is taken
	CreateIdentifier(identifier *Identifier) error

	// SaveIdentifier overwrites an existing identifier record
	SaveIdentifier(identifier *Identifier) error

	// GetIdentifier retrieves an identifier by ID
	GetIdentifier(id string) (*Identifier, error)

	// ListIdentifiers returns all identifiers
	ListIdentifiers() ([]*Identifier, error)

	// SaveScan appends a scan to the log
	SaveScan(scan *Scan) error

	// ListScans returns the most recent scans, oldest first. A limit of
	// zero or less returns every scan.
	ListScans(limit int) ([]*Scan, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{identifierBucketName, scanBucketName} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// CreateIdentifier registers an identifier if its ID is unused
func (b *BoltDB) CreateIdentifier(identifier *Identifier) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(identifierBucketName))
		if bucket.Get([]byte(identifier.ID)) != nil {
			return fmt.Errorf("%w: %s", ErrDuplicateIdentifier, identifier.ID)
		}
		return putJSON(bucket, identifier.ID, identifier)
	})
}

// SaveIdentifier overwrites an identifier record
func (b *BoltDB) SaveIdentifier(identifier *Identifier) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return putJSON(tx.Bucket([]byte(identifierBucketName)), identifier.ID, identifier)
	})
}

// GetIdentifier retrieves an identifier by ID
func (b *BoltDB) GetIdentifier(id string) (*Identifier, error) {
	var identifier *Identifier
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(identifierBucketName)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("identifier %w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &identifier)
	})
	if err != nil {
		return nil, err
	}
	return identifier, nil
}

// ListIdentifiers returns all identifiers in ID order
func (b *BoltDB) ListIdentifiers() ([]*Identifier, error) {
	identifiers := make([]*Identifier, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(identifierBucketName)).ForEach(func(k, v []byte) error {
			var identifier Identifier
			if err := json.Unmarshal(v, &identifier); err != nil {
				return fmt.Errorf("unmarshaling identifier: %w", err)
			}
			identifiers = append(identifiers, &identifier)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return identifiers, nil
}

// SaveScan appends a scan keyed by its ULID
func (b *BoltDB) SaveScan(scan *Scan) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return putJSON(tx.Bucket([]byte(scanBucketName)), scan.ID, scan)
	})
}

// ListScans walks the scan log backwards from the newest key, so only the
// requested tail is decoded
func (b *BoltDB) ListScans(limit int) ([]*Scan, error) {
	scans := make([]*Scan, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(scanBucketName)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(scans) == limit {
				break
			}
			var scan Scan
			if err := json.Unmarshal(v, &scan); err != nil {
				return fmt.Errorf("unmarshaling scan: %w", err)
			}
			scans = append(scans, &scan)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(scans)-1; i < j; i, j = i+1, j-1 {
		scans[i], scans[j] = scans[j], scans[i]
	}
	return scans, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}

func putJSON(bucket *bbolt.Bucket, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", key, err)
	}
	return bucket.Put([]byte(key), data)
}
