package records

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/audiodesc/internal/cryptox"
	bolt "go.etcd.io/bbolt"
)

var recordsBucket = []byte("records")

// BoltRepository stores records in a single bbolt bucket. Keys are kept in
// byte order by bbolt itself, which is what Keys relies on.
type BoltRepository struct {
	db *bolt.DB
}

// boltRecord is the on-disk value; []byte fields are base64 in JSON.
type boltRecord struct {
	Owner      string `json:"owner"`
	Ciphertext []byte `json:"ciphertext"`
	Nonce      []byte `json:"nonce"`
	UpdatedAt  int64  `json:"updated_at"`
}

// OpenBoltRepository opens (or creates) the database file at path.
func OpenBoltRepository(path string) (*BoltRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("bolt dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("bolt open: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(recordsBucket)
		return e
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bolt bucket: %w", err)
	}
	return &BoltRepository{db: db}, nil
}

func (r *BoltRepository) Close() error {
	return r.db.Close()
}

func encodeBolt(rec *cryptox.Record) ([]byte, error) {
	return json.Marshal(boltRecord{
		Owner:      rec.Owner,
		Ciphertext: rec.Ciphertext,
		Nonce:      rec.Nonce,
		UpdatedAt:  rec.UpdatedAt.UnixNano(),
	})
}

func decodeBolt(v []byte) (*cryptox.Record, error) {
	var br boltRecord
	if err := json.Unmarshal(v, &br); err != nil {
		return nil, err
	}
	return &cryptox.Record{
		Owner:      br.Owner,
		Ciphertext: br.Ciphertext,
		Nonce:      br.Nonce,
		UpdatedAt:  time.Unix(0, br.UpdatedAt).UTC(),
	}, nil
}

func (r *BoltRepository) Save(_ context.Context, key string, rec *cryptox.Record) error {
	if rec == nil {
		return fmt.Errorf("failed to save record[%s]: nil record", key)
	}
	v, err := encodeBolt(rec)
	if err != nil {
		return fmt.Errorf("failed to save record[%s]: %w", key, err)
	}
	err = r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(recordsBucket).Put([]byte(key), v)
	})
	if err != nil {
		return fmt.Errorf("failed to save record[%s]: %w", key, err)
	}
	return nil
}

func (r *BoltRepository) Load(_ context.Context, key string) (*cryptox.Record, error) {
	var rec *cryptox.Record
	err := r.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(recordsBucket).Get([]byte(key))
		if v == nil {
			return nil
		}
		// v is only valid inside the transaction; decoding copies it
		decoded, err := decodeBolt(v)
		if err != nil {
			return err
		}
		rec = decoded
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load record[%s]: %w", key, err)
	}
	return rec, nil
}

func (r *BoltRepository) Delete(_ context.Context, key string) error {
	err := r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(recordsBucket).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("failed to delete record[%s]: %w", key, err)
	}
	return nil
}

func (r *BoltRepository) SaveBatch(_ context.Context, recs map[string]*cryptox.Record) error {
	if len(recs) == 0 {
		return nil
	}
	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(recordsBucket)
		for k, rec := range recs {
			if rec == nil {
				return fmt.Errorf("nil record for %s", k)
			}
			v, err := encodeBolt(rec)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(k), v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save record batch: %w", err)
	}
	return nil
}

func (r *BoltRepository) Keys(_ context.Context, prefix string) ([]string, error) {
	keys := []string{}
	p := []byte(prefix)
	err := r.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(recordsBucket).Cursor()
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list records[%s*]: %w", prefix, err)
	}
	return keys, nil
}

func (r *BoltRepository) DeleteOwner(_ context.Context, owner string) error {
	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(recordsBucket)
		var doomed [][]byte
		err := b.ForEach(func(k, v []byte) error {
			rec, err := decodeBolt(v)
			if err != nil {
				return err
			}
			if rec.Owner == owner {
				doomed = append(doomed, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range doomed {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete records of owner[%s]: %w", owner, err)
	}
	return nil
}
