package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/audiodesc/internal/cryptox"
	"github.com/dmitrijs2005/audiodesc/internal/dbx"
)

// SQLRepository implements Repository over database/sql. The same query
// text serves SQLite and PostgreSQL; placeholders are rebound per dialect.
type SQLRepository struct {
	db      dbx.DBTX
	tx      dbx.TxBeginner
	dialect dbx.Dialect
}

// NewSQLiteRepository binds a repository to a modernc.org/sqlite handle.
func NewSQLiteRepository(db *sql.DB) *SQLRepository {
	return &SQLRepository{db: db, tx: db, dialect: dbx.Question}
}

// NewPostgresRepository binds a repository to a pgx stdlib handle.
func NewPostgresRepository(db *sql.DB) *SQLRepository {
	return &SQLRepository{db: db, tx: db, dialect: dbx.Dollar}
}

const (
	upsertRecordSQL = `
		INSERT INTO records (key, owner, ciphertext, nonce, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			owner = excluded.owner,
			ciphertext = excluded.ciphertext,
			nonce = excluded.nonce,
			updated_at = excluded.updated_at`
	selectRecordSQL = `SELECT owner, ciphertext, nonce, updated_at FROM records WHERE key = ?`
	deleteRecordSQL = `DELETE FROM records WHERE key = ?`
	selectKeysSQL   = `SELECT key FROM records WHERE key LIKE ? ESCAPE '\'`
	deleteOwnerSQL  = `DELETE FROM records WHERE owner = ?`
)

func (r *SQLRepository) q(query string) string {
	return dbx.Rebind(r.dialect, query)
}

func (r *SQLRepository) Save(ctx context.Context, key string, rec *cryptox.Record) error {
	return r.save(ctx, r.db, key, rec)
}

func (r *SQLRepository) save(ctx context.Context, db dbx.DBTX, key string, rec *cryptox.Record) error {
	if rec == nil {
		return fmt.Errorf("failed to save record[%s]: nil record", key)
	}
	_, err := db.ExecContext(ctx, r.q(upsertRecordSQL),
		key, rec.Owner, rec.Ciphertext, rec.Nonce, rec.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save record[%s]: %w", key, err)
	}
	return nil
}

func (r *SQLRepository) Load(ctx context.Context, key string) (*cryptox.Record, error) {
	var (
		rec   cryptox.Record
		nanos int64
	)
	err := r.db.QueryRowContext(ctx, r.q(selectRecordSQL), key).
		Scan(&rec.Owner, &rec.Ciphertext, &rec.Nonce, &nanos)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load record[%s]: %w", key, err)
	}
	rec.UpdatedAt = time.Unix(0, nanos).UTC()
	return &rec, nil
}

func (r *SQLRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, r.q(deleteRecordSQL), key); err != nil {
		return fmt.Errorf("failed to delete record[%s]: %w", key, err)
	}
	return nil
}

func (r *SQLRepository) SaveBatch(ctx context.Context, recs map[string]*cryptox.Record) error {
	if len(recs) == 0 {
		return nil
	}

	// deterministic statement order
	keys := make([]string, 0, len(recs))
	for k := range recs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return dbx.WithTx(ctx, r.tx, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, k := range keys {
			if err := r.save(ctx, tx, k, recs[k]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *SQLRepository) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, r.q(selectKeysSQL), escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to list records[%s*]: %w", prefix, err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan record key: %w", err)
		}
		// SQLite LIKE ignores ASCII case
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate record keys: %w", err)
	}

	// collation-independent ordering
	sort.Strings(keys)
	return keys, nil
}

func (r *SQLRepository) DeleteOwner(ctx context.Context, owner string) error {
	if _, err := r.db.ExecContext(ctx, r.q(deleteOwnerSQL), owner); err != nil {
		return fmt.Errorf("failed to delete records of owner[%s]: %w", owner, err)
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
