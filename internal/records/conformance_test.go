package records

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/audiodesc/internal/cryptox"
	"github.com/dmitrijs2005/audiodesc/internal/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

var fixedTime = time.Date(2025, 3, 14, 15, 9, 26, 535897000, time.UTC)

func rec(owner, payload string) *cryptox.Record {
	return &cryptox.Record{
		Ciphertext: []byte("ct:" + payload),
		Nonce:      []byte("nonce-12byte"),
		Owner:      owner,
		UpdatedAt:  fixedTime,
	}
}

func newSQLiteRepo(t *testing.T) Repository {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Up(context.Background(), db, "sqlite3"))
	return NewSQLiteRepository(db)
}

func newBoltRepo(t *testing.T) Repository {
	t.Helper()
	r, err := OpenBoltRepository(filepath.Join(t.TempDir(), "nested", "records.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func newMemoryRepo(t *testing.T) Repository {
	return NewMemoryRepository()
}

func TestRepositories(t *testing.T) {
	factories := map[string]func(t *testing.T) Repository{
		"memory": newMemoryRepo,
		"sqlite": newSQLiteRepo,
		"bolt":   newBoltRepo,
	}

	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			t.Run("load missing returns nil nil", func(t *testing.T) {
				r := factory(t)
				got, err := r.Load(context.Background(), "session/nobody")
				require.NoError(t, err)
				assert.Nil(t, got)
			})

			t.Run("save then load", func(t *testing.T) {
				r := factory(t)
				ctx := context.Background()
				require.NoError(t, r.Save(ctx, "session/u1", rec("u1", "a")))

				got, err := r.Load(ctx, "session/u1")
				require.NoError(t, err)
				require.NotNil(t, got)
				assert.Equal(t, "u1", got.Owner)
				assert.Equal(t, []byte("ct:a"), got.Ciphertext)
				assert.Equal(t, []byte("nonce-12byte"), got.Nonce)
				assert.True(t, fixedTime.Equal(got.UpdatedAt), "updated_at %v", got.UpdatedAt)
			})

			t.Run("save upserts", func(t *testing.T) {
				r := factory(t)
				ctx := context.Background()
				require.NoError(t, r.Save(ctx, "prefs/u1", rec("u1", "old")))
				require.NoError(t, r.Save(ctx, "prefs/u1", rec("u1", "new")))

				got, err := r.Load(ctx, "prefs/u1")
				require.NoError(t, err)
				assert.Equal(t, []byte("ct:new"), got.Ciphertext)
			})

			t.Run("delete is idempotent", func(t *testing.T) {
				r := factory(t)
				ctx := context.Background()
				require.NoError(t, r.Save(ctx, "k", rec("u", "x")))
				require.NoError(t, r.Delete(ctx, "k"))
				require.NoError(t, r.Delete(ctx, "k"))

				got, err := r.Load(ctx, "k")
				require.NoError(t, err)
				assert.Nil(t, got)
			})

			t.Run("keys by prefix sorted", func(t *testing.T) {
				r := factory(t)
				ctx := context.Background()
				require.NoError(t, r.SaveBatch(ctx, map[string]*cryptox.Record{
					SpoolKey(30, "c"):  rec("u1", "3"),
					SpoolKey(10, "a"):  rec("u2", "1"),
					SpoolKey(200, "b"): rec("u1", "2"),
					"session/u1":       rec("u1", "s"),
					"spoolish":         rec("u1", "no"),
				}))

				keys, err := r.Keys(ctx, PrefixSpool)
				require.NoError(t, err)
				assert.Equal(t, []string{SpoolKey(10, "a"), SpoolKey(30, "c"), SpoolKey(200, "b")}, keys)

				none, err := r.Keys(ctx, "consent/")
				require.NoError(t, err)
				assert.Empty(t, none)
			})

			t.Run("keys prefix treats wildcards literally", func(t *testing.T) {
				r := factory(t)
				ctx := context.Background()
				require.NoError(t, r.Save(ctx, "a_b/1", rec("u", "1")))
				require.NoError(t, r.Save(ctx, "axb/2", rec("u", "2")))

				keys, err := r.Keys(ctx, "a_b/")
				require.NoError(t, err)
				assert.Equal(t, []string{"a_b/1"}, keys)
			})

			t.Run("delete owner removes only that owner", func(t *testing.T) {
				r := factory(t)
				ctx := context.Background()
				require.NoError(t, r.Save(ctx, SessionKey("u1"), rec("u1", "s")))
				require.NoError(t, r.Save(ctx, PrefsKey("u1"), rec("u1", "p")))
				require.NoError(t, r.Save(ctx, SessionKey("u2"), rec("u2", "s")))

				require.NoError(t, r.DeleteOwner(ctx, "u1"))

				keys, err := r.Keys(ctx, "")
				require.NoError(t, err)
				assert.Equal(t, []string{SessionKey("u2")}, keys)
			})

			t.Run("stored record is not aliased", func(t *testing.T) {
				r := factory(t)
				ctx := context.Background()
				in := rec("u", "alias")
				require.NoError(t, r.Save(ctx, "k", in))
				in.Ciphertext[0] = 'X'

				got, err := r.Load(ctx, "k")
				require.NoError(t, err)
				assert.Equal(t, byte('c'), got.Ciphertext[0])
			})
		})
	}
}

func TestSpoolKey_Ordering(t *testing.T) {
	a := SpoolKey(9, "x")
	b := SpoolKey(10, "x")
	assert.Less(t, a, b)
	assert.Equal(t, "spool/00000000000000000009/x", a)
	assert.Equal(t, "spool/00000000000000000000/y", SpoolKey(-5, "y"))
}

func TestKeyHelpers(t *testing.T) {
	assert.Equal(t, "session/u", SessionKey("u"))
	assert.Equal(t, "prefs/u", PrefsKey("u"))
	assert.Equal(t, "consent/u", ConsentKey("u"))
}
