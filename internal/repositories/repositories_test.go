package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/desertthunder/cadence/internal/models"
	"github.com/desertthunder/cadence/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := shared.RunMigrations(context.Background(), db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

func stores(t *testing.T) map[string]KVStore {
	t.Helper()

	fs, err := NewFileStore(filepath.Join(t.TempDir(), "session.json"))
	if err != nil {
		t.Fatalf("failed to open file store: %v", err)
	}

	return map[string]KVStore{
		"memory": NewMemoryStore(),
		"sqlite": NewSQLiteStore(setupTestDB(t)),
		"file":   fs,
	}
}

func TestStores(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			t.Run("MissingKey", func(t *testing.T) {
				v, ok, err := store.Get("nope")
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if ok || v != "" {
					t.Errorf("expected missing key, got %q (present=%v)", v, ok)
				}
			})

			t.Run("SetGet", func(t *testing.T) {
				if err := store.Set(models.KeyAccessToken, "at-1"); err != nil {
					t.Fatalf("failed to set: %v", err)
				}

				v, ok, err := store.Get(models.KeyAccessToken)
				if err != nil {
					t.Fatalf("failed to get: %v", err)
				}
				if !ok || v != "at-1" {
					t.Errorf("expected at-1, got %q (present=%v)", v, ok)
				}
			})

			t.Run("Overwrite", func(t *testing.T) {
				if err := store.Set(models.KeyAccessToken, "at-2"); err != nil {
					t.Fatalf("failed to overwrite: %v", err)
				}

				v, _, _ := store.Get(models.KeyAccessToken)
				if v != "at-2" {
					t.Errorf("expected at-2, got %q", v)
				}
			})

			t.Run("EmptyValue", func(t *testing.T) {
				if err := store.Set(models.KeyUserID, ""); err != nil {
					t.Fatalf("failed to set empty value: %v", err)
				}

				_, ok, err := store.Get(models.KeyUserID)
				if err != nil {
					t.Fatalf("failed to get: %v", err)
				}
				if !ok {
					t.Error("empty value should still be present")
				}
			})

			t.Run("DeleteSessionKeys", func(t *testing.T) {
				if err := store.Set(models.KeyRefreshToken, "rt"); err != nil {
					t.Fatalf("failed to set: %v", err)
				}
				if err := store.Set("unrelated", "keep"); err != nil {
					t.Fatalf("failed to set: %v", err)
				}

				if err := store.Delete(models.SessionKeys...); err != nil {
					t.Fatalf("failed to delete: %v", err)
				}
				if err := store.Delete(models.SessionKeys...); err != nil {
					t.Fatalf("deleting missing keys should not fail: %v", err)
				}

				for _, k := range models.SessionKeys {
					if _, ok, _ := store.Get(k); ok {
						t.Errorf("expected %s to be deleted", k)
					}
				}
				if v, ok, _ := store.Get("unrelated"); !ok || v != "keep" {
					t.Errorf("unrelated key should survive, got %q (present=%v)", v, ok)
				}
			})

			t.Run("DeleteNothing", func(t *testing.T) {
				if err := store.Delete(); err != nil {
					t.Errorf("empty delete should be a no-op: %v", err)
				}
			})
		})
	}
}

func TestFileStore(t *testing.T) {
	t.Run("PersistsAcrossOpen", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "session.json")

		first, err := NewFileStore(path)
		if err != nil {
			t.Fatalf("failed to open: %v", err)
		}
		if err := first.Set(models.KeyTokenExpiry, "1738400000000"); err != nil {
			t.Fatalf("failed to set: %v", err)
		}

		second, err := NewFileStore(path)
		if err != nil {
			t.Fatalf("failed to reopen: %v", err)
		}
		v, ok, _ := second.Get(models.KeyTokenExpiry)
		if !ok || v != "1738400000000" {
			t.Errorf("expected persisted expiry, got %q (present=%v)", v, ok)
		}

		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("failed to stat store: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0600 {
			t.Errorf("expected 0600 permissions, got %o", perm)
		}
	})

	t.Run("EmptyFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.json")
		if err := os.WriteFile(path, nil, 0600); err != nil {
			t.Fatalf("failed to write: %v", err)
		}

		if _, err := NewFileStore(path); err != nil {
			t.Errorf("empty file should open as empty store: %v", err)
		}
	})

	t.Run("CorruptFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.json")
		if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
			t.Fatalf("failed to write: %v", err)
		}

		if _, err := NewFileStore(path); err == nil {
			t.Fatal("expected error for corrupt store")
		}
	})
}

func TestSQLiteStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cadence.db")
	cfg := shared.StorageConfig{Driver: "sqlite", Path: path, MaxOpenConns: 1, MaxIdleConns: 1}

	store, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to open: %v", err)
	}
	if err := store.Set(models.KeyRefreshToken, "rt-1"); err != nil {
		t.Fatalf("failed to set: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close: %v", err)
	}

	reopened, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to reopen: %v", err)
	}
	defer reopened.Close()

	v, ok, err := reopened.Get(models.KeyRefreshToken)
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if !ok || v != "rt-1" {
		t.Errorf("expected rt-1, got %q (present=%v)", v, ok)
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     shared.StorageConfig
		want    string
		wantErr bool
	}{
		{name: "memory", cfg: shared.StorageConfig{Driver: "memory"}, want: "*repositories.MemoryStore"},
		{name: "sqlite", cfg: shared.StorageConfig{Driver: "sqlite", Path: ":memory:"}, want: "*repositories.SQLiteStore"},
		{name: "file", cfg: shared.StorageConfig{Driver: "file", Path: filepath.Join(dir, "s.json")}, want: "*repositories.FileStore"},
		{name: "unknown", cfg: shared.StorageConfig{Driver: "redis"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := Open(context.Background(), tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			defer store.Close()

			if got := fmt.Sprintf("%T", store); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}
