package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()

	dir := t.TempDir()
	file, err := NewFileStore(filepath.Join(dir, "nested", "store.json"))
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	db, err := OpenSQLite(filepath.Join(dir, "store.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("sqlite Close() = %v", err)
		}
	})
	return map[string]Store{
		BackendFile:   file,
		BackendSQLite: db,
		BackendMemory: NewMemoryStore(),
	}
}

func TestStoreGetSet(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
				t.Fatalf("Get(missing) = ok %v, err %v; want absent", ok, err)
			}
			if err := s.Set(ctx, "k", []byte(`{"a":1}`)); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			got, ok, err := s.Get(ctx, "k")
			if err != nil || !ok {
				t.Fatalf("Get(k) = ok %v, err %v", ok, err)
			}
			var v map[string]int
			if err := json.Unmarshal(got, &v); err != nil {
				t.Fatalf("json.Unmarshal() = %v", err)
			}
			if v["a"] != 1 {
				t.Fatalf("Get(k) = %s; want a=1", got)
			}
		})
	}
}

func TestStoreUpdateIsAtomic(t *testing.T) {
	ctx := context.Background()
	const writers = 25

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := s.Update(ctx, "counter", func(old []byte, ok bool) ([]byte, error) {
						n := 0
						if ok {
							if err := json.Unmarshal(old, &n); err != nil {
								return nil, err
							}
						}
						return json.Marshal(n + 1)
					})
					if err != nil {
						t.Errorf("Update() error = %v", err)
					}
				}()
			}
			wg.Wait()

			raw, _, err := s.Get(ctx, "counter")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			var n int
			if err := json.Unmarshal(raw, &n); err != nil {
				t.Fatalf("json.Unmarshal() = %v", err)
			}
			if n != writers {
				t.Fatalf("counter = %d; want %d (lost update)", n, writers)
			}
		})
	}
}

func TestStoreUpdateCallbackErrorLeavesValue(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Set(ctx, "k", []byte(`"keep"`)); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			err := s.Update(ctx, "k", func([]byte, bool) ([]byte, error) { return nil, boom })
			if !errors.Is(err, boom) {
				t.Fatalf("Update() error = %v; want %v", err, boom)
			}
			got, _, _ := s.Get(ctx, "k")
			if string(got) != `"keep"` {
				t.Fatalf("Get(k) = %s; want %q", got, `"keep"`)
			}
		})
	}
}

func TestFileStorePersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.json")

	first, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	if err := first.Set(ctx, "cosmeticFilterList", []byte(`{}`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	second, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	got, ok, err := second.Get(ctx, "cosmeticFilterList")
	if err != nil || !ok || string(got) != `{}` {
		t.Fatalf("Get() = %s, %v, %v; want {}, true, nil", got, ok, err)
	}

	if err := first.Set(ctx, "bad", []byte(`{not json`)); err == nil {
		t.Fatal("Set(invalid JSON) = nil; want error")
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("os.ReadDir() = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("data dir has %d entries; want only store.json", len(entries))
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open("etcd", t.TempDir()); err == nil {
		t.Fatal("Open(etcd) = nil error; want error")
	}
}
