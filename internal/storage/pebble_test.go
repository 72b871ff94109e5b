package storage_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/casper-network/highway/internal/storage"
)

func openTestStore(t *testing.T) *storage.PebbleStore {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "db")
	db, err := storage.Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestGetMissingKeyReturnsNil(t *testing.T) {
	db := openTestStore(t)
	val, err := db.Get([]byte("missing"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if val != nil {
		t.Fatalf("expected nil for missing key, got %v", val)
	}
}

func TestSetAndGetRoundTrip(t *testing.T) {
	db := openTestStore(t)
	if err := db.Set([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	val, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(val) != "v" {
		t.Fatalf("expected 'v', got %q", val)
	}
}

func TestDelete(t *testing.T) {
	db := openTestStore(t)
	db.Set([]byte("k"), []byte("v"))
	if err := db.Delete([]byte("k")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	val, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if val != nil {
		t.Fatal("expected nil after delete")
	}
}

func TestIteratePrefix(t *testing.T) {
	db := openTestStore(t)
	db.Set([]byte("nonce/aaa"), []byte("1"))
	db.Set([]byte("nonce/bbb"), []byte("2"))
	db.Set([]byte("other/ccc"), []byte("3"))

	var got []string
	err := db.Iterate([]byte("nonce/"), func(key, value []byte) error {
		got = append(got, string(key))
		return nil
	})
	if err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 keys under nonce/, got %d (%v)", len(got), got)
	}
}

func TestApplyWriteSet(t *testing.T) {
	db := openTestStore(t)
	err := db.ApplyWriteSet(map[string][]byte{
		"a": []byte("1"),
		"b": []byte("2"),
	})
	if err != nil {
		t.Fatalf("ApplyWriteSet: %v", err)
	}
	va, _ := db.Get([]byte("a"))
	vb, _ := db.Get([]byte("b"))
	if string(va) != "1" || string(vb) != "2" {
		t.Fatalf("unexpected values: a=%q b=%q", va, vb)
	}
}

func TestIteratePropagatesCallbackError(t *testing.T) {
	db := openTestStore(t)
	db.Set([]byte("a"), []byte("1"))

	sentinel := errors.New("stop")
	err := db.Iterate(nil, func(key, value []byte) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
}
