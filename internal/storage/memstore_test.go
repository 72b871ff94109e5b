package storage_test

import (
	"testing"

	"github.com/casper-network/highway/internal/storage"
)

func TestMemStoreGetSetDelete(t *testing.T) {
	s := storage.NewMemStore()

	val, err := s.Get([]byte("missing"))
	if err != nil || val != nil {
		t.Fatalf("expected nil/nil for missing key, got %v/%v", val, err)
	}

	if err := s.Set([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	val, err = s.Get([]byte("k"))
	if err != nil || string(val) != "v" {
		t.Fatalf("Get after Set: %v/%v", val, err)
	}

	if err := s.Delete([]byte("k")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	val, _ = s.Get([]byte("k"))
	if val != nil {
		t.Fatal("expected nil after delete")
	}
}

func TestMemStoreApplyWriteSetAndIterate(t *testing.T) {
	s := storage.NewMemStore()
	err := s.ApplyWriteSet(map[string][]byte{
		"nonce/a": []byte("1"),
		"nonce/b": []byte("2"),
		"other/c": []byte("3"),
	})
	if err != nil {
		t.Fatalf("ApplyWriteSet: %v", err)
	}

	var got []string
	err = s.Iterate([]byte("nonce/"), func(key, value []byte) error {
		got = append(got, string(key))
		return nil
	})
	if err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 keys, got %d (%v)", len(got), got)
	}
}
