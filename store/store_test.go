package store

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestPutAndGet(t *testing.T) {
	s, _ := openTestStore(t)

	source := []byte("print 5+6\n")
	payload := []byte{0x63, 0x01, 0x02, 0x03}

	key, err := s.Put(source, payload)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if key != SourceHash(source) {
		t.Error("Put returned a key that differs from SourceHash")
	}

	got, err := s.Get(key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Get = % X, want % X", got, payload)
	}

	got, err = s.Lookup(source)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Lookup = % X, want % X", got, payload)
	}
}

func TestGetMissing(t *testing.T) {
	s, _ := openTestStore(t)
	_, err := s.Lookup([]byte("never compiled"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestPutReplaces(t *testing.T) {
	s, _ := openTestStore(t)
	source := []byte("x = 1\n")

	if _, err := s.Put(source, []byte{1}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := s.Put(source, []byte{2}); err != nil {
		t.Fatalf("second Put failed: %v", err)
	}

	got, err := s.Lookup(source)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if !bytes.Equal(got, []byte{2}) {
		t.Errorf("Lookup = % X, want 02", got)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s, _ := openTestStore(t)
	source := []byte("y = 2\n")
	if _, err := s.Put(source, []byte{7, 8}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := s.Lookup(source)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	got[0] = 0xFF

	again, err := s.Lookup(source)
	if err != nil {
		t.Fatalf("second Lookup failed: %v", err)
	}
	if again[0] != 7 {
		t.Error("mutating a Get result corrupted the cache")
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	source := []byte("a = b + c\n")
	payload := []byte{0xAB, 0xCD}
	if _, err := s.Put(source, payload); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	gen := s.Generation()
	if gen == "" {
		t.Fatal("Generation is empty")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()

	got, err := s2.Lookup(source)
	if err != nil {
		t.Fatalf("Lookup after reopen failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Lookup after reopen = % X, want % X", got, payload)
	}
	if s2.Generation() != gen {
		t.Errorf("generation changed across reopen: %s != %s", s2.Generation(), gen)
	}
}

func TestPurge(t *testing.T) {
	s, _ := openTestStore(t)
	source := []byte("z = 0\n")
	if _, err := s.Put(source, []byte{1}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	oldGen := s.Generation()

	if err := s.Purge(); err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len() after purge = %d, want 0", s.Len())
	}
	if _, err := s.Lookup(source); !errors.Is(err, ErrNotFound) {
		t.Errorf("error after purge = %v, want ErrNotFound", err)
	}
	if s.Generation() == oldGen {
		t.Error("Purge did not change the generation stamp")
	}
}
