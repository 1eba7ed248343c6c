package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "db"), Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGetDelete(t *testing.T) {
	s := openTemp(t)
	if !s.Ready() {
		t.Fatal("expected ready store")
	}
	if err := s.Put("session:1", []byte("v1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	v, err := s.Get("session:1")
	if err != nil || string(v) != "v1" {
		t.Fatalf("get = %q, %v", v, err)
	}
	if err := s.Delete("session:1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get("session:1"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestScanPrefix(t *testing.T) {
	s := openTemp(t)
	for _, k := range []string{"session:a", "session:b", "sessionz", "activity:a"} {
		if err := s.Put(k, []byte(k)); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	var keys []string
	if err := s.Scan("session:", func(k string, v []byte) error {
		keys = append(keys, k)
		return nil
	}); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(keys) != 2 || keys[0] != "session:a" || keys[1] != "session:b" {
		t.Fatalf("unexpected keys %v", keys)
	}

	stop := errors.New("stop")
	n := 0
	err := s.Scan("", func(string, []byte) error {
		n++
		return stop
	})
	if !errors.Is(err, stop) || n != 1 {
		t.Fatalf("scan did not stop: n=%d err=%v", n, err)
	}

	if err := s.DeleteKeys(keys); err != nil {
		t.Fatalf("delete keys: %v", err)
	}
	if _, err := s.Get("session:a"); !IsNotFound(err) {
		t.Fatalf("expected session:a gone, got %v", err)
	}
}

func TestClosedStore(t *testing.T) {
	s := openTemp(t)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if s.Ready() {
		t.Fatal("closed store reports ready")
	}
	if _, err := s.Get("x"); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}
	if err := s.Put("x", nil); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}
}

func TestRecordActivity(t *testing.T) {
	s := openTemp(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if _, err := s.RecordActivity("u1", func(a *Activity) {
			a.Submissions++
			a.Answered++
			a.LastSeen = now
		}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	a, err := s.GetActivity("u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a.Submissions != 3 || a.Answered != 3 || !a.LastSeen.Equal(now) {
		t.Fatalf("unexpected activity %+v", a)
	}
	empty, err := s.GetActivity("nobody")
	if err != nil || empty.Submissions != 0 {
		t.Fatalf("expected zero activity, got %+v %v", empty, err)
	}
	if _, err := s.RecordActivity("", func(*Activity) {}); err == nil {
		t.Fatal("expected error for empty user id")
	}
}

func TestUpperBound(t *testing.T) {
	if got := string(upperBound([]byte("ab"))); got != "ac" {
		t.Fatalf("upperBound(ab) = %q", got)
	}
	if got := upperBound([]byte{0xff}); got != nil {
		t.Fatalf("upperBound(0xff) = %v", got)
	}
}
