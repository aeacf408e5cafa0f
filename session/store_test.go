package session

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRegistry(t *testing.T) (*Registry, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewRegistry(rdb, "sr"), mr
}

func testRecord(id, userID string, secret string, ttl time.Duration) *Record {
	now := time.Now()
	return &Record{
		ID:        id,
		UserID:    userID,
		TokenHash: sha256.Sum256([]byte(secret)),
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
		UserAgent: "test-agent",
		IP:        "203.0.113.9",
	}
}

func TestSaveAndGet(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	rec := testRecord("rec-1", "user-1", "secret", time.Hour)
	if err := reg.Save(ctx, rec); err != nil {
		t.Fatal(err)
	}

	got, err := reg.Get(ctx, "rec-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.UserID != "user-1" || got.TokenHash != rec.TokenHash || got.UserAgent != "test-agent" {
		t.Fatalf("record round-trip mismatch: %+v", got)
	}

	if _, err := reg.Get(ctx, "missing"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestGetExpiredRecord(t *testing.T) {
	reg, mr := newTestRegistry(t)
	ctx := context.Background()

	rec := testRecord("rec-1", "user-1", "secret", time.Minute)
	if err := reg.Save(ctx, rec); err != nil {
		t.Fatal(err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := reg.Get(ctx, "rec-1"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound after expiry, got %v", err)
	}
}

func TestListFiltersRevokedAndForeign(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := reg.Save(ctx, testRecord(id, "user-1", "s-"+id, time.Hour)); err != nil {
			t.Fatal(err)
		}
	}
	if err := reg.Save(ctx, testRecord("other", "user-2", "s-other", time.Hour)); err != nil {
		t.Fatal(err)
	}

	if err := reg.Revoke(ctx, "user-1", "b"); err != nil {
		t.Fatal(err)
	}

	records, err := reg.List(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 live records, got %d", len(records))
	}
	for _, r := range records {
		if r.ID == "b" || r.UserID != "user-1" {
			t.Fatalf("unexpected record in listing: %+v", r)
		}
	}
}

func TestRevoke(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	if err := reg.Save(ctx, testRecord("rec-1", "user-1", "secret", time.Hour)); err != nil {
		t.Fatal(err)
	}

	if err := reg.Revoke(ctx, "user-2", "rec-1"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("foreign revoke: expected ErrRecordNotFound, got %v", err)
	}

	if err := reg.Revoke(ctx, "user-1", "rec-1"); err != nil {
		t.Fatal(err)
	}
	// Idempotent.
	if err := reg.Revoke(ctx, "user-1", "rec-1"); err != nil {
		t.Fatalf("second revoke: %v", err)
	}

	got, err := reg.Get(ctx, "rec-1")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Revoked() {
		t.Fatal("record not marked revoked")
	}
}

func TestRevokeAll(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := reg.Save(ctx, testRecord(id, "user-1", "s-"+id, time.Hour)); err != nil {
			t.Fatal(err)
		}
	}

	n, err := reg.RevokeAll(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("revoked %d, want 3", n)
	}

	records, err := reg.List(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no live records, got %d", len(records))
	}
}

func TestRevokeAllCatchesConcurrentRotation(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	first := testRecord("rec-0", "user-1", "secret-0", time.Hour)
	if err := reg.Save(ctx, first); err != nil {
		t.Fatal(err)
	}

	// A holder of the current refresh token rotates as fast as it can while
	// the sweep runs. The chain dies the moment a rotation lands on a record
	// the sweep already revoked.
	done := make(chan struct{})
	go func() {
		defer close(done)
		curID, curHash := first.ID, first.TokenHash
		for i := 1; i <= 64; i++ {
			next := testRecord(fmt.Sprintf("rec-%d", i), "user-1", fmt.Sprintf("secret-%d", i), time.Hour)
			if err := reg.Rotate(ctx, curID, curHash, next); err != nil {
				return
			}
			curID, curHash = next.ID, next.TokenHash
		}
	}()

	n, err := reg.RevokeAll(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if n < 1 {
		t.Fatalf("revoked %d records, want at least 1", n)
	}
	<-done

	// A rotation that raced the sweep either had its replacement revoked by
	// a later pass or failed against its revoked predecessor. Either way no
	// record survives.
	records, err := reg.List(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Fatalf("%d record(s) still live after RevokeAll: %+v", len(records), records[0])
	}
}

func TestRotate(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	old := testRecord("old", "user-1", "old-secret", time.Hour)
	if err := reg.Save(ctx, old); err != nil {
		t.Fatal(err)
	}

	next := testRecord("new", "user-1", "new-secret", time.Hour)
	if err := reg.Rotate(ctx, "old", old.TokenHash, next); err != nil {
		t.Fatal(err)
	}

	// Old record survives, revoked, until natural expiry.
	got, err := reg.Get(ctx, "old")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Revoked() {
		t.Fatal("rotated-away record not revoked")
	}

	// Replacement is live.
	if _, err := reg.Get(ctx, "new"); err != nil {
		t.Fatal(err)
	}

	// Replaying the old token is the compromise signal.
	again := testRecord("newer", "user-1", "newer-secret", time.Hour)
	if err := reg.Rotate(ctx, "old", old.TokenHash, again); !errors.Is(err, ErrRecordRevoked) {
		t.Fatalf("replay: expected ErrRecordRevoked, got %v", err)
	}
}

func TestRotateHashMismatchRevokesRecord(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	old := testRecord("old", "user-1", "real-secret", time.Hour)
	if err := reg.Save(ctx, old); err != nil {
		t.Fatal(err)
	}

	wrongHash := sha256.Sum256([]byte("forged-secret"))
	next := testRecord("new", "user-1", "new-secret", time.Hour)

	if err := reg.Rotate(ctx, "old", wrongHash, next); !errors.Is(err, ErrHashMismatch) {
		t.Fatalf("expected ErrHashMismatch, got %v", err)
	}

	// The mismatch burns the record for the legitimate holder too.
	got, err := reg.Get(ctx, "old")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Revoked() {
		t.Fatal("record not revoked after mismatch")
	}

	// And the replacement was never installed.
	if _, err := reg.Get(ctx, "new"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("replacement installed despite mismatch: %v", err)
	}
}

func TestRotateUnknownRecord(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	next := testRecord("new", "user-1", "new-secret", time.Hour)
	hash := sha256.Sum256([]byte("whatever"))

	if err := reg.Rotate(ctx, "ghost", hash, next); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestCodecRoundTrip(t *testing.T) {
	rec := testRecord("rec-1", "user-1", "secret", time.Hour)
	rec.RevokedAt = time.Now().Unix()

	data, err := Encode(rec)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	got.ID = rec.ID

	if *got != *rec {
		t.Fatalf("round-trip mismatch:\n got %+v\nwant %+v", got, rec)
	}

	if _, err := Decode(data[:5]); err == nil {
		t.Fatal("truncated payload decoded without error")
	}
	if _, err := Decode(nil); err == nil {
		t.Fatal("empty payload decoded without error")
	}
}
