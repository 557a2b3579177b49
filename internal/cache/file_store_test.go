package cache

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/kingrea/The-Relay/internal/layout"
)

type testClock struct {
	value time.Time
}

func newTestClock() *testClock {
	return &testClock{value: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	return c.value
}

func (c *testClock) Advance(d time.Duration) {
	c.value = c.value.Add(d)
}

func newTestFileStore(t *testing.T) (*FileStore, *layout.Namespace, *testClock) {
	t.Helper()
	ns := layout.New(t.TempDir())
	if err := ns.Provision("researcher"); err != nil {
		t.Fatalf("provision failed: %v", err)
	}
	clock := newTestClock()
	store := NewFileStore(ns, WithClock(clock.Now))
	return store, ns, clock
}

func TestFileStoreRoundTrip(t *testing.T) {
	store, _, _ := newTestFileStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "researcher", "api-token", []byte("secret"), NoExpiry); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	value, ok, err := store.Get(ctx, "researcher", "api-token")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !ok {
		t.Fatal("expected hit")
	}
	if string(value) != "secret" {
		t.Errorf("value = %s", value)
	}
}

func TestFileStoreZeroTTLIsBornExpired(t *testing.T) {
	store, ns, _ := newTestFileStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "researcher", "flash", []byte("gone"), 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	// The record exists physically but must read as a miss.
	entries, err := os.ReadDir(ns.CachePath("researcher"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 record on disk, got %d", len(entries))
	}

	_, ok, err := store.Get(ctx, "researcher", "flash")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if ok {
		t.Fatal("zero-TTL entry must miss before any sweep")
	}
}

func TestFileStoreExpiryIsLazy(t *testing.T) {
	store, _, clock := newTestFileStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "researcher", "short", []byte("lived"), time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	if _, ok, _ := store.Get(ctx, "researcher", "short"); !ok {
		t.Fatal("entry should be live before the TTL elapses")
	}

	clock.Advance(61 * time.Second)
	if _, ok, _ := store.Get(ctx, "researcher", "short"); ok {
		t.Fatal("entry should miss after the TTL elapses")
	}
}

func TestFileStoreLastWriteWins(t *testing.T) {
	store, _, _ := newTestFileStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "researcher", "k", []byte("first"), NoExpiry); err != nil {
		t.Fatal(err)
	}
	if err := store.Set(ctx, "researcher", "k", []byte("second"), NoExpiry); err != nil {
		t.Fatal(err)
	}

	value, ok, err := store.Get(ctx, "researcher", "k")
	if err != nil || !ok {
		t.Fatalf("get failed: ok=%v err=%v", ok, err)
	}
	if string(value) != "second" {
		t.Errorf("value = %s, want second", value)
	}
}

func TestFileStoreDelete(t *testing.T) {
	store, _, _ := newTestFileStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "researcher", "k", []byte("v"), NoExpiry); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, "researcher", "k"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "researcher", "k"); ok {
		t.Fatal("expected miss after delete")
	}
	// Deleting again is a no-op.
	if err := store.Delete(ctx, "researcher", "k"); err != nil {
		t.Fatalf("second delete failed: %v", err)
	}
}

func TestFileStoreSweepRemovesOnlyExpired(t *testing.T) {
	store, ns, clock := newTestFileStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "researcher", "expiring", []byte("a"), 10*time.Second); err != nil {
		t.Fatal(err)
	}
	if err := store.Set(ctx, "researcher", "forever", []byte("b"), NoExpiry); err != nil {
		t.Fatal(err)
	}
	if err := store.Set(ctx, "researcher", "instant", []byte("c"), 0); err != nil {
		t.Fatal(err)
	}

	clock.Advance(30 * time.Second)
	removed, err := store.Sweep(ctx, "researcher")
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	entries, err := os.ReadDir(ns.CachePath("researcher"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 surviving record, got %d", len(entries))
	}
	if _, ok, _ := store.Get(ctx, "researcher", "forever"); !ok {
		t.Error("unexpired entry should survive the sweep")
	}
}

func TestFileStoreUnprovisionedAgent(t *testing.T) {
	store, _, _ := newTestFileStore(t)
	ctx := context.Background()

	err := store.Set(ctx, "ghost", "k", []byte("v"), NoExpiry)
	if !errors.Is(err, layout.ErrAgentNotFound) {
		t.Fatalf("expected ErrAgentNotFound, got %v", err)
	}
	if _, _, err := store.Get(ctx, "ghost", "k"); !errors.Is(err, layout.ErrAgentNotFound) {
		t.Fatalf("expected ErrAgentNotFound, got %v", err)
	}
}

func TestFileStoreBinaryValue(t *testing.T) {
	store, _, _ := newTestFileStore(t)
	ctx := context.Background()

	raw := []byte{0xff, 0x00, 0x88, 0x7f, 0xfe}
	if err := store.Set(ctx, "researcher", "blob", raw, NoExpiry); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	value, ok, err := store.Get(ctx, "researcher", "blob")
	if err != nil || !ok {
		t.Fatalf("get failed: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(value, raw) {
		t.Errorf("binary value corrupted: %x != %x", value, raw)
	}
}

func TestFileStoreKeysWithHostileNames(t *testing.T) {
	store, _, _ := newTestFileStore(t)
	ctx := context.Background()

	key := "../../../etc/passwd"
	if err := store.Set(ctx, "researcher", key, []byte("v"), NoExpiry); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	value, ok, err := store.Get(ctx, "researcher", key)
	if err != nil || !ok {
		t.Fatalf("get failed: ok=%v err=%v", ok, err)
	}
	if string(value) != "v" {
		t.Errorf("value = %s", value)
	}
}
