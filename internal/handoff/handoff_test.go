package handoff

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kingrea/The-Relay/internal/layout"
)

func newTestChannel(t *testing.T) (*Channel, *layout.Namespace) {
	t.Helper()
	ns := layout.New(t.TempDir())
	for _, agent := range []string{"researcher", "writer"} {
		if err := ns.Provision(agent); err != nil {
			t.Fatalf("provision %s failed: %v", agent, err)
		}
	}
	return New(ns), ns
}

func TestSendThenOpen(t *testing.T) {
	ch, _ := newTestChannel(t)
	ctx := context.Background()

	payload := map[string]any{"topic": "quarterly report", "priority": "high"}
	name, err := ch.Send(ctx, "researcher", "writer", payload)
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if !strings.HasPrefix(name, "handoff-") || !strings.HasSuffix(name, ".json") {
		t.Errorf("unexpected message name: %s", name)
	}

	msg, err := ch.Open("writer", name)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if msg.SourceAgent != "researcher" || msg.TargetAgent != "writer" {
		t.Errorf("envelope routing wrong: %+v", msg)
	}
	if msg.Timestamp.IsZero() {
		t.Error("timestamp missing")
	}
	if msg.Data["topic"] != "quarterly report" {
		t.Errorf("payload corrupted: %v", msg.Data)
	}
}

func TestSendToUnprovisionedTarget(t *testing.T) {
	ch, _ := newTestChannel(t)
	_, err := ch.Send(context.Background(), "researcher", "ghost", map[string]any{"k": "v"})
	if !errors.Is(err, ErrTargetNotFound) {
		t.Fatalf("expected ErrTargetNotFound, got %v", err)
	}
}

func TestSendValidatesSourceName(t *testing.T) {
	ch, _ := newTestChannel(t)
	_, err := ch.Send(context.Background(), "../sneaky", "writer", nil)
	if !errors.Is(err, layout.ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
}

func TestSendLeavesNoPartialFiles(t *testing.T) {
	ch, ns := newTestChannel(t)
	if _, err := ch.Send(context.Background(), "researcher", "writer", map[string]any{"k": "v"}); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	entries, err := os.ReadDir(ns.InputPath("writer"))
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if strings.Contains(entry.Name(), ".tmp") {
			t.Errorf("uncommitted temp file left in mailbox: %s", entry.Name())
		}
	}
}

func TestConcurrentSendsNeverCollide(t *testing.T) {
	ch, _ := newTestChannel(t)
	ctx := context.Background()

	const senders = 20
	names := make([]string, senders)
	errs := make([]error, senders)

	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			names[i], errs[i] = ch.Send(ctx, "researcher", "writer", map[string]any{
				"seq": fmt.Sprintf("%d", i),
			})
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, senders)
	for i := 0; i < senders; i++ {
		if errs[i] != nil {
			t.Fatalf("send %d failed: %v", i, errs[i])
		}
		if seen[names[i]] {
			t.Fatalf("duplicate message name: %s", names[i])
		}
		seen[names[i]] = true
	}

	listed, err := ch.List("writer")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(listed) != senders {
		t.Errorf("mailbox has %d messages, want %d", len(listed), senders)
	}
	for _, name := range listed {
		if _, err := ch.Open("writer", name); err != nil {
			t.Errorf("message %s unparseable: %v", name, err)
		}
	}
}

func TestListOrdersBySubmissionTime(t *testing.T) {
	ns := layout.New(t.TempDir())
	if err := ns.Provision("writer"); err != nil {
		t.Fatal(err)
	}
	value := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	clock := func() time.Time {
		value = value.Add(time.Second)
		return value
	}
	ch := New(ns, WithClock(clock))
	ctx := context.Background()

	var sent []string
	for i := 0; i < 3; i++ {
		name, err := ch.Send(ctx, "researcher", "writer", map[string]any{"seq": i})
		if err != nil {
			t.Fatalf("send %d failed: %v", i, err)
		}
		sent = append(sent, name)
	}

	listed, err := ch.List("writer")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(listed) != len(sent) {
		t.Fatalf("listed %d, want %d", len(listed), len(sent))
	}
	for i := range sent {
		if listed[i] != sent[i] {
			t.Errorf("listed[%d] = %s, want %s", i, listed[i], sent[i])
		}
	}
}

func TestListSkipsSeededInputFiles(t *testing.T) {
	ch, ns := newTestChannel(t)
	if _, err := ch.Send(context.Background(), "researcher", "writer", nil); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(ns.InputPath("writer"), "brief.md"), []byte("# brief"), 0644); err != nil {
		t.Fatal(err)
	}

	listed, err := ch.List("writer")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected only the handoff message, got %v", listed)
	}
}

func TestConsumeMovesToProcessed(t *testing.T) {
	ch, ns := newTestChannel(t)
	ctx := context.Background()

	name, err := ch.Send(ctx, "researcher", "writer", map[string]any{"k": "v"})
	if err != nil {
		t.Fatal(err)
	}

	msg, err := ch.Consume("writer", name)
	if err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	if msg.SourceAgent != "researcher" {
		t.Errorf("consumed message corrupted: %+v", msg)
	}

	listed, err := ch.List("writer")
	if err != nil {
		t.Fatal(err)
	}
	if len(listed) != 0 {
		t.Errorf("consumed message still listed: %v", listed)
	}
	if _, err := os.Stat(filepath.Join(ns.ProcessedPath("writer"), name)); err != nil {
		t.Errorf("message not in processed area: %v", err)
	}
}

func TestConsumeRejectsNonHandoffFiles(t *testing.T) {
	ch, ns := newTestChannel(t)
	if err := os.WriteFile(filepath.Join(ns.InputPath("writer"), "brief.md"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ch.Consume("writer", "brief.md"); !errors.Is(err, ErrNotHandoff) {
		t.Fatalf("expected ErrNotHandoff, got %v", err)
	}
}

func TestOpenMissingMessage(t *testing.T) {
	ch, _ := newTestChannel(t)
	_, err := ch.Open("writer", "handoff-123-abc.json")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist, got %v", err)
	}
}
