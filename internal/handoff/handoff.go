// internal/handoff/handoff.go
//
// Durable agent-to-agent handoff over the shared root. A send wraps
// the payload in an envelope and commits it into the target's input
// area under a unique name; delivery is at-least-once because the
// commit is a rename: a crash before it leaves nothing, a crash after
// it leaves the complete message. The channel never pushes: targets
// read their own mailbox and acknowledge by consuming.

package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/The-Relay/internal/fsutil"
	"github.com/kingrea/The-Relay/internal/layout"
	"github.com/kingrea/The-Relay/internal/logging"
)

// ErrTargetNotFound is returned when the destination agent was never
// provisioned. Senders do not have to be provisioned themselves.
var ErrTargetNotFound = errors.New("handoff: target agent not found")

// ErrNotHandoff rejects consume calls aimed at files that are not
// handoff messages, such as externally seeded inputs.
var ErrNotHandoff = errors.New("handoff: not a handoff message")

const (
	filePrefix = "handoff-"
	fileSuffix = ".json"
)

// Message is the envelope committed into the target's input area.
type Message struct {
	SourceAgent string         `json:"source_agent"`
	TargetAgent string         `json:"target_agent"`
	Timestamp   time.Time      `json:"timestamp"`
	Data        map[string]any `json:"data"`
}

// Channel sends and reads handoff messages.
type Channel struct {
	ns     *layout.Namespace
	logger logging.Logger
	now    func() time.Time
	newID  func() string
}

// Option configures a Channel.
type Option func(*Channel)

// WithLogger sets the structured sink.
func WithLogger(l logging.Logger) Option {
	return func(c *Channel) {
		c.logger = logging.OrNop(l)
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Channel) {
		c.now = now
	}
}

// WithIDSource overrides the disambiguator generator.
func WithIDSource(newID func() string) Option {
	return func(c *Channel) {
		c.newID = newID
	}
}

// New creates a handoff channel over the given namespace.
func New(ns *layout.Namespace, opts ...Option) *Channel {
	c := &Channel{
		ns:     ns,
		logger: logging.Nop(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send commits payload to the target's input area and returns the
// message file name. Concurrent sends never collide: names carry the
// submission time plus a random disambiguator.
func (c *Channel) Send(ctx context.Context, source, target string, payload map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := layout.ValidateName(source); err != nil {
		return "", err
	}
	if err := c.ns.EnsureAgent(target); err != nil {
		if errors.Is(err, layout.ErrAgentNotFound) {
			return "", fmt.Errorf("%w: %s", ErrTargetNotFound, target)
		}
		return "", err
	}

	now := c.now().UTC()
	msg := Message{
		SourceAgent: source,
		TargetAgent: target,
		Timestamp:   now,
		Data:        payload,
	}
	encoded, err := json.MarshalIndent(msg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("handoff: encode message %s->%s: %w", source, target, err)
	}

	name := fmt.Sprintf("%s%d-%s%s", filePrefix, now.UnixNano(), shortID(c.newID()), fileSuffix)
	path := filepath.Join(c.ns.InputPath(target), name)
	if err := fsutil.AtomicWriteFile(path, append(encoded, '\n'), 0644); err != nil {
		return "", fmt.Errorf("handoff: commit message %s->%s: %w", source, target, err)
	}

	c.logger.Info("handoff sent", "source", source, "target", target, "message", name)
	return name, nil
}

// List returns the unconsumed handoff message names in the target's
// mailbox, oldest first. Externally seeded input files are not
// messages and are skipped.
func (c *Channel) List(target string) ([]string, error) {
	if err := c.ns.EnsureAgent(target); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(c.ns.InputPath(target))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("handoff: list mailbox for %s: %w", target, err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileSuffix) {
			names = append(names, name)
		}
	}
	// Names embed fixed-width nanosecond timestamps, so the lexical
	// order is the submission order.
	sort.Strings(names)
	return names, nil
}

// Open reads one unconsumed message by name.
func (c *Channel) Open(target, name string) (Message, error) {
	if err := c.ns.EnsureAgent(target); err != nil {
		return Message{}, err
	}
	if err := layout.ValidateFileName(name); err != nil {
		return Message{}, err
	}

	data, err := os.ReadFile(filepath.Join(c.ns.InputPath(target), name))
	if err != nil {
		return Message{}, fmt.Errorf("handoff: open %s for %s: %w", name, target, err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("handoff: parse %s for %s: %w", name, target, err)
	}
	return msg, nil
}

// Consume reads a message and moves it into input/processed/,
// acknowledging it. A crash between Open and Consume re-delivers the
// message on the next listing, which is the at-least-once contract.
func (c *Channel) Consume(target, name string) (Message, error) {
	if !strings.HasPrefix(name, filePrefix) {
		return Message{}, fmt.Errorf("%w: %s", ErrNotHandoff, name)
	}
	msg, err := c.Open(target, name)
	if err != nil {
		return Message{}, err
	}

	processedDir := c.ns.ProcessedPath(target)
	if err := os.MkdirAll(processedDir, 0755); err != nil {
		return Message{}, fmt.Errorf("handoff: ensure processed dir for %s: %w", target, err)
	}
	src := filepath.Join(c.ns.InputPath(target), name)
	dst := filepath.Join(processedDir, name)
	if err := os.Rename(src, dst); err != nil {
		return Message{}, fmt.Errorf("handoff: consume %s for %s: %w", name, target, err)
	}

	c.logger.Debug("handoff consumed", "target", target, "message", name)
	return msg, nil
}

func shortID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
