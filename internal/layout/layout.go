// internal/layout/layout.go
//
// Defines the shared storage namespace. Every agent coordinating
// through the relay gets four areas under one root:
//
// <root>/
// ├── agents/<name>/input/       inbound handoffs and seeded files
// │             └── processed/   acknowledged handoffs
// ├── agents/<name>/output/      files the agent produces
// ├── agents/<name>/state/       current.json + previous.json
// ├── agents/<name>/cache/       TTL-scoped entries
// ├── archives/                  dated output bundles
// ├── temp/                      shared scratch space
// ├── workflows/                 definitions, plus runs/ records
// └── actions/                   action pack definitions
//
// Ownership follows the mailbox pattern: only input/ is writable by
// other agents; state, cache, and output belong to the named agent.

package layout

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/kingrea/The-Relay/internal/fsutil"
	"github.com/kingrea/The-Relay/internal/logging"
)

// Directory names under the storage root
const (
	AgentsDirName    = "agents"
	ArchivesDirName  = "archives"
	TempDirName      = "temp"
	WorkflowsDirName = "workflows"
	RunsDirName      = "runs"
	ActionsDirName   = "actions"
)

// Directory names within one agent
const (
	InputDirName     = "input"
	ProcessedDirName = "processed"
	OutputDirName    = "output"
	StateDirName     = "state"
	CacheDirName     = "cache"
)

// SchemaVersion marks the layout generation written into the initial
// state snapshot at provisioning time.
const SchemaVersion = "1.0.0"

var (
	// ErrInvalidName rejects empty names and names that could escape
	// the agent's directory.
	ErrInvalidName = errors.New("layout: invalid agent name")

	// ErrAgentNotFound is returned when an operation targets an agent
	// that was never provisioned.
	ErrAgentNotFound = errors.New("layout: agent not found")

	// ErrInvalidFileName rejects file names with separators or
	// parent-directory sequences.
	ErrInvalidFileName = errors.New("layout: invalid file name")
)

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// ValidateName checks that name is usable as an agent directory.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidName)
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q contains path separators", ErrInvalidName, name)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// ValidateFileName checks that name stays inside a single directory.
func ValidateFileName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidFileName)
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidFileName, name)
	}
	if name != filepath.Base(name) {
		return fmt.Errorf("%w: %q", ErrInvalidFileName, name)
	}
	return nil
}

// Namespace manages the storage root directory structure.
type Namespace struct {
	root   string
	logger logging.Logger
	now    func() time.Time
}

// Option configures a Namespace.
type Option func(*Namespace)

// WithLogger sets the structured sink.
func WithLogger(l logging.Logger) Option {
	return func(n *Namespace) {
		n.logger = logging.OrNop(l)
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(n *Namespace) {
		n.now = now
	}
}

// New creates a Namespace manager rooted at root.
func New(root string, opts ...Option) *Namespace {
	n := &Namespace{
		root:   root,
		logger: logging.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Root returns the storage root path.
func (n *Namespace) Root() string {
	return n.root
}

// AgentsPath returns the directory that holds all agents.
func (n *Namespace) AgentsPath() string {
	return filepath.Join(n.root, AgentsDirName)
}

// AgentPath returns the directory for one agent.
func (n *Namespace) AgentPath(agent string) string {
	return filepath.Join(n.AgentsPath(), agent)
}

// InputPath returns an agent's inbound mailbox directory.
func (n *Namespace) InputPath(agent string) string {
	return filepath.Join(n.AgentPath(agent), InputDirName)
}

// ProcessedPath returns the directory holding acknowledged handoffs.
func (n *Namespace) ProcessedPath(agent string) string {
	return filepath.Join(n.InputPath(agent), ProcessedDirName)
}

// OutputPath returns an agent's output directory.
func (n *Namespace) OutputPath(agent string) string {
	return filepath.Join(n.AgentPath(agent), OutputDirName)
}

// StatePath returns an agent's state directory.
func (n *Namespace) StatePath(agent string) string {
	return filepath.Join(n.AgentPath(agent), StateDirName)
}

// CachePath returns an agent's cache directory.
func (n *Namespace) CachePath(agent string) string {
	return filepath.Join(n.AgentPath(agent), CacheDirName)
}

// ArchivesPath returns the directory holding dated output bundles.
func (n *Namespace) ArchivesPath() string {
	return filepath.Join(n.root, ArchivesDirName)
}

// TempPath returns the shared scratch directory.
func (n *Namespace) TempPath() string {
	return filepath.Join(n.root, TempDirName)
}

// WorkflowsPath returns the directory holding workflow definitions.
func (n *Namespace) WorkflowsPath() string {
	return filepath.Join(n.root, WorkflowsDirName)
}

// RunsPath returns the directory holding workflow run records.
func (n *Namespace) RunsPath() string {
	return filepath.Join(n.WorkflowsPath(), RunsDirName)
}

// ActionsPath returns the directory holding action pack definitions.
func (n *Namespace) ActionsPath() string {
	return filepath.Join(n.root, ActionsDirName)
}

// Initialize creates the top-level directory structure.
func (n *Namespace) Initialize() error {
	dirs := []string{
		n.AgentsPath(),
		n.ArchivesPath(),
		n.TempPath(),
		n.WorkflowsPath(),
		n.RunsPath(),
		n.ActionsPath(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("layout: create %s: %w", dir, err)
		}
	}
	return nil
}

// Exists reports whether the agent has been provisioned.
func (n *Namespace) Exists(agent string) bool {
	if ValidateName(agent) != nil {
		return false
	}
	return fsutil.DirExists(n.AgentPath(agent))
}

// EnsureAgent validates the name and confirms the agent exists.
func (n *Namespace) EnsureAgent(agent string) error {
	if err := ValidateName(agent); err != nil {
		return err
	}
	if !n.Exists(agent) {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, agent)
	}
	return nil
}

// Provision creates the four storage areas for an agent and stamps an
// initial state snapshot. Calling it again for an existing agent is a
// no-op: directories are ensured but existing state is never reset.
func (n *Namespace) Provision(agent string) error {
	if err := ValidateName(agent); err != nil {
		return err
	}
	if err := n.Initialize(); err != nil {
		return err
	}

	dirs := []string{
		n.InputPath(agent),
		n.ProcessedPath(agent),
		n.OutputPath(agent),
		n.StatePath(agent),
		n.CachePath(agent),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("layout: provision %s: %w", agent, err)
		}
	}

	currentPath := filepath.Join(n.StatePath(agent), "current.json")
	if _, err := os.Stat(currentPath); err == nil {
		n.logger.Debug("agent already provisioned", "agent", agent)
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("layout: stat initial state for %s: %w", agent, err)
	}

	initial := map[string]any{
		"agent":          agent,
		"initialized_at": n.now().UTC().Format(time.RFC3339),
		"schema_version": SchemaVersion,
	}
	encoded, err := json.MarshalIndent(initial, "", "  ")
	if err != nil {
		return fmt.Errorf("layout: encode initial state for %s: %w", agent, err)
	}
	if err := fsutil.AtomicWriteFile(currentPath, append(encoded, '\n'), 0644); err != nil {
		return fmt.Errorf("layout: write initial state for %s: %w", agent, err)
	}

	n.logger.Info("agent provisioned", "agent", agent)
	return nil
}

// Agents returns the sorted names of all provisioned agents.
func (n *Namespace) Agents() ([]string, error) {
	entries, err := os.ReadDir(n.AgentsPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("layout: list agents: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// SaveOutput writes content into the agent's output area. An empty
// filename gets a timestamped default. Returns the file name used.
func (n *Namespace) SaveOutput(agent, filename string, content []byte) (string, error) {
	if err := n.EnsureAgent(agent); err != nil {
		return "", err
	}
	if filename == "" {
		filename = fmt.Sprintf("output-%s.txt", n.now().UTC().Format("20060102-150405"))
	}
	if err := ValidateFileName(filename); err != nil {
		return "", err
	}
	path := filepath.Join(n.OutputPath(agent), filename)
	if err := fsutil.AtomicWriteFile(path, content, 0644); err != nil {
		return "", fmt.Errorf("layout: save output for %s: %w", agent, err)
	}
	n.logger.Debug("output saved", "agent", agent, "file", filename)
	return filename, nil
}

// ReadInput returns the contents of one file from the agent's input
// area. Missing files surface fs.ErrNotExist through the wrap.
func (n *Namespace) ReadInput(agent, filename string) ([]byte, error) {
	if err := n.EnsureAgent(agent); err != nil {
		return nil, err
	}
	if err := ValidateFileName(filename); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(n.InputPath(agent), filename))
	if err != nil {
		return nil, fmt.Errorf("layout: read input %s/%s: %w", agent, filename, err)
	}
	return data, nil
}

// AreaListing describes one storage area for reporting.
type AreaListing struct {
	Area  string   `json:"area"`
	Files []string `json:"files"`
}

// AgentInfo summarizes an agent's storage for list commands and the
// status board.
type AgentInfo struct {
	Name       string        `json:"name"`
	Areas      []AreaListing `json:"areas"`
	HasState   bool          `json:"has_state"`
	StateAge   time.Duration `json:"-"`
	InboxCount int           `json:"inbox_count"`
	CacheCount int           `json:"cache_count"`
}

// Describe lists the files in each of the agent's areas.
func (n *Namespace) Describe(agent string) (AgentInfo, error) {
	if err := n.EnsureAgent(agent); err != nil {
		return AgentInfo{}, err
	}

	info := AgentInfo{Name: agent}
	areas := []struct {
		name string
		path string
	}{
		{InputDirName, n.InputPath(agent)},
		{OutputDirName, n.OutputPath(agent)},
		{StateDirName, n.StatePath(agent)},
		{CacheDirName, n.CachePath(agent)},
	}
	for _, area := range areas {
		files, err := listFiles(area.path)
		if err != nil {
			return AgentInfo{}, fmt.Errorf("layout: describe %s: %w", agent, err)
		}
		info.Areas = append(info.Areas, AreaListing{Area: area.name, Files: files})
		switch area.name {
		case InputDirName:
			info.InboxCount = len(files)
		case CacheDirName:
			info.CacheCount = len(files)
		}
	}

	statePath := filepath.Join(n.StatePath(agent), "current.json")
	if stat, err := os.Stat(statePath); err == nil {
		info.HasState = true
		info.StateAge = n.now().Sub(stat.ModTime())
	}
	return info, nil
}

func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.Type().IsRegular() && !strings.HasPrefix(entry.Name(), ".") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
