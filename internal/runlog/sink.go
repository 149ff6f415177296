package runlog

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Sink stores one append-only log file per execution identifier. Appends are
// fsynced before returning; the file is the only durable record of a run.
type Sink struct {
	dir string
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// New creates the sink directory if needed.
func New(dir string) (*Sink, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("log directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	return &Sink{dir: dir}, nil
}

// Dir returns the sink directory.
func (s *Sink) Dir() string {
	return s.dir
}

// Path returns the log file path for an identifier.
func (s *Sink) Path(id string) string {
	return filepath.Join(s.dir, id+".log")
}

// Append writes one timestamped record. Content may span multiple lines; the
// timestamp prefixes the record, not each line.
func (s *Sink) Append(id, content string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("invalid log id %q", id)
	}
	f, err := os.OpenFile(s.Path(id), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	line := fmt.Sprintf("[%s] %s\n", time.Now().Format(time.RFC3339Nano), content)
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return fmt.Errorf("append log: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync log: %w", err)
	}
	return f.Close()
}

// Read returns the accumulated contents for an identifier and whether a log
// exists at all. An identifier that never logged reads as absent, not empty.
func (s *Sink) Read(id string) (string, bool, error) {
	if !idPattern.MatchString(id) {
		return "", false, nil
	}
	data, err := os.ReadFile(s.Path(id))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read log: %w", err)
	}
	return string(data), true, nil
}

// Entry describes one stored log file.
type Entry struct {
	ID      string
	Size    int64
	ModTime time.Time
}

// List returns the stored logs sorted by identifier.
func (s *Sink) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read log directory: %w", err)
	}
	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".log") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			ID:      strings.TrimSuffix(de.Name(), ".log"),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}
