package location

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/natefinch/atomic"
	"github.com/tailscale/hujson"
	"k8s.io/utils/clock"

	"github.com/dthanhvu03/threadsauto-sub000/internal/debounce"
	"github.com/dthanhvu03/threadsauto-sub000/internal/logging"
)

// settleDelay lets bursts of file events settle before the file is re-read.
const settleDelay = 50 * time.Millisecond

// FileProvider keeps the location in a JSON object on disk so it survives
// restarts and can be edited by other tools. Comments and trailing commas
// are accepted. The file has no history: every write replaces it.
type FileProvider struct {
	path string
	log  logging.Logger

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	done     chan struct{}
	settle   *debounce.Scheduler
	lastSeen string

	listeners listeners
}

// NewFileProvider returns a provider backed by path. The file does not
// need to exist yet.
func NewFileProvider(path string, clk clock.WithDelayedExecution, log logging.Logger) *FileProvider {
	if log == nil {
		log = logging.Nop()
	}
	return &FileProvider{
		path:   filepath.Clean(path),
		log:    log.With("component", "location", "path", path),
		settle: debounce.New(clk),
	}
}

// Read returns the stored query; a missing or malformed file reads as empty.
func (p *FileProvider) Read() Query {
	q, err := p.load()
	if err != nil {
		p.log.Warn("unable to read location file", "error", err)
		return Query{}
	}
	return q
}

func (p *FileProvider) load() (Query, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Query{}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return Query{}, nil
	}
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("invalid JSONC: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(standardized, &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	q := make(Query, len(raw))
	for k, v := range raw {
		switch typed := v.(type) {
		case nil:
			q[k] = ""
		case string:
			q[k] = typed
		default:
			q[k] = fmt.Sprint(typed)
		}
	}
	return q, nil
}

// Write stores q atomically. opts is ignored because the file keeps no
// history.
func (p *FileProvider) Write(q Query, _ WriteOptions) error {
	if q == nil {
		q = Query{}
	}
	data, err := json.MarshalIndent(map[string]string(q), "", "  ")
	if err != nil {
		return fmt.Errorf("encode location: %w", err)
	}
	data = append(data, '\n')
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("create location dir: %w", err)
	}
	if err := atomic.WriteFile(p.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write location file: %w", err)
	}
	return nil
}

// OnChange registers cb and starts watching the file on first use.
func (p *FileProvider) OnChange(cb func(Query)) func() {
	cancel := p.listeners.add(cb)
	if err := p.startWatch(); err != nil {
		p.log.Error("unable to watch location file", "error", err)
	}
	return cancel
}

// startWatch watches the parent directory because atomic writes replace the
// file, which drops watches held on the file itself.
func (p *FileProvider) startWatch() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.watcher != nil {
		return nil
	}
	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to watch %q: %w", dir, err)
	}
	p.watcher = w
	p.done = make(chan struct{})
	if q, err := p.load(); err == nil {
		p.lastSeen = q.Encode()
	}
	go p.watch(w, p.done)
	return nil
}

func (p *FileProvider) watch(w *fsnotify.Watcher, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != p.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			p.settle.Schedule(p.reload, settleDelay)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			p.log.Warn("location watcher error", "error", err)
		}
	}
}

func (p *FileProvider) reload() {
	q, err := p.load()
	if err != nil {
		p.log.Warn("ignoring unreadable location file", "error", err)
		return
	}
	encoded := q.Encode()
	p.mu.Lock()
	if p.watcher == nil || encoded == p.lastSeen {
		p.mu.Unlock()
		return
	}
	p.lastSeen = encoded
	p.mu.Unlock()
	p.listeners.notify(q)
}

// Close stops watching. It is safe to call more than once.
func (p *FileProvider) Close() error {
	p.settle.Cancel()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.watcher == nil {
		return nil
	}
	close(p.done)
	err := p.watcher.Close()
	p.watcher = nil
	return err
}
