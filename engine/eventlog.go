package engine

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ftahirops/xgov/model"
)

// EventBus fans engine events out to subscribers and an optional JSONL sink.
// Subscribers that fall behind lose events; publishing never blocks.
type EventBus struct {
	mu      sync.Mutex
	subs    map[int]chan model.Event
	nextID  int
	recent  []model.Event
	keep    int
	sink    *EventLogWriter
	metrics *Metrics
	now     func() time.Time
}

// NewEventBus creates a bus that remembers the last keep events. sink may be nil.
func NewEventBus(keep int, sink *EventLogWriter, metrics *Metrics) *EventBus {
	if keep <= 0 {
		keep = 200
	}
	return &EventBus{
		subs:    make(map[int]chan model.Event),
		keep:    keep,
		sink:    sink,
		metrics: metrics,
		now:     time.Now,
	}
}

// Publish emits one event.
func (b *EventBus) Publish(kind model.EventKind, pid int, format string, args ...any) model.Event {
	e := model.Event{
		ID:      uuid.NewString(),
		Time:    b.now(),
		Kind:    kind,
		PID:     pid,
		Message: fmt.Sprintf(format, args...),
	}
	b.mu.Lock()
	b.recent = append(b.recent, e)
	if len(b.recent) > b.keep {
		b.recent = b.recent[len(b.recent)-b.keep:]
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.metrics.eventDrop()
		}
	}
	b.mu.Unlock()

	if b.sink != nil {
		_ = b.sink.Write(e) // the sink is best-effort; zap already carries the line
	}
	return e
}

// Subscribe returns a channel of future events and a cancel func.
func (b *EventBus) Subscribe(buffer int) (<-chan model.Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan model.Event, buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Recent returns the remembered events, newest last.
func (b *EventBus) Recent() []model.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.Event(nil), b.recent...)
}

// EventLogWriter appends events as JSON lines. The file is reopened per
// write so log rotation and a deleted state dir both recover on their own.
type EventLogWriter struct {
	mu   sync.Mutex
	path string
}

func NewEventLogWriter(path string) *EventLogWriter {
	return &EventLogWriter{path: path}
}

func (w *EventLogWriter) Write(e model.Event) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", e.ID, err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	f, err := os.OpenFile(w.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadEventLog loads an event log written by EventLogWriter. A missing file
// is an empty log and lines that do not decode are skipped.
func ReadEventLog(path string) ([]model.Event, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(nil, 1<<20)
	var out []model.Event
	for sc.Scan() {
		var e model.Event
		if json.Unmarshal(sc.Bytes(), &e) == nil {
			out = append(out, e)
		}
	}
	return out, sc.Err()
}
