package logger

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var dedup = &deduplicator{
	flushDelay: 2 * time.Second,
	logger:     slog.Default,
}

type deduplicator struct {
	mu         sync.Mutex
	lastKey    string
	lastMsg    string
	lastArgs   []any
	count      int
	flushDelay time.Duration
	timer      *time.Timer
	logger     func() *slog.Logger
}

func (d *deduplicator) flush() {
	if d.count == 0 {
		return
	}
	if d.count == 1 {
		d.logger().Warn(d.lastMsg, d.lastArgs...)
	} else {
		d.logger().Warn(d.lastMsg, append(d.lastArgs, "repeats", d.count)...)
	}
	d.count = 0
	d.lastKey = ""
	d.lastMsg = ""
	d.lastArgs = nil
}

func (d *deduplicator) log(msg string, args ...any) {
	key := msg + fmt.Sprint(args...)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}

	if key == d.lastKey {
		d.count++
	} else {
		d.flush()
		d.lastKey = key
		d.lastMsg = msg
		d.lastArgs = args
		d.count = 1
	}

	d.timer = time.AfterFunc(d.flushDelay, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.flush()
	})
}

func (d *deduplicator) flushNow() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.flush()
}

// Dedup logs a warning, collapsing identical consecutive calls into a single
// line carrying a repeat count.
func Dedup(msg string, args ...any) {
	dedup.log(msg, args...)
}

// Flush writes out any pending collapsed line.
func Flush() {
	dedup.flushNow()
}
