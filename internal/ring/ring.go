// Package ring implements the in-memory, sequence-numbered log store
// that backs each tap runner: dual (line + byte) eviction, an
// incremental cursor protocol, filtered queries, and a readiness-wait
// primitive. It is the only piece of shared mutable state in the
// runner; every read and write is serialized under a single mutex.
package ring

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/tap-run/tap/internal/ring/pattern"
)

// Stream identifies which descriptor a LogEvent's text came from.
type Stream string

const (
	StreamCombined Stream = "combined"
	StreamStdout   Stream = "stdout"
	StreamStderr   Stream = "stderr"
)

// LogEvent is the unit of capture and query.
type LogEvent struct {
	Seq    uint64 `json:"seq"`
	TS     int64  `json:"ts"`
	Stream Stream `json:"stream"`
	Text   string `json:"text"`
}

// DefaultMaxLines and DefaultMaxBytes are the buffer's retention caps,
// per spec.
const (
	DefaultMaxLines = 5000
	DefaultMaxBytes = 10_000_000
)

// Query defaults, applied when the corresponding field is absent.
const (
	DefaultQueryMaxLines = 80
	DefaultQueryMaxBytes = 32_768
	DefaultQueryLast     = 80
)

// Buffer is the ring buffer. The zero value is not usable; construct
// with New.
type Buffer struct {
	mu sync.Mutex

	events     []LogEvent
	nextSeq    uint64
	lowestSeq  uint64
	totalBytes int

	maxLines int
	maxBytes int

	nowFn func() time.Time
}

// Option configures a Buffer at construction time.
type Option func(*Buffer)

// WithCaps overrides the default retention caps.
func WithCaps(maxLines, maxBytes int) Option {
	return func(b *Buffer) {
		b.maxLines = maxLines
		b.maxBytes = maxBytes
	}
}

// withClock overrides the time source. Used by tests.
func withClock(fn func() time.Time) Option {
	return func(b *Buffer) { b.nowFn = fn }
}

// New creates an empty Buffer. next_seq starts at 1.
func New(opts ...Option) *Buffer {
	b := &Buffer{
		nextSeq:   1,
		lowestSeq: 1,
		maxLines:  DefaultMaxLines,
		maxBytes:  DefaultMaxBytes,
		nowFn:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Append assigns the next sequence number to text, stamps the current
// time, stores the event, then evicts until both caps are satisfied.
// Append never fails.
func (b *Buffer) Append(text string, stream Stream) LogEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.appendLocked(text, stream)
}

func (b *Buffer) appendLocked(text string, stream Stream) LogEvent {
	event := LogEvent{
		Seq:    b.nextSeq,
		TS:     b.nowFn().UnixMilli(),
		Stream: stream,
		Text:   text,
	}
	b.nextSeq++
	b.events = append(b.events, event)
	b.totalBytes += len(text)

	for len(b.events) > b.maxLines || b.totalBytes > b.maxBytes {
		if len(b.events) == 0 {
			break
		}
		evicted := b.events[0]
		b.events = b.events[1:]
		b.totalBytes -= len(evicted.Text)
	}

	if len(b.events) > 0 {
		b.lowestSeq = b.events[0].Seq
	} else {
		b.lowestSeq = b.nextSeq
	}

	return event
}

// InsertMarker appends a combined-stream event with sentinel text, used
// by the control server to record restart/stop lifecycle boundaries in
// the log stream itself.
func (b *Buffer) InsertMarker(text string) LogEvent {
	return b.Append(text, StreamCombined)
}

// Clear drops all retained events. next_seq is not reset.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
	b.totalBytes = 0
	b.lowestSeq = b.nextSeq
}

// NextSeq returns the sequence number that will be assigned to the next
// appended event.
func (b *Buffer) NextSeq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nextSeq
}

// Stats is a point-in-time summary of buffer occupancy, used to compose
// RunnerStatus without exposing the retained events themselves.
type Stats struct {
	MaxLines     int `json:"max_lines"`
	MaxBytes     int `json:"max_bytes"`
	CurrentLines int `json:"current_lines"`
	CurrentBytes int `json:"current_bytes"`
}

// Stats returns the current occupancy of the buffer.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		MaxLines:     b.maxLines,
		MaxBytes:     b.maxBytes,
		CurrentLines: len(b.events),
		CurrentBytes: b.totalBytes,
	}
}

// QueryOptions selects, filters, and bounds a Query call. At most one
// window selector should be set; if more than one is, precedence is
// SinceCursor > SinceMS > Last, matching the order they are checked in
// Query.
type QueryOptions struct {
	SinceCursor *uint64
	SinceMS     *int64
	Last        *int

	Stream Stream // "", "stdout", "stderr", or "combined" (no-op)
	Grep   string
	Regex  bool
	Invert bool
	// CaseSensitive defaults to false (case-insensitive), matching
	// spec.md §4.1's "insensitive by default" rule.
	CaseSensitive bool

	MaxLines int
	MaxBytes int
}

// Result is the outcome of a Query call.
type Result struct {
	Events     []LogEvent
	CursorNext uint64
	Truncated  bool
	Dropped    bool
}

// Query evaluates a window selector against the full retained list, then
// applies the stream and pattern filters in order, then truncates to the
// line/byte limits.
func (b *Buffer) Query(opts QueryOptions) (Result, error) {
	b.mu.Lock()
	snapshot := make([]LogEvent, len(b.events))
	copy(snapshot, b.events)
	lowestSeq := b.lowestSeq
	nextSeq := b.nextSeq
	b.mu.Unlock()

	windowed, dropped := applyWindow(snapshot, opts, lowestSeq, b.nowFn())

	filtered, err := applyFilters(windowed, opts)
	if err != nil {
		return Result{}, err
	}

	maxLines := opts.MaxLines
	if maxLines <= 0 {
		maxLines = DefaultQueryMaxLines
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultQueryMaxBytes
	}

	out := make([]LogEvent, 0, len(filtered))
	byteCount := 0
	for _, event := range filtered {
		wouldExceed := len(out)+1 > maxLines || byteCount+len(event.Text) > maxBytes
		if len(out) > 0 && wouldExceed {
			break
		}
		out = append(out, event)
		byteCount += len(event.Text)
	}
	truncated := len(out) < len(filtered)

	cursorNext := nextSeq
	if len(out) > 0 {
		cursorNext = out[len(out)-1].Seq + 1
	}

	return Result{
		Events:     out,
		CursorNext: cursorNext,
		Truncated:  truncated,
		Dropped:    dropped,
	}, nil
}

func applyWindow(events []LogEvent, opts QueryOptions, lowestSeq uint64, now time.Time) ([]LogEvent, bool) {
	switch {
	case opts.SinceCursor != nil:
		cursor := *opts.SinceCursor
		dropped := cursor < lowestSeq
		out := events[:0:0]
		for _, event := range events {
			if event.Seq >= cursor {
				out = append(out, event)
			}
		}
		return out, dropped

	case opts.SinceMS != nil:
		floor := now.UnixMilli() - *opts.SinceMS
		out := events[:0:0]
		for _, event := range events {
			if event.TS >= floor {
				out = append(out, event)
			}
		}
		return out, false

	case opts.Last != nil:
		n := *opts.Last
		if n < 0 {
			n = 0
		}
		if n >= len(events) {
			return events, false
		}
		return events[len(events)-n:], false

	default:
		// No window selector given: spec.md's default window is the
		// trailing DefaultQueryLast events, not every retained event.
		n := DefaultQueryLast
		if n >= len(events) {
			return events, false
		}
		return events[len(events)-n:], false
	}
}

func applyFilters(events []LogEvent, opts QueryOptions) ([]LogEvent, error) {
	out := events

	if opts.Stream == StreamStdout || opts.Stream == StreamStderr {
		filtered := out[:0:0]
		for _, event := range out {
			if event.Stream == opts.Stream {
				filtered = append(filtered, event)
			}
		}
		out = filtered
	}

	if opts.Grep == "" {
		return out, nil
	}

	var matchFn func(text string) bool
	if opts.Regex {
		re, err := pattern.CompileSafe(opts.Grep, !opts.CaseSensitive)
		if err != nil {
			return nil, err
		}
		matchFn = re.MatchString
	} else {
		needle := opts.Grep
		if !opts.CaseSensitive {
			needle = strings.ToLower(needle)
		}
		matchFn = func(text string) bool {
			if !opts.CaseSensitive {
				text = strings.ToLower(text)
			}
			return strings.Contains(text, needle)
		}
	}

	filtered := out[:0:0]
	for _, event := range out {
		matched := matchFn(event.Text)
		if opts.Invert {
			matched = !matched
		}
		if matched {
			filtered = append(filtered, event)
		}
	}
	return filtered, nil
}

// WaitResult is the outcome of a WaitForMatch call.
type WaitResult struct {
	Matched   bool
	MatchText string
	Snippet   []string
}

// pollInterval bounds how often WaitForMatch re-scans the buffer.
const pollInterval = 150 * time.Millisecond

// snippetSize is the number of trailing texts retained in a non-matching
// wait result.
const snippetSize = 10

// WaitForMatch polls the buffer for an event at or after afterCursor
// whose text matches pattern, returning as soon as one is found, when
// the timeout elapses, or when ctx is cancelled (which resolves as a
// timeout, per spec.md §4.1).
func (b *Buffer) WaitForMatch(ctx context.Context, source string, isRegex, caseSensitive bool, afterCursor uint64, timeout time.Duration) (WaitResult, error) {
	var matchFn func(text string) bool
	if isRegex {
		re, err := pattern.CompileSafe(source, !caseSensitive)
		if err != nil {
			return WaitResult{}, err
		}
		matchFn = re.MatchString
	} else {
		needle := source
		if !caseSensitive {
			needle = strings.ToLower(needle)
		}
		matchFn = func(text string) bool {
			if !caseSensitive {
				text = strings.ToLower(text)
			}
			return strings.Contains(text, needle)
		}
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	scan := func() (WaitResult, bool) {
		b.mu.Lock()
		defer b.mu.Unlock()

		var considered []string
		for _, event := range b.events {
			if event.Seq < afterCursor {
				continue
			}
			considered = append(considered, event.Text)
			if matchFn(event.Text) {
				return WaitResult{Matched: true, MatchText: event.Text, Snippet: snippet(considered)}, true
			}
		}
		return WaitResult{Matched: false, Snippet: snippet(considered)}, false
	}

	if result, ok := scan(); ok {
		return result, nil
	}

	for {
		select {
		case <-ctx.Done():
			result, _ := scan()
			result.Matched = false
			return result, nil
		case <-deadline.C:
			result, _ := scan()
			result.Matched = false
			return result, nil
		case <-ticker.C:
			if result, ok := scan(); ok {
				return result, nil
			}
		}
	}
}

func snippet(texts []string) []string {
	if len(texts) <= snippetSize {
		return texts
	}
	return texts[len(texts)-snippetSize:]
}
