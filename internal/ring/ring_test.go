package ring

import (
	"context"
	"testing"
	"time"
)

func ptrU64(v uint64) *uint64 { return &v }
func ptrInt(v int) *int       { return &v }

func TestAppendAssignsIncreasingSeq(t *testing.T) {
	b := New()
	var last uint64
	for i := 0; i < 100; i++ {
		event := b.Append("line", StreamStdout)
		if event.Seq <= last {
			t.Fatalf("seq did not increase: %d <= %d", event.Seq, last)
		}
		last = event.Seq
	}
}

func TestAppendNeverFails(t *testing.T) {
	b := New(WithCaps(1, 1))
	for i := 0; i < 10; i++ {
		b.Append("a very long line that exceeds the byte cap by itself", StreamStdout)
	}
	stats := b.Stats()
	if stats.CurrentLines > 1 {
		t.Errorf("expected at most 1 retained line, got %d", stats.CurrentLines)
	}
}

func TestByteCapEviction(t *testing.T) {
	// Eviction runs only while retained bytes exceed the cap, so a 10-byte
	// cap keeps the last two of four 5-byte lines.
	b := New(WithCaps(DefaultMaxLines, 10))
	for _, text := range []string{"12345", "67890", "abcde", "fghij"} {
		b.Append(text, StreamStdout)
	}
	result, err := b.Query(QueryOptions{})
	if err != nil {
		t.Fatal(err)
	}
	totalBytes := 0
	for _, e := range result.Events {
		totalBytes += len(e.Text)
	}
	if totalBytes > 10 {
		t.Errorf("retained bytes %d exceed cap 10", totalBytes)
	}
	if len(result.Events) == 0 || result.Events[0].Seq < 3 {
		t.Errorf("expected oldest two lines evicted, got first seq %v", result.Events)
	}
}

func TestCursorContinuityUnderEviction(t *testing.T) {
	b := New(WithCaps(2, DefaultMaxBytes))
	b.Append("one", StreamStdout)
	b.Append("two", StreamStdout)
	b.Append("three", StreamStdout)

	result, err := b.Query(QueryOptions{SinceCursor: ptrU64(1)})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Dropped {
		t.Error("expected dropped=true")
	}
	if len(result.Events) == 0 || result.Events[0].Seq != 2 {
		t.Errorf("expected first retained event to have seq=2, got %+v", result.Events)
	}
}

func TestQuerySinceCursorNeverReturnsEarlierSeq(t *testing.T) {
	b := New()
	for i := 0; i < 10; i++ {
		b.Append("line", StreamStdout)
	}
	result, err := b.Query(QueryOptions{SinceCursor: ptrU64(5)})
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range result.Events {
		if e.Seq < 5 {
			t.Errorf("got seq %d < 5", e.Seq)
		}
	}
}

func TestRepeatedQueryMakesMonotoneProgress(t *testing.T) {
	b := New()
	for i := 0; i < 20; i++ {
		b.Append("line", StreamStdout)
	}
	first, err := b.Query(QueryOptions{Last: ptrInt(5)})
	if err != nil {
		t.Fatal(err)
	}
	second, err := b.Query(QueryOptions{SinceCursor: &first.CursorNext})
	if err != nil {
		t.Fatal(err)
	}
	seen := map[uint64]bool{}
	for _, e := range first.Events {
		seen[e.Seq] = true
	}
	for _, e := range second.Events {
		if seen[e.Seq] {
			t.Errorf("seq %d returned twice across cursor-advancing queries", e.Seq)
		}
	}
}

func TestClearPreservesNextSeqMonotonicity(t *testing.T) {
	b := New()
	b.Append("a", StreamStdout)
	b.Append("b", StreamStdout)
	beforeClear := b.NextSeq()
	b.Clear()
	if b.NextSeq() != beforeClear {
		t.Errorf("Clear changed next_seq: before=%d after=%d", beforeClear, b.NextSeq())
	}
	event := b.Append("c", StreamStdout)
	if event.Seq != beforeClear {
		t.Errorf("expected next append to use seq %d, got %d", beforeClear, event.Seq)
	}
	stats := b.Stats()
	if stats.CurrentBytes != 1 {
		t.Errorf("expected 1 byte retained after clear+append, got %d", stats.CurrentBytes)
	}
}

func TestQueryStreamFilter(t *testing.T) {
	b := New()
	b.Append("out", StreamStdout)
	b.Append("err", StreamStderr)
	b.Append("both", StreamCombined)

	result, err := b.Query(QueryOptions{Stream: StreamStdout})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Events) != 1 || result.Events[0].Text != "out" {
		t.Errorf("expected only stdout event, got %+v", result.Events)
	}
}

func TestQueryGrepSubstringCaseInsensitiveByDefault(t *testing.T) {
	b := New()
	b.Append("Listening on port 8080", StreamStdout)
	b.Append("goodbye", StreamStdout)

	result, err := b.Query(QueryOptions{Grep: "listening"})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Events) != 1 {
		t.Fatalf("expected 1 match, got %d", len(result.Events))
	}
}

func TestQueryGrepInvert(t *testing.T) {
	b := New()
	b.Append("error: boom", StreamStdout)
	b.Append("all good", StreamStdout)

	result, err := b.Query(QueryOptions{Grep: "error", Invert: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Events) != 1 || result.Events[0].Text != "all good" {
		t.Errorf("unexpected invert result: %+v", result.Events)
	}
}

func TestQueryRegexRejectsDangerousPattern(t *testing.T) {
	b := New()
	b.Append("x", StreamStdout)
	_, err := b.Query(QueryOptions{Grep: ".*.*", Regex: true})
	if err == nil {
		t.Error("expected error for dangerous regex")
	}
}

func TestQueryTruncationAlwaysIncludesOneOversizeEvent(t *testing.T) {
	b := New()
	b.Append("a single line far larger than the byte cap used in this test case", StreamStdout)
	b.Append("second line", StreamStdout)

	result, err := b.Query(QueryOptions{MaxBytes: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Events) == 0 {
		t.Fatal("expected at least one event despite oversize first line")
	}
	if !result.Truncated {
		t.Error("expected truncated=true")
	}
}

func TestQueryDefaultWindowReturnsAllWhenUnderDefaultLast(t *testing.T) {
	b := New()
	for i := 0; i < 3; i++ {
		b.Append("line", StreamStdout)
	}
	result, err := b.Query(QueryOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Events) != 3 {
		t.Errorf("expected all 3 events, got %d", len(result.Events))
	}
	if result.CursorNext != 4 {
		t.Errorf("expected cursor_next=4, got %d", result.CursorNext)
	}
}

func TestQueryDefaultWindowIsTrailingDefaultQueryLast(t *testing.T) {
	b := New()
	for i := 0; i < DefaultQueryLast+20; i++ {
		b.Append("line", StreamStdout)
	}
	result, err := b.Query(QueryOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Events) != DefaultQueryLast {
		t.Fatalf("expected %d events (the default trailing window), got %d", DefaultQueryLast, len(result.Events))
	}
	firstSeq := result.Events[0].Seq
	wantFirstSeq := uint64(20 + 1)
	if firstSeq != wantFirstSeq {
		t.Errorf("expected trailing window to start at seq %d, got %d", wantFirstSeq, firstSeq)
	}
}

func TestQueryEmptyBufferCursorNextIsNextSeq(t *testing.T) {
	b := New()
	result, err := b.Query(QueryOptions{SinceCursor: ptrU64(1)})
	if err != nil {
		t.Fatal(err)
	}
	if result.CursorNext != b.NextSeq() {
		t.Errorf("expected cursor_next=%d, got %d", b.NextSeq(), result.CursorNext)
	}
}

func TestWaitForMatchFindsEventAfterCursor(t *testing.T) {
	b := New()
	b.Append("booting", StreamStdout)
	after := b.NextSeq()

	go func() {
		time.Sleep(50 * time.Millisecond)
		b.Append("RESTARTED_READY", StreamStdout)
	}()

	result, err := b.WaitForMatch(context.Background(), "RESTARTED_READY", false, true, after, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Matched || result.MatchText != "RESTARTED_READY" {
		t.Errorf("expected match, got %+v", result)
	}
}

func TestWaitForMatchTimesOut(t *testing.T) {
	b := New()
	result, err := b.WaitForMatch(context.Background(), "never", false, true, b.NextSeq(), 100*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if result.Matched {
		t.Error("expected no match on timeout")
	}
}

func TestWaitForMatchCancelledContextResolvesAsTimeout(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	result, err := b.WaitForMatch(ctx, "never", false, true, b.NextSeq(), 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if result.Matched {
		t.Error("expected Matched=false after cancellation")
	}
}

func TestWaitForMatchIgnoresEventsBeforeCursor(t *testing.T) {
	b := New()
	b.Append("RESTARTED_READY before cursor", StreamStdout)
	after := b.NextSeq()
	b.Append("unrelated", StreamStdout)

	result, err := b.WaitForMatch(context.Background(), "RESTARTED_READY", false, true, after, 100*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if result.Matched {
		t.Error("should not match event before the cursor")
	}
}
