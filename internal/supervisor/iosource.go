package supervisor

import (
	"bufio"
	"io"
	"sync"

	"github.com/tap-run/tap/internal/ring"
)

// chunk is a tagged slice of bytes read from the child. Both pipe and
// PTY-style sources yield chunks through the same interface so line
// framing logic is shared regardless of which backend produced them.
type chunk struct {
	stream ring.Stream
	data   []byte
	err    error
}

// ioSource is the abstract "child I/O source" referenced by spec.md
// §4.2 and §9: something that yields byte chunks tagged with a stream
// label. The PTY vs. pipes choice is a configuration flag whose actual
// backend is pluggable; tap ships the pipe backend (separate stdout and
// stderr) as the default, and a shell-wrapped combined-stream backend
// that approximates PTY-style single-stream delivery without requiring
// a real pseudo-terminal allocator. A genuine PTY backend can satisfy
// this same interface without touching the supervisor.
type ioSource interface {
	// chunks returns a channel of chunks. The channel is closed once
	// the underlying readers have reached EOF on all streams.
	chunks() <-chan chunk
}

// pipeSource reads stdout and stderr independently, tagging each
// chunk with its originating stream.
type pipeSource struct {
	stdout io.ReadCloser
	stderr io.ReadCloser
	out    chan chunk
	once   sync.Once
}

func newPipeSource(stdout, stderr io.ReadCloser) *pipeSource {
	s := &pipeSource{stdout: stdout, stderr: stderr, out: make(chan chunk, 16)}
	var wg sync.WaitGroup
	wg.Add(2)
	go s.pump(stdout, ring.StreamStdout, &wg)
	go s.pump(stderr, ring.StreamStderr, &wg)
	go func() {
		wg.Wait()
		close(s.out)
	}()
	return s
}

func (s *pipeSource) pump(r io.Reader, stream ring.Stream, wg *sync.WaitGroup) {
	defer wg.Done()
	reader := bufio.NewReaderSize(r, 64*1024)
	buf := make([]byte, 4096)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			s.out <- chunk{stream: stream, data: data}
		}
		if err != nil {
			if err != io.EOF {
				s.out <- chunk{stream: stream, err: err}
			}
			return
		}
	}
}

func (s *pipeSource) chunks() <-chan chunk { return s.out }

// combinedSource reads a single stream (used by the shell-wrapped
// approximation of PTY mode) and tags every chunk StreamCombined.
type combinedSource struct {
	out chan chunk
}

func newCombinedSource(r io.Reader) *combinedSource {
	s := &combinedSource{out: make(chan chunk, 16)}
	go func() {
		defer close(s.out)
		reader := bufio.NewReaderSize(r, 64*1024)
		buf := make([]byte, 4096)
		for {
			n, err := reader.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				s.out <- chunk{stream: ring.StreamCombined, data: data}
			}
			if err != nil {
				if err != io.EOF {
					s.out <- chunk{stream: ring.StreamCombined, err: err}
				}
				return
			}
		}
	}()
	return s
}

func (s *combinedSource) chunks() <-chan chunk { return s.out }
