package feed

import (
	"bytes"
	"errors"
	"io"
	"sync"
)

// TestablePort is an in-memory Porter for tests. Reads drain ReadBuffer and
// then return io.EOF, or ReadError when set.
type TestablePort struct {
	mu sync.Mutex

	ReadBuffer *bytes.Buffer
	ReadError  error
	CloseError error

	closed     bool
	CloseCalls int
}

// NewTestablePort returns a port that yields data.
func NewTestablePort(data string) *TestablePort {
	return &TestablePort{ReadBuffer: bytes.NewBufferString(data)}
}

func (p *TestablePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errors.New("port closed")
	}
	if p.ReadBuffer.Len() == 0 {
		if p.ReadError != nil {
			return 0, p.ReadError
		}
		return 0, io.EOF
	}
	return p.ReadBuffer.Read(b)
}

func (p *TestablePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CloseCalls++
	p.closed = true
	return p.CloseError
}

// IsClosed reports whether Close has been called.
func (p *TestablePort) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// PipePort is a Porter fed by writes to its Writer. Closing the port ends
// the stream.
type PipePort struct {
	*io.PipeReader
	Writer *io.PipeWriter
}

// NewPipePort returns a connected pipe port.
func NewPipePort() *PipePort {
	r, w := io.Pipe()
	return &PipePort{PipeReader: r, Writer: w}
}

func (p *PipePort) Close() error {
	p.Writer.Close()
	return p.PipeReader.Close()
}
