// Package utils holds small helpers shared by the CLI entry point.
package utils

import (
	"bufio"
	"bytes"
	"io"
	"sync"
)

// DeferredWriter buffers log output while a full-screen program owns the
// terminal. Flush replays it afterwards.
type DeferredWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// Write implements io.Writer.
func (d *DeferredWriter) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buf.Write(p)
}

// Len returns the number of buffered bytes.
func (d *DeferredWriter) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buf.Len()
}

// Flush writes each buffered line to w with a separate Write call, so line
// oriented writers such as zerolog.ConsoleWriter see one record at a time.
// The buffer is empty afterwards.
func (d *DeferredWriter) Flush(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	sc := bufio.NewScanner(&d.buf)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := append(sc.Bytes(), '\n')
		if _, err := w.Write(line); err != nil {
			d.buf.Reset()
			return err
		}
	}
	d.buf.Reset()
	return sc.Err()
}
