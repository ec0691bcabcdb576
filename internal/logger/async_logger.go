// Copyright 2026 The jcxfs Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// AsyncLogger decouples log writes from the (possibly slow, disk-bound)
// underlying writer by funneling them through a buffered channel drained by
// one background goroutine. Log calls on the hot path — every directory
// lookup, every page write — must never block on file I/O, so jcxfs wraps its
// lumberjack.Logger in one of these rather than writing to it directly.
type AsyncLogger struct {
	w       io.Writer
	msgs    chan []byte
	done    chan struct{}
	wg      sync.WaitGroup
	closeMu sync.Mutex
	closed  bool
}

// NewAsyncLogger starts a background writer goroutine draining into w. bufSize
// bounds the number of pending log lines; once full, further writes are
// dropped (with a warning to stderr) rather than blocking the caller.
func NewAsyncLogger(w io.Writer, bufSize int) *AsyncLogger {
	al := &AsyncLogger{
		w:    w,
		msgs: make(chan []byte, bufSize),
		done: make(chan struct{}),
	}
	al.wg.Add(1)
	go al.run()
	return al
}

func (al *AsyncLogger) run() {
	defer al.wg.Done()
	for msg := range al.msgs {
		_, _ = al.w.Write(msg)
	}
	close(al.done)
}

// Write implements io.Writer. p is copied before being queued since the
// caller may reuse its buffer.
func (al *AsyncLogger) Write(p []byte) (int, error) {
	cp := make([]byte, len(p))
	copy(cp, p)

	al.closeMu.Lock()
	closed := al.closed
	al.closeMu.Unlock()
	if closed {
		return 0, fmt.Errorf("asynclogger: closed")
	}

	select {
	case al.msgs <- cp:
	default:
		fmt.Fprintln(os.Stderr, "asynclogger: log buffer is full, dropping message.")
	}
	return len(p), nil
}

// Close stops accepting new writes, drains whatever is already queued, and
// closes the underlying writer if it implements io.Closer.
func (al *AsyncLogger) Close() error {
	al.closeMu.Lock()
	if al.closed {
		al.closeMu.Unlock()
		return nil
	}
	al.closed = true
	al.closeMu.Unlock()

	close(al.msgs)
	al.wg.Wait()

	if c, ok := al.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
