// Package alert handles sending notifications about failed orders and loop errors.
package alert

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("notifier is closed")

// Notifier is the interface for sending alert messages.
type Notifier interface {
	Send(message string) error
	Close() error
}

// NoOpNotifier is a notifier that does nothing. It is used when alerting is disabled.
type NoOpNotifier struct{}

// NewNoOpNotifier creates a new NoOpNotifier.
func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

// Send does nothing and returns nil.
func (n *NoOpNotifier) Send(message string) error { return nil }

// Close does nothing and returns nil.
func (n *NoOpNotifier) Close() error { return nil }

// LogNotifier buffers messages and emits them as one combined warning per interval.
type LogNotifier struct {
	logger         *zap.Logger
	bufferInterval time.Duration

	mu     sync.Mutex
	buffer []string
	closed bool

	done chan struct{}
	wg   sync.WaitGroup
}

// NewLogNotifier starts the flush loop. A non-positive interval means one minute.
func NewLogNotifier(logger *zap.Logger, bufferInterval time.Duration) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bufferInterval <= 0 {
		bufferInterval = time.Minute
	}
	n := &LogNotifier{
		logger:         logger,
		bufferInterval: bufferInterval,
		done:           make(chan struct{}),
	}
	n.wg.Add(1)
	go n.run()
	return n
}

// Send queues a message for the next flush.
func (n *LogNotifier) Send(message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrClosed
	}
	n.buffer = append(n.buffer, fmt.Sprintf("[%s] %s", time.Now().UTC().Format(time.RFC3339), message))
	return nil
}

// Close flushes anything still buffered and stops the loop.
func (n *LogNotifier) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.mu.Unlock()

	close(n.done)
	n.wg.Wait()
	return nil
}

func (n *LogNotifier) run() {
	defer n.wg.Done()
	ticker := time.NewTicker(n.bufferInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n.flush()
		case <-n.done:
			n.flush()
			return
		}
	}
}

func (n *LogNotifier) flush() {
	n.mu.Lock()
	msgs := n.buffer
	n.buffer = nil
	n.mu.Unlock()
	if len(msgs) == 0 {
		return
	}
	report := fmt.Sprintf("--- Error Report (%d) ---\n%s", len(msgs), strings.Join(msgs, "\n"))
	n.logger.Warn(report, zap.Int("count", len(msgs)))
}
