package asr

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
	"time"
)

// LineRecognizer treats each non-empty input line as a final utterance.
// It stands in for the microphone when typing to the assistant.
type LineRecognizer struct {
	lines chan string
	once  sync.Once
	src   io.Reader
	done  chan struct{}
}

func NewLineRecognizer(r io.Reader) *LineRecognizer {
	return &LineRecognizer{lines: make(chan string), src: r, done: make(chan struct{})}
}

// EOF is closed when the input is exhausted.
func (l *LineRecognizer) EOF() <-chan struct{} { return l.done }

// RequestAccess always succeeds.
func (l *LineRecognizer) RequestAccess(context.Context) error {
	l.start()
	return nil
}

func (l *LineRecognizer) start() {
	l.once.Do(func() {
		go func() {
			defer close(l.done)
			sc := bufio.NewScanner(l.src)
			for sc.Scan() {
				l.lines <- sc.Text()
			}
		}()
	})
}

// Listen forwards lines read while it is active. Lines typed while the
// assistant speaks wait for the next Listen.
func (l *LineRecognizer) Listen(ctx context.Context, out chan<- Segment) error {
	l.start()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			<-ctx.Done()
			return ctx.Err()
		case line := <-l.lines:
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			now := time.Now()
			select {
			case out <- Segment{Text: line, Start: now, End: now, Confidence: 1}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (l *LineRecognizer) Close() error { return nil }
