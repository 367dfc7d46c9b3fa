// Package logging provides the small Logger abstraction used throughout the plugin, along
// with a capturing implementation for tests and a console implementation for the demo server.
package logging

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"
)

const timestampFormat = "2006-01-02 15:04:05.000"

type Logger interface {
	Printf(message string, args ...interface{})
}

type nullLogger struct{}

func (n nullLogger) Printf(message string, args ...interface{}) {}

func NullLogger() Logger { return nullLogger{} }

type CapturedMessage struct {
	Time    time.Time
	Message string
}

type CapturedOutput []CapturedMessage

// CapturingLogger retains every message so that tests can inspect what was logged.
type CapturingLogger struct {
	output []CapturedMessage
	lock   sync.Mutex
}

func (l *CapturingLogger) Printf(message string, args ...interface{}) {
	l.lock.Lock()
	l.output = append(l.output, CapturedMessage{Time: time.Now(), Message: fmt.Sprintf(message, args...)})
	l.lock.Unlock()
}

func (l *CapturingLogger) Output() CapturedOutput {
	l.lock.Lock()
	ret := append([]CapturedMessage(nil), l.output...)
	l.lock.Unlock()
	return ret
}

// Messages returns just the message text of everything logged so far.
func (output CapturedOutput) Messages() []string {
	ret := make([]string, 0, len(output))
	for _, m := range output {
		ret = append(ret, m.Message)
	}
	return ret
}

func (output CapturedOutput) Dump(dest io.Writer, prefix string) {
	for _, m := range output {
		fmt.Fprintf(dest, "%s[%s] %s\n",
			prefix,
			m.Time.Format(timestampFormat),
			m.Message,
		)
	}
}

// ConsoleLogger writes each message immediately as a timestamped line. The prefix is
// highlighted when the destination is a color-capable terminal.
type ConsoleLogger struct {
	dest   io.Writer
	prefix string
	lock   sync.Mutex
}

func NewConsoleLogger(dest io.Writer, prefix string) *ConsoleLogger {
	return &ConsoleLogger{dest: dest, prefix: color.CyanString(prefix)}
}

func (l *ConsoleLogger) Printf(message string, args ...interface{}) {
	l.lock.Lock()
	fmt.Fprintf(l.dest, "%s[%s] %s\n", l.prefix, time.Now().Format(timestampFormat), fmt.Sprintf(message, args...))
	l.lock.Unlock()
}
