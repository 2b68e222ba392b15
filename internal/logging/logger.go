package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// ActivationLog is a single invocation's outcome record, emitted once an
// activation reaches a terminal state (spec §4.5 Activation Manager).
type ActivationLog struct {
	Timestamp  time.Time `json:"timestamp"`
	ActivationID string  `json:"activation_id"`
	TraceID    string    `json:"trace_id,omitempty"`
	SpanID     string    `json:"span_id,omitempty"`
	Namespace  string    `json:"namespace,omitempty"`
	Action     string    `json:"action"` // FQN
	ActionName string    `json:"action_name"`
	Runtime    string    `json:"runtime,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	ColdStart  bool      `json:"cold_start"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	InputSize  int       `json:"input_size,omitempty"`
	OutputSize int       `json:"output_size,omitempty"`
}

// Logger writes ActivationLog entries to console and/or a JSON-lines file.
type Logger struct {
	mu      sync.Mutex
	enabled bool
	file    *os.File
	console bool
}

var defaultLogger = &Logger{enabled: true, console: true}

// Default returns the process-wide activation logger.
func Default() *Logger {
	return defaultLogger
}

// SetOutput directs file output to path, closing any previously open file.
func (l *Logger) SetOutput(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		l.file.Close()
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	l.file = f
	return nil
}

// SetConsole enables or disables the human-readable console line.
func (l *Logger) SetConsole(enabled bool) {
	l.mu.Lock()
	l.console = enabled
	l.mu.Unlock()
}

// Log writes entry to every configured sink.
func (l *Logger) Log(entry *ActivationLog) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return
	}

	entry.Timestamp = time.Now()

	if l.console {
		status := "ok"
		if !entry.Success {
			status = "failed"
		}
		cold := ""
		if entry.ColdStart {
			cold = " [cold]"
		}
		fmt.Printf("[activation] %s %s %s %dms%s\n",
			status, entry.ActivationID, entry.Action, entry.DurationMs, cold)
		if entry.Error != "" {
			fmt.Printf("[activation]   error: %s\n", entry.Error)
		}
	}

	if l.file != nil {
		data, _ := json.Marshal(entry)
		l.file.Write(append(data, '\n'))
	}
}

// Close releases the file sink, if any.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}
