package faulty

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Logger is the minimal structured-logging interface used for operational
// detail (not to be confused with Notifier, which carries the closed
// vocabulary of domain events listeners subscribe to).
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// NoOpLogger discards everything. It is the default when no Logger is
// configured.
type NoOpLogger struct{}

func (NoOpLogger) Debug(string, map[string]interface{}) {}
func (NoOpLogger) Info(string, map[string]interface{})  {}
func (NoOpLogger) Warn(string, map[string]interface{})  {}
func (NoOpLogger) Error(string, map[string]interface{}) {}

// ProductionLogger writes JSON-lines to stdout; the output is not
// configurable.
// Debug entries are suppressed unless Debug is enabled.
type ProductionLogger struct {
	component string
	debug     bool
	output    *os.File
}

// NewProductionLogger creates a JSON-lines Logger. component is attached to
// every log entry so multi-circuit applications can filter by it.
func NewProductionLogger(component string, debug bool) *ProductionLogger {
	return &ProductionLogger{component: component, debug: debug, output: os.Stdout}
}

func (p *ProductionLogger) logEvent(level, msg string, fields map[string]interface{}) {
	entry := map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"level":     level,
		"component": p.component,
		"message":   msg,
	}
	for k, v := range fields {
		entry[k] = v
	}
	if data, err := json.Marshal(entry); err == nil {
		fmt.Fprintln(p.output, string(data))
	}
}

func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields)
	}
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields)
}

func (p *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields)
}

func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields)
}
