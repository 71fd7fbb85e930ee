// Copyright 2025 ArchForge
// SPDX-License-Identifier: Apache-2.0

// Package logger provides structured JSON logging for ArchForge components.
// Entries are written to stderr as single-line JSON so the human-readable
// pipeline progress on stdout stays clean.
package logger

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"time"
)

// LogLevel represents the severity of a log entry
type LogLevel string

const (
	DEBUG LogLevel = "DEBUG"
	INFO  LogLevel = "INFO"
	WARN  LogLevel = "WARN"
	ERROR LogLevel = "ERROR"
)

// Logger provides structured logging scoped to a component and run.
type Logger struct {
	Component string
	RunID     string
	out       io.Writer
}

// LogEntry represents a structured log entry
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     LogLevel               `json:"level"`
	Component string                 `json:"component"`
	RunID     string                 `json:"run_id,omitempty"`
	Phase     string                 `json:"phase,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// New creates a new Logger for the specified component
func New(component string) *Logger {
	return &Logger{Component: component, out: os.Stderr}
}

// WithRun returns a copy of the logger bound to a run identifier.
func (l *Logger) WithRun(runID string) *Logger {
	return &Logger{Component: l.Component, RunID: runID, out: l.out}
}

// SetOutput redirects log output; used by tests.
func (l *Logger) SetOutput(w io.Writer) {
	l.out = w
}

// Log creates a structured log entry and writes it out
func (l *Logger) Log(level LogLevel, phase, message string, fields map[string]interface{}) {
	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Component: l.Component,
		RunID:     l.RunID,
		Phase:     phase,
		Message:   message,
		Fields:    fields,
	}

	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		// Fallback to plain text if JSON marshaling fails
		log.Printf("ERROR: failed to marshal log entry: %v", err)
		return
	}

	jsonBytes = append(jsonBytes, '\n')
	_, _ = l.out.Write(jsonBytes)
}

// Info logs an informational message
func (l *Logger) Info(phase, message string, fields map[string]interface{}) {
	l.Log(INFO, phase, message, fields)
}

// Error logs an error message
func (l *Logger) Error(phase, message string, fields map[string]interface{}) {
	l.Log(ERROR, phase, message, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(phase, message string, fields map[string]interface{}) {
	l.Log(WARN, phase, message, fields)
}

// Debug logs a debug message
func (l *Logger) Debug(phase, message string, fields map[string]interface{}) {
	l.Log(DEBUG, phase, message, fields)
}

// InfoWithDuration logs an info message with a duration field
func (l *Logger) InfoWithDuration(phase, message string, durationMS float64, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["duration_ms"] = durationMS
	l.Info(phase, message, fields)
}

// ErrorWithErr logs an error message with the error string attached
func (l *Logger) ErrorWithErr(phase, message string, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Error(phase, message, fields)
}
