// Copyright 2025 Google LLC
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

// Package journal records a structured trace of generation attempts for
// later inspection, one YAML document per event.
package journal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"sigs.k8s.io/yaml"
)

// Event is one traced action: a generation or adjustment attempt with its
// request and response payload.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Payload   any       `json:"payload,omitempty"`
}

// Recorder receives trace events.
type Recorder interface {
	io.Closer

	// Write adds an event to the trace.
	Write(ctx context.Context, event *Event) error
}

// FileRecorder appends events to a file as YAML documents.
type FileRecorder struct {
	f *os.File
}

var _ Recorder = (*FileRecorder)(nil)

// NewFileRecorder opens (or creates) the trace file at path for appending.
func NewFileRecorder(path string) (*FileRecorder, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening trace file: %w", err)
	}
	return &FileRecorder{f: file}, nil
}

func (r *FileRecorder) Close() error {
	return r.f.Close()
}

func (r *FileRecorder) Write(ctx context.Context, event *Event) error {
	yamlBytes, err := yaml.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}
	var b bytes.Buffer
	b.Write(yamlBytes)
	b.WriteString("\n---\n\n")
	_, err = r.f.Write(b.Bytes())
	return err
}

// NoopRecorder discards all events.
type NoopRecorder struct{}

var _ Recorder = (*NoopRecorder)(nil)

func (NoopRecorder) Close() error { return nil }

func (NoopRecorder) Write(context.Context, *Event) error { return nil }
