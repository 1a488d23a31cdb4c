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

// Package history keeps a bounded most-recent-first log of generation
// attempts, successes and failures alike.
package history

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/henshin-ai/henshin/pkg/localstore"
	"github.com/henshin-ai/henshin/pkg/mailgen"
)

// Capacity is the maximum number of retained entries. Recording the
// (Capacity+1)th entry evicts the oldest.
const Capacity = 5

// storeKey is the localstore key holding the entry array.
const storeKey = "emailHistory"

// Entry is one persisted generation attempt. Entries are never mutated after
// creation, only evicted or deleted.
type Entry struct {
	ID        string          `json:"id"`
	Request   mailgen.Request `json:"request"`
	Response  mailgen.Result  `json:"response"`
	Timestamp int64           `json:"timestamp"` // milliseconds since epoch
}

// Store is the sole writer of the history log. It implements
// mailgen.HistoryRecorder.
type Store struct {
	mu sync.Mutex
	kv *localstore.Store
}

var _ mailgen.HistoryRecorder = (*Store)(nil)

// NewStore wraps a localstore-backed history log.
func NewStore(kv *localstore.Store) *Store {
	return &Store{kv: kv}
}

// Record prepends a new entry and truncates the log to Capacity. Storage
// failures are logged, not propagated: losing a history entry never fails
// the generation that produced it.
func (s *Store) Record(req mailgen.Request, res mailgen.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req.Date = mailgen.NormalizeDate(req.Date)

	entries := s.load()
	entries = append([]Entry{{
		ID:        uuid.NewString(),
		Request:   req,
		Response:  res,
		Timestamp: time.Now().UnixMilli(),
	}}, entries...)
	if len(entries) > Capacity {
		entries = entries[:Capacity]
	}

	if err := s.kv.Set(storeKey, entries); err != nil {
		klog.Errorf("persisting history: %v", err)
	}
}

// List returns the retained entries, most recent first.
func (s *Store) List() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Delete removes one entry by id.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.load()
	kept := entries[:0]
	found := false
	for _, e := range entries {
		if e.ID == id {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	if !found {
		return fmt.Errorf("history entry %q not found", id)
	}
	return s.kv.Set(storeKey, kept)
}

func (s *Store) load() []Entry {
	var entries []Entry
	ok, err := s.kv.Get(storeKey, &entries)
	if err != nil {
		klog.Errorf("loading history: %v", err)
		return nil
	}
	if !ok {
		return nil
	}
	return entries
}
