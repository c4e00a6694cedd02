// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Centralised store of per-channel assessment metrics.

package metric

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrRecordNotFound = errors.New("record not found")

type ID int64

type Store struct {
	mu      sync.RWMutex
	records map[ID]Record
	next    ID
}

func NewStore() *Store {
	return &Store{
		records: make(map[ID]Record),
	}
}

func (s *Store) Insert(r Record) ID {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[s.next] = r
	id := s.next
	s.next++

	return id
}

func (s *Store) Get(id ID) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return r, fmt.Errorf("getting record: %w", ErrRecordNotFound)
	}

	return r, nil
}

func (s *Store) Exists(id ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.records[id]

	return exists
}

// GetIDs returns IDs of all records in insertion order.
func (s *Store) GetIDs() []ID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]ID, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Records returns a snapshot of all records in insertion order.
func (s *Store) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]ID, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	records := make([]Record, len(ids))
	for i, id := range ids {
		records[i] = s.records[id]
	}
	return records
}

func (s *Store) Update(id ID, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[id]; !exists {
		return fmt.Errorf("updating record: %w", ErrRecordNotFound)
	}

	s.records[id] = r
	return nil
}

func (s *Store) Delete(id ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[id]; !exists {
		return fmt.Errorf("deleting record: %w", ErrRecordNotFound)
	}

	delete(s.records, id)
	return nil
}

// Record contains aggregated values of a single metric channel for one input/reference
// pair. Field tags define CSV report columns.
type Record struct {
	Input      string `csv:"input"`
	Reference  string `csv:"reference"`
	ResultFile string `csv:"result_file"`
	Metric     string `csv:"metric"`
	Group      string `csv:"group"`
	Channel    string `csv:"channel"`
	// Number of frames carrying this channel
	Frames int `csv:"frames"`
	// Mean over all assessed frames, as reported in result summary
	Mean  float64 `csv:"mean"`
	Min   float64 `csv:"min"`
	Max   float64 `csv:"max"`
	StDev float64 `csv:"stdev"`
}
