package migration

import (
	"context"
	"sync"

	"github.com/vikasavnish/stockmemo/internal/models"
)

// Snapshot is a Local backed by a dataset already in memory, such as one a
// client uploaded from its own offline store
type Snapshot struct {
	mu   sync.Mutex
	data models.Dataset
}

func NewSnapshot(d models.Dataset) *Snapshot {
	d.Fill()
	return &Snapshot{data: d}
}

func (s *Snapshot) Load(context.Context) models.Dataset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

func (s *Snapshot) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = models.EmptyDataset()
	return nil
}
