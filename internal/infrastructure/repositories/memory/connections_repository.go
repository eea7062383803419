package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"peerlink/internal/core/domain"
	"peerlink/internal/core/ports"
)

type MemoryConnectionsRepository struct {
	records map[domain.PeerID]*domain.PeerRecord
	mu      sync.RWMutex
}

func NewMemoryConnectionsRepository() ports.ConnectionsRepository {
	return &MemoryConnectionsRepository{
		records: make(map[domain.PeerID]*domain.PeerRecord),
	}
}

func (r *MemoryConnectionsRepository) Add(ctx context.Context, record *domain.PeerRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[record.ID]; exists {
		return fmt.Errorf("peer record already exists: %s", record.ID)
	}

	clone := *record
	r.records[record.ID] = &clone
	return nil
}

func (r *MemoryConnectionsRepository) Get(ctx context.Context, id domain.PeerID) (*domain.PeerRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, exists := r.records[id]
	if !exists {
		return nil, domain.ErrPeerNotFound
	}

	clone := *record
	return &clone, nil
}

func (r *MemoryConnectionsRepository) UpdateStates(
	ctx context.Context,
	id domain.PeerID,
	conn domain.PeerConnectionState,
	ice domain.IceConnectionState,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, exists := r.records[id]
	if !exists {
		return domain.ErrPeerNotFound
	}

	if conn != "" {
		record.ConnectionState = conn
	}
	if ice != "" {
		record.IceState = ice
	}
	record.LastSeen = time.Now()
	return nil
}

func (r *MemoryConnectionsRepository) Remove(ctx context.Context, id domain.PeerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[id]; !exists {
		return domain.ErrPeerNotFound
	}

	delete(r.records, id)
	return nil
}

func (r *MemoryConnectionsRepository) List(ctx context.Context) ([]*domain.PeerRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]*domain.PeerRecord, 0, len(r.records))
	for _, record := range r.records {
		clone := *record
		records = append(records, &clone)
	}
	return records, nil
}
