package catalog

import (
	"context"
	"errors"
	"sync"
)

// ErrAssetNotFound is returned by Resolve when no asset matches the ref.
var ErrAssetNotFound = errors.New("catalog: asset not found")

// Catalog resolves asset refs to their current metadata. Implementations
// must reflect the current approval/availability flags; stale reads here
// turn into wrongly granted downloads.
type Catalog interface {
	// Resolve returns the metadata for the exact (work, format, file,
	// revision) tuple, or ErrAssetNotFound.
	Resolve(ctx context.Context, ref AssetRef) (*Asset, error)

	// ListByWork returns the sellable assets of a monograph, newest
	// revision of each file only.
	ListByWork(ctx context.Context, workID string) ([]*Asset, error)
}

// Memory is a map-backed Catalog for embedding and tests.
type Memory struct {
	mu     sync.RWMutex
	assets map[string]*Asset
	byWork map[string][]string
}

var _ Catalog = (*Memory)(nil)

// NewMemory creates an empty in-memory catalog.
func NewMemory() *Memory {
	return &Memory{
		assets: make(map[string]*Asset),
		byWork: make(map[string][]string),
	}
}

// Put adds or replaces an asset.
func (m *Memory) Put(a *Asset) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := a.Ref.String()
	if _, exists := m.assets[key]; !exists {
		workKey := a.Ref.WorkID.String()
		m.byWork[workKey] = append(m.byWork[workKey], key)
	}
	m.assets[key] = a
}

func (m *Memory) Resolve(_ context.Context, ref AssetRef) (*Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if a, ok := m.assets[ref.String()]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, ErrAssetNotFound
}

func (m *Memory) ListByWork(_ context.Context, workID string) ([]*Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := m.byWork[workID]
	result := make([]*Asset, 0, len(keys))
	latest := make(map[string]*Asset)
	for _, k := range keys {
		a := m.assets[k]
		fileKey := a.Ref.FormatID.String() + ":" + a.Ref.FileID.String()
		if prev, ok := latest[fileKey]; !ok || a.Ref.Revision > prev.Ref.Revision {
			latest[fileKey] = a
		}
	}
	for _, k := range keys {
		a := m.assets[k]
		fileKey := a.Ref.FormatID.String() + ":" + a.Ref.FileID.String()
		if latest[fileKey] == a {
			cp := *a
			result = append(result, &cp)
		}
	}
	return result, nil
}
