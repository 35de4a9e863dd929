package datastore

import (
	"context"
	"sync"
)

// InMemRepository is an in-memory Store for tests and runs without a database.
type InMemRepository struct {
	mu          sync.RWMutex
	lastPrices  map[string]LastPrices
	perfMetrics *PerformanceMetrics
}

// NewInMemRepository creates a new InMemRepository.
func NewInMemRepository() *InMemRepository {
	return &InMemRepository{lastPrices: make(map[string]LastPrices)}
}

// SeedLastPrices sets the last order prices for pair.
func (r *InMemRepository) SeedLastPrices(pair string, lp LastPrices) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastPrices[pair] = lp
}

// SeedPerformanceMetrics allows adding performance metrics for test setup.
func (r *InMemRepository) SeedPerformanceMetrics(metrics *PerformanceMetrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.perfMetrics = metrics
}

// FetchLastOrderPrices returns the seeded prices, zero when none.
func (r *InMemRepository) FetchLastOrderPrices(ctx context.Context, pair string) (LastPrices, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastPrices[pair], nil
}

// FetchLatestPerformanceMetrics returns the seeded metrics or a zero value.
func (r *InMemRepository) FetchLatestPerformanceMetrics(ctx context.Context) (*PerformanceMetrics, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.perfMetrics == nil {
		return &PerformanceMetrics{}, nil
	}
	m := *r.perfMetrics
	return &m, nil
}
