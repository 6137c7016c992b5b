package service

import (
	"context"
	"sort"
	"sync"

	"github.com/pesio-ai/be-erp-approvals/internal/repository"
)

// EntityCallback applies the outcome of a finished approval to the business
// entity. It runs inside the transaction of the terminal transition, so an
// error rolls the transition back.
type EntityCallback interface {
	OnApproved(ctx context.Context, entityID, approverID string) error
	OnRejected(ctx context.Context, entityID, reason string) error
}

// CallbackRegistry dispatches terminal transitions by entity type.
type CallbackRegistry struct {
	mu        sync.RWMutex
	callbacks map[repository.EntityType]EntityCallback
}

// NewCallbackRegistry creates an empty registry.
func NewCallbackRegistry() *CallbackRegistry {
	return &CallbackRegistry{callbacks: make(map[repository.EntityType]EntityCallback)}
}

// Register binds cb to an entity type, replacing any previous binding.
func (r *CallbackRegistry) Register(entityType repository.EntityType, cb EntityCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks[entityType] = cb
}

// Lookup returns the callback for an entity type.
func (r *CallbackRegistry) Lookup(entityType repository.EntityType) (EntityCallback, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cb, ok := r.callbacks[entityType]
	return cb, ok
}

// EntityTypes lists the registered entity types in sorted order.
func (r *CallbackRegistry) EntityTypes() []repository.EntityType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]repository.EntityType, 0, len(r.callbacks))
	for t := range r.callbacks {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
