// Package memory provides an in-memory implementation of trigger.Store,
// suitable for development, testing, and single-node deployments.
//
// Grounded on the teacher's registry/store/memory.Store: a mutex-guarded map
// keyed by id, same copy-on-read discipline to keep callers from mutating
// stored state through a returned pointer.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goadesign/agentrun/trigger"
)

// Store is an in-memory implementation of trigger.Store. Safe for
// concurrent use.
type Store struct {
	mu         sync.RWMutex
	triggers   map[string]*trigger.Trigger
	byWebhook  map[string]string // webhook_id -> trigger id
	executions map[string][]*trigger.Execution
}

var _ trigger.Store = (*Store)(nil)

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		triggers:   make(map[string]*trigger.Trigger),
		byWebhook:  make(map[string]string),
		executions: make(map[string][]*trigger.Execution),
	}
}

func clone(t *trigger.Trigger) *trigger.Trigger {
	if t == nil {
		return nil
	}
	cp := *t
	if t.Cron != nil {
		c := *t.Cron
		cp.Cron = &c
	}
	if t.Webhook != nil {
		w := *t.Webhook
		w.AllowedMethods = append([]string(nil), t.Webhook.AllowedMethods...)
		cp.Webhook = &w
	}
	return &cp
}

func (s *Store) SaveTrigger(_ context.Context, t *trigger.Trigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.triggers[t.ID]; ok && existing.Webhook != nil {
		delete(s.byWebhook, existing.Webhook.WebhookID)
	}
	s.triggers[t.ID] = clone(t)
	if t.Webhook != nil {
		s.byWebhook[t.Webhook.WebhookID] = t.ID
	}
	return nil
}

func (s *Store) GetTrigger(_ context.Context, id string) (*trigger.Trigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.triggers[id]
	if !ok {
		return nil, trigger.ErrNotFound
	}
	return clone(t), nil
}

func (s *Store) GetTriggerByWebhookID(_ context.Context, webhookID string) (*trigger.Trigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byWebhook[webhookID]
	if !ok {
		return nil, trigger.ErrNotFound
	}
	return clone(s.triggers[id]), nil
}

func (s *Store) DeleteTrigger(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.triggers[id]
	if !ok {
		return trigger.ErrNotFound
	}
	if t.Webhook != nil {
		delete(s.byWebhook, t.Webhook.WebhookID)
	}
	delete(s.triggers, id)
	delete(s.executions, id)
	return nil
}

func (s *Store) ListTriggers(_ context.Context) ([]*trigger.Trigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*trigger.Trigger, 0, len(s.triggers))
	for _, t := range s.triggers {
		out = append(out, clone(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) AppendExecution(_ context.Context, e *trigger.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.executions[e.TriggerID] = append(s.executions[e.TriggerID], &cp)
	return nil
}

func (s *Store) CountExecutionsSince(_ context.Context, triggerID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.executions[triggerID] {
		if !e.ExecutedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *Store) ListExecutions(_ context.Context, triggerID string, limit int) ([]*trigger.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.executions[triggerID]
	out := make([]*trigger.Execution, len(all))
	copy(out, all)
	sort.Slice(out, func(i, j int) bool { return out[i].ExecutedAt.After(out[j].ExecutedAt) })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) DeleteExecutions(_ context.Context, triggerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.executions, triggerID)
	return nil
}
