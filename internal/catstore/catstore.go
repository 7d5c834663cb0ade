// Package catstore keeps the per-position category annotations. The
// canonical copy lives in Redis so every browser tab and device sees
// the same assignments; a change is published so other subscribers can
// refresh without polling.
package catstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Categories a position can be tagged with. Absence of an entry means
// the position is unassigned; there is no explicit "none" value.
var Categories = []string{
	"ok",
	"reklamation",
	"qualitaetsmangel",
	"transportschaden",
	"sonstiges",
}

// CategoryLabels maps each category value to its display label.
var CategoryLabels = map[string]string{
	"ok":               "OK",
	"reklamation":      "Reklamation",
	"qualitaetsmangel": "Qualitätsmangel",
	"transportschaden": "Transportschaden",
	"sonstiges":        "Sonstiges",
}

func ValidCategory(category string) bool {
	for _, c := range Categories {
		if c == category {
			return true
		}
	}
	return false
}

const changeChannel = "position-categories:changed"

// ChangeEvent is published after every successful write.
type ChangeEvent struct {
	PositionCode string `json:"positionCode"`
	Category     string `json:"category"`
}

// Store reads and writes position→category assignments. When Redis is
// unreachable the store degrades to a process-local map: reads and
// writes keep working for this instance, they just stop being shared.
type Store struct {
	client *redis.Client
	prefix string

	mu       sync.RWMutex
	fallback map[string]string
	degraded bool

	onChange func(ChangeEvent)
}

func New(redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	store := NewWithClient(client)
	if err := client.Ping(ctx).Err(); err != nil {
		store.markDegraded()
	}
	return store, nil
}

// NewWithClient wraps an existing Redis client, which the tests use.
func NewWithClient(client *redis.Client) *Store {
	return &Store{
		client:   client,
		prefix:   "poscat:",
		fallback: make(map[string]string),
	}
}

// OnChange registers a callback invoked after every local write and for
// every change event received via Subscribe. Must be called before
// Subscribe.
func (s *Store) OnChange(fn func(ChangeEvent)) {
	s.onChange = fn
}

func (s *Store) key(positionCode string) string {
	return s.prefix + positionCode
}

// Get returns the category assigned to a position, or "" when the
// position has none.
func (s *Store) Get(ctx context.Context, positionCode string) (string, error) {
	if s.isDegraded() {
		return s.fallbackGet(positionCode), nil
	}

	value, err := s.client.Get(ctx, s.key(positionCode)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		s.markDegraded()
		return s.fallbackGet(positionCode), nil
	}
	return value, nil
}

// All returns every assignment as position code → category.
func (s *Store) All(ctx context.Context) (map[string]string, error) {
	if s.isDegraded() {
		return s.fallbackAll(), nil
	}

	assignments := make(map[string]string)
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	keys := make([]string, 0)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		s.markDegraded()
		return s.fallbackAll(), nil
	}
	if len(keys) == 0 {
		return assignments, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		s.markDegraded()
		return s.fallbackAll(), nil
	}
	for i, raw := range values {
		value, ok := raw.(string)
		if !ok {
			continue
		}
		assignments[keys[i][len(s.prefix):]] = value
	}
	return assignments, nil
}

// Set assigns a category to a position. An empty category removes the
// assignment. Unknown category names are rejected; the caller maps the
// error to a 400.
func (s *Store) Set(ctx context.Context, positionCode, category string) error {
	if category != "" && !ValidCategory(category) {
		return fmt.Errorf("unbekannte Kategorie: %q", category)
	}

	if !s.isDegraded() {
		err := s.write(ctx, positionCode, category)
		if err != nil {
			s.markDegraded()
		}
	}
	if s.isDegraded() {
		s.fallbackSet(positionCode, category)
	}

	s.notify(ChangeEvent{PositionCode: positionCode, Category: category})
	return nil
}

func (s *Store) write(ctx context.Context, positionCode, category string) error {
	if category == "" {
		if err := s.client.Del(ctx, s.key(positionCode)).Err(); err != nil {
			return fmt.Errorf("delete category: %w", err)
		}
	} else {
		if err := s.client.Set(ctx, s.key(positionCode), category, 0).Err(); err != nil {
			return fmt.Errorf("set category: %w", err)
		}
	}
	payload, err := marshalEvent(ChangeEvent{PositionCode: positionCode, Category: category})
	if err != nil {
		return err
	}
	// Publish failures are not fatal: the write landed, other
	// subscribers just fall back to their next full load.
	_ = s.client.Publish(ctx, changeChannel, payload).Err()
	return nil
}

// Subscribe listens for change events from other instances until ctx is
// cancelled. Every received event is mirrored into the local fallback
// map, so assignments written by peers survive a later Redis outage.
// Events from this instance are delivered too; the callback must
// tolerate duplicates.
func (s *Store) Subscribe(ctx context.Context) error {
	if s.isDegraded() {
		<-ctx.Done()
		return ctx.Err()
	}

	sub := s.client.Subscribe(ctx, changeChannel)
	defer sub.Close()

	channel := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case message, ok := <-channel:
			if !ok {
				return nil
			}
			event, err := unmarshalEvent(message.Payload)
			if err != nil {
				continue
			}
			s.fallbackSet(event.PositionCode, event.Category)
			s.notify(event)
		}
	}
}

// Degraded reports whether the store has fallen back to its local map.
func (s *Store) Degraded() bool {
	return s.isDegraded()
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) notify(event ChangeEvent) {
	if s.onChange != nil {
		s.onChange(event)
	}
}

func (s *Store) isDegraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded
}

func (s *Store) markDegraded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.degraded = true
}

func (s *Store) fallbackGet(positionCode string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fallback[positionCode]
}

func (s *Store) fallbackAll() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	assignments := make(map[string]string, len(s.fallback))
	for code, category := range s.fallback {
		assignments[code] = category
	}
	return assignments
}

func (s *Store) fallbackSet(positionCode, category string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if category == "" {
		delete(s.fallback, positionCode)
		return
	}
	s.fallback[positionCode] = category
}
