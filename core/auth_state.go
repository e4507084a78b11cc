package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"
)

const defaultAuthStateTTL = 15 * time.Minute

type MemoryAuthStateStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]AuthStateRecord
	Now     func() time.Time
}

func NewMemoryAuthStateStore(ttl time.Duration) *MemoryAuthStateStore {
	if ttl <= 0 {
		ttl = defaultAuthStateTTL
	}
	return &MemoryAuthStateStore{
		ttl:     ttl,
		entries: map[string]AuthStateRecord{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *MemoryAuthStateStore) Put(_ context.Context, record AuthStateRecord) error {
	if s == nil {
		return fmt.Errorf("core: auth state store is not configured")
	}
	state := strings.TrimSpace(record.State)
	if state == "" {
		return fmt.Errorf("core: auth state is required")
	}
	if record.ExpiresAt.IsZero() {
		record.ExpiresAt = s.now().Add(s.ttl)
	}

	s.mu.Lock()
	s.entries[state] = cloneAuthStateRecord(record)
	s.mu.Unlock()

	return nil
}

func (s *MemoryAuthStateStore) Consume(_ context.Context, state string) (AuthStateRecord, error) {
	if s == nil {
		return AuthStateRecord{}, fmt.Errorf("core: auth state store is not configured")
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return AuthStateRecord{}, fmt.Errorf("core: auth state is required")
	}

	s.mu.Lock()
	record, ok := s.entries[state]
	if ok {
		delete(s.entries, state)
	}
	s.mu.Unlock()

	if !ok {
		return AuthStateRecord{}, fmt.Errorf("core: auth state not found")
	}
	if !record.ExpiresAt.IsZero() && s.now().After(record.ExpiresAt) {
		return AuthStateRecord{}, fmt.Errorf("core: auth state expired")
	}

	return cloneAuthStateRecord(record), nil
}

func (s *MemoryAuthStateStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func GenerateAuthState() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("core: generate auth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func cloneAuthStateRecord(record AuthStateRecord) AuthStateRecord {
	cloned := record
	if record.Metadata == nil {
		cloned.Metadata = map[string]any{}
	} else {
		cloned.Metadata = copyAnyMap(record.Metadata)
	}
	return cloned
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var _ AuthStateStore = (*MemoryAuthStateStore)(nil)
