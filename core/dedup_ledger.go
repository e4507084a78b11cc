package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const defaultDedupLedgerTTL = time.Hour
const defaultDedupLedgerMaxEntries = 8192

// MemoryDedupLedger keeps seen delivery keys until their TTL lapses. Claim
// is first-writer-wins under one mutex; capacity pressure evicts the entries
// closest to expiry.
type MemoryDedupLedger struct {
	mu         sync.Mutex
	defaultTTL time.Duration
	maxEntries int
	entries    map[string]time.Time
	Now        func() time.Time
}

func NewMemoryDedupLedger(defaultTTL time.Duration) *MemoryDedupLedger {
	return NewMemoryDedupLedgerWithLimits(defaultTTL, defaultDedupLedgerMaxEntries)
}

func NewMemoryDedupLedgerWithLimits(defaultTTL time.Duration, maxEntries int) *MemoryDedupLedger {
	if defaultTTL <= 0 {
		defaultTTL = defaultDedupLedgerTTL
	}
	if maxEntries <= 0 {
		maxEntries = defaultDedupLedgerMaxEntries
	}
	return &MemoryDedupLedger{
		defaultTTL: defaultTTL,
		maxEntries: maxEntries,
		entries:    map[string]time.Time{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (l *MemoryDedupLedger) Claim(_ context.Context, record DedupRecord) (ClaimOutcome, error) {
	if l == nil {
		return "", fmt.Errorf("core: dedup ledger is not configured")
	}
	key := record.Key()
	if strings.TrimSpace(record.DeliveryID) == "" {
		return "", fmt.Errorf("core: dedup delivery id is required")
	}
	now := l.now()
	expiresAt := record.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = now.Add(l.defaultTTL)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneExpiredLocked(now)
	if existing, ok := l.entries[key]; ok {
		if now.Before(existing) {
			return ClaimOutcomeDuplicate, nil
		}
		delete(l.entries, key)
	}
	l.enforceCapacityLocked(1)
	l.entries[key] = expiresAt
	return ClaimOutcomeAccepted, nil
}

// Release drops the claim for a failed delivery so the sender's retry gets a
// fresh claim instead of a duplicate acknowledgment.
func (l *MemoryDedupLedger) Release(_ context.Context, key string) error {
	if l == nil {
		return fmt.Errorf("core: dedup ledger is not configured")
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("core: dedup key is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
	return nil
}

func (l *MemoryDedupLedger) Sweep(_ context.Context, now time.Time) (int, error) {
	if l == nil {
		return 0, fmt.Errorf("core: dedup ledger is not configured")
	}
	if now.IsZero() {
		now = l.now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	pruned := 0
	for key, expiresAt := range l.entries {
		if !now.Before(expiresAt) {
			delete(l.entries, key)
			pruned++
		}
	}
	return pruned, nil
}

func (l *MemoryDedupLedger) now() time.Time {
	if l != nil && l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func (l *MemoryDedupLedger) pruneExpiredLocked(now time.Time) {
	for key, expiresAt := range l.entries {
		if !now.Before(expiresAt) {
			delete(l.entries, key)
		}
	}
}

func (l *MemoryDedupLedger) enforceCapacityLocked(incoming int) {
	if l.maxEntries <= 0 {
		return
	}
	target := l.maxEntries - incoming
	if target < 0 {
		target = 0
	}
	for len(l.entries) > target {
		l.evictOldestLocked()
	}
}

func (l *MemoryDedupLedger) evictOldestLocked() {
	var oldestKey string
	var oldestExpiry time.Time
	for key, expiry := range l.entries {
		if oldestKey == "" || expiry.Before(oldestExpiry) {
			oldestKey = key
			oldestExpiry = expiry
		}
	}
	if oldestKey != "" {
		delete(l.entries, oldestKey)
	}
}

var _ DedupLedger = (*MemoryDedupLedger)(nil)
