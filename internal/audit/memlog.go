package audit

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/google/btree"

	"github.com/animus-labs/animus-contracts/internal/domain"
)

// eventKey orders events by contract then sequence.
type eventKey struct {
	contractID string
	sequence   int64
	event      domain.AuditEvent
}

var _ btree.Item = eventKey{}

func (k eventKey) Less(item btree.Item) bool {
	o := item.(eventKey)
	if k.contractID != o.contractID {
		return k.contractID < o.contractID
	}
	return k.sequence < o.sequence
}

// MemoryLog is an in-process event log indexed by (contract, sequence).
type MemoryLog struct {
	mu sync.RWMutex
	bt *btree.BTree
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{bt: btree.New(8)}
}

func (l *MemoryLog) LastEvent(_ context.Context, contractID string) (domain.AuditEvent, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var (
		out   domain.AuditEvent
		found bool
	)
	l.bt.DescendLessOrEqual(eventKey{contractID: contractID, sequence: math.MaxInt64}, func(item btree.Item) bool {
		k := item.(eventKey)
		if k.contractID == contractID {
			out = cloneEvent(k.event)
			found = true
		}
		return false
	})
	return out, found, nil
}

func (l *MemoryLog) InsertEvent(_ context.Context, event domain.AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := eventKey{contractID: event.ContractID, sequence: event.Sequence}
	if l.bt.Has(key) {
		return fmt.Errorf("audit event %s/%d already exists", event.ContractID, event.Sequence)
	}
	key.event = cloneEvent(event)
	l.bt.ReplaceOrInsert(key)
	return nil
}

func (l *MemoryLog) ListEvents(_ context.Context, contractID string, fromSeq, toSeq int64) ([]domain.AuditEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if fromSeq < 1 {
		fromSeq = 1
	}
	upper := int64(math.MaxInt64)
	if toSeq > 0 {
		upper = toSeq + 1
	}
	out := make([]domain.AuditEvent, 0)
	l.bt.AscendRange(
		eventKey{contractID: contractID, sequence: fromSeq},
		eventKey{contractID: contractID, sequence: upper},
		func(item btree.Item) bool {
			out = append(out, cloneEvent(item.(eventKey).event))
			return true
		},
	)
	return out, nil
}

// Len reports the number of stored events across all contracts.
func (l *MemoryLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.bt.Len()
}

func cloneEvent(ev domain.AuditEvent) domain.AuditEvent {
	ev.Details = ev.Details.Clone()
	return ev
}
