package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/goatnetwork/goat-escrow/internal/types"
	"github.com/kelindar/bitmap"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Index mirrors the append-only registry in memory and keeps bitmaps of
// registry positions per status and per depositor. Candidate sets come back
// in registry order, so callers still see insertion-order results.
type Index struct {
	mu          sync.RWMutex
	ids         []uint64 // position -> bounty id
	positions   map[uint64]uint32
	statuses    map[uint64]types.EscrowStatus
	byStatus    map[types.EscrowStatus]bitmap.Bitmap
	byDepositor map[string]bitmap.Bitmap
	logger      *log.Entry
}

func NewIndex() *Index {
	return &Index{
		positions:   make(map[uint64]uint32),
		statuses:    make(map[uint64]types.EscrowStatus),
		byStatus:    make(map[types.EscrowStatus]bitmap.Bitmap),
		byDepositor: make(map[string]bitmap.Bitmap),
		logger:      log.WithFields(log.Fields{"module": "registry"}),
	}
}

// Rebuild reloads the index from the registry and escrow tables.
func (ix *Index) Rebuild(ctx context.Context, conn *gorm.DB) error {
	var rows []struct {
		BountyID  uint64
		Depositor string
		Status    string
	}
	err := conn.WithContext(ctx).Table("registry_entries").
		Select("registry_entries.bounty_id, escrows.depositor, escrows.status").
		Joins("JOIN escrows ON escrows.bounty_id = registry_entries.bounty_id").
		Order("registry_entries.seq asc").
		Scan(&rows).Error
	if err != nil {
		return fmt.Errorf("rebuild registry index: %w", err)
	}

	fresh := NewIndex()
	for _, r := range rows {
		fresh.add(r.BountyID, r.Depositor, types.EscrowStatus(r.Status))
	}

	ix.mu.Lock()
	ix.ids, ix.positions, ix.statuses = fresh.ids, fresh.positions, fresh.statuses
	ix.byStatus, ix.byDepositor = fresh.byStatus, fresh.byDepositor
	ix.mu.Unlock()

	ix.logger.Infof("Registry index rebuilt with %d bounties", len(rows))
	return nil
}

// Add appends a newly locked bounty.
func (ix *Index) Add(bountyID uint64, depositor string, status types.EscrowStatus) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.add(bountyID, depositor, status)
}

func (ix *Index) add(bountyID uint64, depositor string, status types.EscrowStatus) {
	if _, ok := ix.positions[bountyID]; ok {
		return
	}
	pos := uint32(len(ix.ids))
	ix.ids = append(ix.ids, bountyID)
	ix.positions[bountyID] = pos
	ix.statuses[bountyID] = status

	sb := ix.byStatus[status]
	sb.Set(pos)
	ix.byStatus[status] = sb

	dep := ix.byDepositor[depositor]
	dep.Set(pos)
	ix.byDepositor[depositor] = dep
}

// SetStatus moves a bounty between status bitmaps.
func (ix *Index) SetStatus(bountyID uint64, status types.EscrowStatus) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	pos, ok := ix.positions[bountyID]
	if !ok {
		return
	}
	prev := ix.statuses[bountyID]
	if prev == status {
		return
	}
	old := ix.byStatus[prev]
	old.Remove(pos)
	ix.byStatus[prev] = old

	next := ix.byStatus[status]
	next.Set(pos)
	ix.byStatus[status] = next
	ix.statuses[bountyID] = status
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.ids)
}

// Candidates returns bounty ids in registry order that may match status and
// depositor. Nil arguments do not narrow the set.
func (ix *Index) Candidates(status *types.EscrowStatus, depositor *string) []uint64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if status == nil && depositor == nil {
		out := make([]uint64, len(ix.ids))
		copy(out, ix.ids)
		return out
	}

	var acc bitmap.Bitmap
	first := true
	narrow := func(b bitmap.Bitmap) {
		if first {
			acc = append(bitmap.Bitmap(nil), b...)
			first = false
			return
		}
		acc.And(b)
	}
	if status != nil {
		narrow(ix.byStatus[*status])
	}
	if depositor != nil {
		narrow(ix.byDepositor[*depositor])
	}

	out := make([]uint64, 0, acc.Count())
	acc.Range(func(pos uint32) {
		out = append(out, ix.ids[pos])
	})
	return out
}

// CountByStatus reports how many bounties sit in each status.
func (ix *Index) CountByStatus() map[types.EscrowStatus]int64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make(map[types.EscrowStatus]int64, len(types.AllStatuses))
	for _, st := range types.AllStatuses {
		out[st] = int64(ix.byStatus[st].Count())
	}
	return out
}
