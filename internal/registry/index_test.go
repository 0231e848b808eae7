package registry

import (
	"context"
	"testing"

	"github.com/goatnetwork/goat-escrow/internal/config"
	"github.com/goatnetwork/goat-escrow/internal/db"
	"github.com/goatnetwork/goat-escrow/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	bob   = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"
)

func ptr[T any](v T) *T { return &v }

func TestIndexCandidates(t *testing.T) {
	ix := NewIndex()
	ix.Add(30, alice, types.StatusLocked)
	ix.Add(10, bob, types.StatusLocked)
	ix.Add(20, alice, types.StatusLocked)
	ix.Add(20, bob, types.StatusLocked) // duplicate ignored

	assert.Equal(t, 3, ix.Len())
	assert.Equal(t, []uint64{30, 10, 20}, ix.Candidates(nil, nil))
	assert.Equal(t, []uint64{30, 20}, ix.Candidates(nil, ptr(alice)))

	ix.SetStatus(30, types.StatusReleased)
	assert.Equal(t, []uint64{10, 20}, ix.Candidates(ptr(types.StatusLocked), nil))
	assert.Equal(t, []uint64{20}, ix.Candidates(ptr(types.StatusLocked), ptr(alice)))
	assert.Equal(t, []uint64{30}, ix.Candidates(ptr(types.StatusReleased), ptr(alice)))
	assert.Empty(t, ix.Candidates(ptr(types.StatusRefunded), nil))
	assert.Empty(t, ix.Candidates(nil, ptr("0x0000000000000000000000000000000000000001")))

	counts := ix.CountByStatus()
	assert.Equal(t, int64(2), counts[types.StatusLocked])
	assert.Equal(t, int64(1), counts[types.StatusReleased])
	assert.Equal(t, int64(0), counts[types.StatusRefunded])
}

func TestIndexRebuild(t *testing.T) {
	t.Setenv("DB_DIR", t.TempDir())
	config.InitConfig()
	dbm := db.NewDatabaseManager()
	defer dbm.Close()
	conn := dbm.GetEscrowDB()

	for i, id := range []uint64{5, 3, 9} {
		status := string(types.StatusLocked)
		if i == 1 {
			status = string(types.StatusRefunded)
		}
		require.NoError(t, conn.Create(&db.Escrow{BountyID: id, Depositor: alice, Amount: 1, Status: status}).Error)
		require.NoError(t, conn.Create(&db.RegistryEntry{BountyID: id}).Error)
	}

	ix := NewIndex()
	require.NoError(t, ix.Rebuild(context.Background(), conn))
	assert.Equal(t, []uint64{5, 3, 9}, ix.Candidates(nil, nil))
	assert.Equal(t, []uint64{5, 9}, ix.Candidates(ptr(types.StatusLocked), ptr(alice)))

	var entries []db.RegistryEntry
	require.NoError(t, conn.Order("seq asc").Find(&entries).Error)
	require.Len(t, entries, 3)
	assert.Equal(t, uint64(5), entries[0].BountyID)
}
