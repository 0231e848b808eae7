package state

import (
	"errors"
	"sync"

	"github.com/goatnetwork/goat-escrow/internal/db"
	"github.com/goatnetwork/goat-escrow/internal/metrics"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type StateLoader interface {
	GetInstance() (db.InstanceState, bool)
	IsPaused() bool
}

// State holds the event bus and the last committed snapshot of the
// contract-wide configuration. The escrow engine is the only writer.
type State struct {
	EventBus *EventBus

	dbm *db.DatabaseManager

	instanceMu  sync.RWMutex
	instance    db.InstanceState
	initialized bool
}

var _ StateLoader = (*State)(nil)

// InitializeState initializes the state by reading from the DB
func InitializeState(dbm *db.DatabaseManager) *State {
	s := &State{
		EventBus: NewEventBus(),
		dbm:      dbm,
	}

	var inst db.InstanceState
	err := dbm.GetEscrowDB().First(&inst, db.INSTANCE_ID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		log.Info("Escrow instance not initialized yet")
	case err != nil:
		log.Fatalf("Failed to load instance state: %v", err)
	default:
		s.instance = inst
		s.initialized = true
		log.Infof("Loaded escrow instance, admin %s, token %s, paused %v", inst.Admin, inst.Token, inst.Paused)
	}
	s.updatePausedGauge()
	return s
}

func (s *State) GetInstance() (db.InstanceState, bool) {
	s.instanceMu.RLock()
	defer s.instanceMu.RUnlock()
	return s.instance, s.initialized
}

func (s *State) IsPaused() bool {
	s.instanceMu.RLock()
	defer s.instanceMu.RUnlock()
	return s.initialized && s.instance.Paused
}

// CommitInstance replaces the snapshot after a transaction commits.
func (s *State) CommitInstance(inst db.InstanceState) {
	s.instanceMu.Lock()
	s.instance = inst
	s.initialized = true
	s.instanceMu.Unlock()
	s.updatePausedGauge()
}

// PublishEvents fans committed events out on the bus in order.
func (s *State) PublishEvents(events []Event) {
	for _, ev := range events {
		s.EventBus.Publish(ev.Type, ev)
		metrics.EventsPublished.WithLabelValues(ev.Name, "bus").Inc()
	}
}

func (s *State) updatePausedGauge() {
	if s.IsPaused() {
		metrics.Paused.Set(1)
	} else {
		metrics.Paused.Set(0)
	}
}
