package migrations

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Migration is the applied-migration ledger row.
type Migration struct {
	ID        uint      `gorm:"primaryKey"`
	Name      string    `gorm:"uniqueIndex;not null"`
	AppliedAt time.Time `gorm:"not null"`
}

// Manager applies named migrations to one database, each exactly once.
type Manager struct {
	db     *gorm.DB
	logger *log.Entry
}

func NewManager(db *gorm.DB) *Manager {
	return &Manager{
		db:     db,
		logger: log.WithFields(log.Fields{"module": "migrations"}),
	}
}

// Applied reports whether name is recorded in the ledger.
func (m *Manager) Applied(name string) (bool, error) {
	var count int64
	if err := m.db.Model(&Migration{}).Where("name = ?", name).Count(&count).Error; err != nil {
		return false, fmt.Errorf("check migration %s: %w", name, err)
	}
	return count > 0, nil
}

// Run creates the ledger table if needed and applies every pending migration
// in order. A migration and its ledger row commit together.
func (m *Manager) Run(list []Named) (int, error) {
	if err := m.db.AutoMigrate(&Migration{}); err != nil {
		return 0, fmt.Errorf("create migration table: %w", err)
	}
	applied := 0
	for _, mig := range list {
		err := m.db.Transaction(func(tx *gorm.DB) error {
			var count int64
			if err := tx.Model(&Migration{}).Where("name = ?", mig.Name).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				m.logger.Debugf("Migration %s already applied, skipping", mig.Name)
				return nil
			}
			if err := mig.Fn(tx); err != nil {
				return err
			}
			applied++
			return tx.Create(&Migration{Name: mig.Name, AppliedAt: time.Now()}).Error
		})
		if err != nil {
			return applied, fmt.Errorf("migration %s: %w", mig.Name, err)
		}
	}
	if applied > 0 {
		m.logger.Infof("Applied %d migrations", applied)
	}
	return applied, nil
}
