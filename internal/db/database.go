package db

import (
	"os"
	"path/filepath"
	"time"

	"github.com/goatnetwork/goat-escrow/internal/config"
	"github.com/goatnetwork/goat-escrow/internal/db/migrations"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type DatabaseManager struct {
	escrowDb  *gorm.DB
	monitorDb *gorm.DB
}

func NewDatabaseManager() *DatabaseManager {
	dm := &DatabaseManager{}
	dm.initDB()
	return dm
}

func (dm *DatabaseManager) initDB() {
	dbDir := config.AppConfig.DbDir
	if err := os.MkdirAll(dbDir, os.ModePerm); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	// ledger, registry, limiter state and token balances share one file so a
	// single transaction covers every write of an operation
	escrowPath := filepath.Join(dbDir, "escrow.db")
	escrowDb, err := gorm.Open(sqlite.Open(escrowPath), &gorm.Config{
		Logger: newGormLogger(),
	})
	if err != nil {
		log.Fatalf("Failed to connect to escrow database: %v", err)
	}
	dm.escrowDb = escrowDb
	log.Debugf("Escrow database connected successfully, path: %s", escrowPath)

	monitorPath := filepath.Join(dbDir, "monitor.db")
	monitorDb, err := gorm.Open(sqlite.Open(monitorPath), &gorm.Config{
		Logger: newGormLogger(),
	})
	if err != nil {
		log.Fatalf("Failed to connect to monitor database: %v", err)
	}
	dm.monitorDb = monitorDb
	log.Debugf("Monitor database connected successfully, path: %s", monitorPath)

	dm.autoMigrate()
	dm.runMigrations()
	log.Debugf("Database migration completed successfully")
}

// newGormLogger logs slow queries and errors at Warn; missing rows are an
// expected outcome of lookups and are not reported.
func newGormLogger() gormlogger.Interface {
	return gormlogger.New(log.StandardLogger(), gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

func (dm *DatabaseManager) GetEscrowDB() *gorm.DB {
	return dm.escrowDb
}

func (dm *DatabaseManager) GetMonitorDB() *gorm.DB {
	return dm.monitorDb
}

func (dm *DatabaseManager) runMigrations() {
	if _, err := migrations.NewManager(dm.escrowDb).Run(migrations.EscrowMigrations); err != nil {
		log.Fatalf("Failed to run escrow migrations: %v", err)
	}
}

// Close releases the underlying sql connections.
func (dm *DatabaseManager) Close() {
	for _, g := range []*gorm.DB{dm.escrowDb, dm.monitorDb} {
		if g == nil {
			continue
		}
		if sqlDB, err := g.DB(); err == nil {
			sqlDB.Close()
		}
	}
}
