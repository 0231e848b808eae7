package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/goatnetwork/goat-escrow/internal/db"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Analytics summarizes tracked operations. ErrorRate is in basis points.
type Analytics struct {
	OperationCount uint64 `json:"operation_count"`
	UniqueUsers    uint64 `json:"unique_users"`
	ErrorCount     uint64 `json:"error_count"`
	ErrorRate      uint32 `json:"error_rate"`
}

type HealthStatus struct {
	IsHealthy       bool   `json:"is_healthy"`
	LastOperation   int64  `json:"last_operation"`
	TotalOperations uint64 `json:"total_operations"`
	ContractVersion string `json:"contract_version"`
}

// Monitor is the operation-tracking collaborator: prometheus for scraping
// plus durable per-operation counters in the monitor database.
type Monitor struct {
	db     *gorm.DB
	logger *log.Entry
}

func NewMonitor(dbm *db.DatabaseManager) *Monitor {
	return &Monitor{
		db:     dbm.GetMonitorDB(),
		logger: log.WithFields(log.Fields{"module": "monitor"}),
	}
}

// Track records one finished operation. Failures here are logged only.
func (m *Monitor) Track(ctx context.Context, operation, caller string, started time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	OperationsTotal.WithLabelValues(operation, status).Inc()
	OperationLatency.WithLabelValues(operation).Observe(time.Since(started).Seconds())

	if m == nil || m.db == nil {
		return
	}
	now := time.Now()
	stat := db.OperationStat{Operation: operation, LastCaller: caller, UpdatedAt: now}
	updates := map[string]interface{}{"last_caller": caller, "updated_at": now}
	if err != nil {
		stat.FailureCount = 1
		stat.LastError = err.Error()
		updates["failure_count"] = gorm.Expr("failure_count + 1")
		updates["last_error"] = err.Error()
	} else {
		stat.SuccessCount = 1
		updates["success_count"] = gorm.Expr("success_count + 1")
	}
	dbErr := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "operation"}},
			DoUpdates: clause.Assignments(updates),
		}).Create(&stat).Error; err != nil {
			return err
		}
		if caller == "" {
			return nil
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&db.OperationCaller{Address: caller, FirstSeen: now}).Error
	})
	if dbErr != nil {
		m.logger.Warnf("Failed to track operation %s: %v", operation, dbErr)
	}
}

func (m *Monitor) Analytics(ctx context.Context) (Analytics, error) {
	var out Analytics
	var row struct {
		Success uint64
		Failure uint64
	}
	if err := m.db.WithContext(ctx).Model(&db.OperationStat{}).
		Select("COALESCE(SUM(success_count), 0) AS success, COALESCE(SUM(failure_count), 0) AS failure").
		Scan(&row).Error; err != nil {
		return out, err
	}
	var users int64
	if err := m.db.WithContext(ctx).Model(&db.OperationCaller{}).Count(&users).Error; err != nil {
		return out, err
	}
	out.OperationCount = row.Success + row.Failure
	out.ErrorCount = row.Failure
	out.UniqueUsers = uint64(users)
	if out.OperationCount > 0 {
		out.ErrorRate = uint32(out.ErrorCount * 10_000 / out.OperationCount)
	}
	return out, nil
}

func (m *Monitor) OperationStats(ctx context.Context, operation string) (db.OperationStat, error) {
	var stat db.OperationStat
	err := m.db.WithContext(ctx).Where("operation = ?", operation).First(&stat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.OperationStat{Operation: operation}, nil
	}
	return stat, err
}

func (m *Monitor) Health(ctx context.Context, version string) HealthStatus {
	h := HealthStatus{IsHealthy: true, ContractVersion: version}
	a, err := m.Analytics(ctx)
	if err != nil {
		m.logger.Warnf("Health check failed to load analytics: %v", err)
		h.IsHealthy = false
		return h
	}
	h.TotalOperations = a.OperationCount
	var last db.OperationStat
	if err := m.db.WithContext(ctx).Order("updated_at desc").First(&last).Error; err == nil {
		h.LastOperation = last.UpdatedAt.Unix()
	}
	return h
}
