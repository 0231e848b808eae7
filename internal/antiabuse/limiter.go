package antiabuse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goatnetwork/goat-escrow/internal/config"
	"github.com/goatnetwork/goat-escrow/internal/db"
	"github.com/goatnetwork/goat-escrow/internal/metrics"
	"github.com/goatnetwork/goat-escrow/internal/types"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultWindowSize     = 3600
	DefaultMaxOperations  = 10
	DefaultCooldownPeriod = 60

	ReasonCooldown = "cooldown"
	ReasonWindow   = "window"
)

type Config struct {
	WindowSize     uint64 `json:"window_size"`     // seconds
	MaxOperations  uint32 `json:"max_operations"`  // per window
	CooldownPeriod uint64 `json:"cooldown_period"` // seconds between operations
}

// Limiter is the per-address sliding window plus cooldown gate. State lives in
// the escrow database and is read and written on the caller's transaction.
type Limiter struct {
	db       *gorm.DB
	defaults Config
	ttl      uint64
	logger   *log.Entry
}

func NewLimiter(dbm *db.DatabaseManager) *Limiter {
	defaults := Config{
		WindowSize:     uint64(config.AppConfig.RateLimitWindow / time.Second),
		MaxOperations:  uint32(config.AppConfig.RateLimitMaxOps),
		CooldownPeriod: uint64(config.AppConfig.RateLimitCooldown / time.Second),
	}
	if defaults.WindowSize == 0 {
		defaults.WindowSize = DefaultWindowSize
	}
	if defaults.MaxOperations == 0 {
		defaults.MaxOperations = DefaultMaxOperations
	}
	ttl := uint64(config.AppConfig.AddressStateTTL / time.Second)
	if ttl < defaults.WindowSize {
		ttl = defaults.WindowSize
	}
	return &Limiter{
		db:       dbm.GetEscrowDB(),
		defaults: defaults,
		ttl:      ttl,
		logger:   log.WithFields(log.Fields{"module": "antiabuse"}),
	}
}

func (l *Limiter) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return l.db
}

func (l *Limiter) GetConfig(tx *gorm.DB) (Config, error) {
	var row db.RateLimitConfig
	err := l.conn(tx).First(&row, db.INSTANCE_ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return l.defaults, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("load rate limit config: %w", err)
	}
	return Config{WindowSize: row.WindowSize, MaxOperations: row.MaxOperations, CooldownPeriod: row.CooldownPeriod}, nil
}

func (l *Limiter) SetConfig(tx *gorm.DB, cfg Config) error {
	if cfg.WindowSize == 0 || cfg.MaxOperations == 0 {
		return types.ErrInvalidAmount
	}
	row := db.RateLimitConfig{
		ID:             db.INSTANCE_ID,
		WindowSize:     cfg.WindowSize,
		MaxOperations:  cfg.MaxOperations,
		CooldownPeriod: cfg.CooldownPeriod,
	}
	return l.conn(tx).Save(&row).Error
}

func (l *Limiter) IsWhitelisted(tx *gorm.DB, address string) (bool, error) {
	var count int64
	if err := l.conn(tx).Model(&db.RateLimitWhitelist{}).Where("address = ?", address).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (l *Limiter) SetWhitelist(tx *gorm.DB, address string, whitelisted bool) error {
	conn := l.conn(tx)
	if whitelisted {
		return conn.Clauses(clause.OnConflict{DoNothing: true}).Create(&db.RateLimitWhitelist{Address: address}).Error
	}
	return conn.Where("address = ?", address).Delete(&db.RateLimitWhitelist{}).Error
}

// GetState returns the live state of address, or nil when none exists or it
// has expired.
func (l *Limiter) GetState(tx *gorm.DB, address string, now uint64) (*db.AddressState, error) {
	var st db.AddressState
	err := l.conn(tx).Where("address = ?", address).First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load address state: %w", err)
	}
	if st.ExpiresAt <= now {
		return nil, nil
	}
	return &st, nil
}

// Check admits or rejects one operation by address at time now. A rejection
// is fatal for the calling operation.
func (l *Limiter) Check(ctx context.Context, tx *gorm.DB, address string, now uint64) error {
	conn := l.conn(tx).WithContext(ctx)
	whitelisted, err := l.IsWhitelisted(conn, address)
	if err != nil {
		return err
	}
	if whitelisted {
		return nil
	}

	cfg, err := l.GetConfig(conn)
	if err != nil {
		return err
	}
	st, err := l.GetState(conn, address, now)
	if err != nil {
		return err
	}
	if st == nil {
		st = &db.AddressState{Address: address, WindowStartTimestamp: now}
	}

	// a fresh state has never operated, so cooldown does not apply
	if st.LastOperationTimestamp > 0 && now < saturatingAdd(st.LastOperationTimestamp, cfg.CooldownPeriod) {
		return l.reject(address, ReasonCooldown, now)
	}

	if now >= saturatingAdd(st.WindowStartTimestamp, cfg.WindowSize) {
		st.WindowStartTimestamp = now
		st.OperationCount = 1
	} else {
		if st.OperationCount >= cfg.MaxOperations {
			return l.reject(address, ReasonWindow, now)
		}
		st.OperationCount++
	}
	st.LastOperationTimestamp = now
	st.ExpiresAt = saturatingAdd(now, l.retention(cfg))

	if err := conn.Save(st).Error; err != nil {
		return fmt.Errorf("save address state: %w", err)
	}
	return nil
}

// retention keeps a state alive at least as long as its window and cooldown
// can still reject, since the runtime config may outgrow the configured ttl.
func (l *Limiter) retention(cfg Config) uint64 {
	ttl := l.ttl
	if cfg.WindowSize > ttl {
		ttl = cfg.WindowSize
	}
	if cfg.CooldownPeriod > ttl {
		ttl = cfg.CooldownPeriod
	}
	return ttl
}

func (l *Limiter) reject(address, reason string, now uint64) error {
	metrics.RateLimitRejections.WithLabelValues(reason).Inc()
	l.logger.WithFields(log.Fields{"address": address, "reason": reason, "at": now}).Warn("Operation rejected by rate limiter")
	return types.ErrRateLimited
}

// Prune deletes expired address states.
func (l *Limiter) Prune(ctx context.Context, now uint64) (int64, error) {
	res := l.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&db.AddressState{})
	if res.Error != nil {
		return 0, res.Error
	}
	metrics.AddressStatesPruned.Add(float64(res.RowsAffected))
	return res.RowsAffected, nil
}

// SeedWhitelist adds the configured addresses to the allow-list.
func (l *Limiter) SeedWhitelist(addresses []string) error {
	for _, a := range addresses {
		addr, err := types.NormalizeAddress(a)
		if err != nil {
			return fmt.Errorf("whitelist entry %q: %w", a, err)
		}
		if err := l.SetWhitelist(nil, addr, true); err != nil {
			return err
		}
	}
	return nil
}

func saturatingAdd(a, b uint64) uint64 {
	if a > ^uint64(0)-b {
		return ^uint64(0)
	}
	return a + b
}
