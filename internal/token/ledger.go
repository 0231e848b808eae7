package token

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/goatnetwork/goat-escrow/internal/auth"
	"github.com/goatnetwork/goat-escrow/internal/db"
	"github.com/goatnetwork/goat-escrow/internal/types"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	ErrInsufficientBalance = fmt.Errorf("%w: insufficient balance", types.ErrInsufficientFunds)
	ErrUnauthorizedSender  = fmt.Errorf("%w: sender did not authorize transfer", types.ErrUnauthorized)
	ErrInvalidTransfer     = fmt.Errorf("%w: invalid transfer amount", types.ErrInvalidAmount)
)

// Ledger is the value-transfer service. Every call runs on the caller's
// transaction so a failed escrow operation discards its transfers too.
type Ledger struct {
	db     *gorm.DB
	logger *log.Entry
}

func NewLedger(dbm *db.DatabaseManager) *Ledger {
	return &Ledger{
		db:     dbm.GetEscrowDB(),
		logger: log.WithFields(log.Fields{"module": "token"}),
	}
}

func (l *Ledger) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return l.db
}

func (l *Ledger) Balance(ctx context.Context, tx *gorm.DB, token, holder string) (int64, error) {
	var bal db.TokenBalance
	err := l.conn(tx).WithContext(ctx).Where("token = ? AND holder = ?", token, holder).First(&bal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load balance of %s: %w", holder, err)
	}
	return bal.Amount, nil
}

// Transfer moves amount from one holder to another. The sender must be one
// of the call's signers.
func (l *Ledger) Transfer(ctx context.Context, tx *gorm.DB, token, from, to string, amount int64, kind string) error {
	if amount <= 0 {
		return ErrInvalidTransfer
	}
	if !auth.IsAuthorized(ctx, from) {
		return ErrUnauthorizedSender
	}
	conn := l.conn(tx).WithContext(ctx)

	fromBal, err := l.Balance(ctx, conn, token, from)
	if err != nil {
		return err
	}
	if fromBal < amount {
		return fmt.Errorf("%w: %s holds %d, needs %d", ErrInsufficientBalance, from, fromBal, amount)
	}
	if err := l.credit(conn, token, from, -amount); err != nil {
		return err
	}
	if err := l.credit(conn, token, to, amount); err != nil {
		return err
	}
	if err := conn.Create(&db.TokenTransfer{
		Token: token, Sender: from, Receiver: to, Amount: amount, Kind: kind, CreatedAt: time.Now(),
	}).Error; err != nil {
		return fmt.Errorf("record transfer: %w", err)
	}

	l.logger.Debugf("Transfer %d %s from %s to %s (%s)", amount, token, from, to, kind)
	return nil
}

// Mint credits new value to a holder, used to fund test and dev accounts.
func (l *Ledger) Mint(ctx context.Context, tx *gorm.DB, token, to string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidTransfer
	}
	conn := l.conn(tx).WithContext(ctx)
	return conn.Transaction(func(tx *gorm.DB) error {
		if err := l.credit(tx, token, to, amount); err != nil {
			return err
		}
		return tx.Create(&db.TokenTransfer{
			Token: token, Receiver: to, Amount: amount, Kind: db.TRANSFER_KIND_MINT, CreatedAt: time.Now(),
		}).Error
	})
}

func (l *Ledger) credit(tx *gorm.DB, token, holder string, delta int64) error {
	var bal db.TokenBalance
	err := tx.Where("token = ? AND holder = ?", token, holder).First(&bal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		bal = db.TokenBalance{Token: token, Holder: holder}
	} else if err != nil {
		return fmt.Errorf("load balance of %s: %w", holder, err)
	}
	if delta > 0 && bal.Amount > math.MaxInt64-delta {
		return fmt.Errorf("balance overflow for %s", holder)
	}
	bal.Amount += delta
	if bal.Amount < 0 {
		return ErrInsufficientBalance
	}
	if err := tx.Save(&bal).Error; err != nil {
		return fmt.Errorf("save balance of %s: %w", holder, err)
	}
	return nil
}

// History returns the journal entries touching holder, newest first.
func (l *Ledger) History(ctx context.Context, token, holder string, limit int) ([]db.TokenTransfer, error) {
	var out []db.TokenTransfer
	err := l.db.WithContext(ctx).
		Where("token = ? AND (sender = ? OR receiver = ?)", token, holder, holder).
		Order("id desc").Limit(limit).Find(&out).Error
	return out, err
}
