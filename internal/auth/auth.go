package auth

import (
	"context"

	"github.com/go-errors/errors"
	"github.com/goatnetwork/goat-escrow/internal/types"
	log "github.com/sirupsen/logrus"
)

type signersKey struct{}

// WithSigners returns a context carrying the principals that authorized the
// current call, in addition to any already present.
func WithSigners(ctx context.Context, signers ...string) context.Context {
	existing := Signers(ctx)
	merged := make([]string, 0, len(existing)+len(signers))
	merged = append(merged, existing...)
	merged = append(merged, signers...)
	return context.WithValue(ctx, signersKey{}, merged)
}

func Signers(ctx context.Context) []string {
	if ctx == nil {
		return nil
	}
	signers, _ := ctx.Value(signersKey{}).([]string)
	return signers
}

func IsAuthorized(ctx context.Context, addr string) bool {
	for _, s := range Signers(ctx) {
		if types.SameAddress(s, addr) {
			return true
		}
	}
	return false
}

// Require fails with ErrUnauthorized unless addr signed the call. The failure
// is fatal for the operation, so the stack is logged here.
func Require(ctx context.Context, addr string) error {
	if IsAuthorized(ctx, addr) {
		return nil
	}
	wrapped := errors.Wrap(types.ErrUnauthorized, 1)
	log.WithFields(log.Fields{"module": "auth", "address": addr}).Errorf("Authorization missing: %s", wrapped.ErrorStack())
	return types.ErrUnauthorized
}
