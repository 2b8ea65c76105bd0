// Package validation содержит правила целостности транзакций и баллов.
package validation

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/kudos-system/internal/model"
)

// ErrInvalidTransaction возвращается при нарушении правил вида транзакции.
var ErrInvalidTransaction = errors.New("invalid transaction")

var halfStep = decimal.New(5, -1)

// IsHalfIncrement проверяет, что величина кратна 0.5.
func IsHalfIncrement(v decimal.Decimal) bool {
	return v.Mod(halfStep).IsZero()
}

// ValidateTransaction проверяет общие и зависящие от вида правила транзакции.
// Невалидная транзакция не должна сохраняться и тем более применяться к балансу.
func ValidateTransaction(t model.Transaction) error {
	if !IsHalfIncrement(t.PointsToGiveDelta) || !IsHalfIncrement(t.PointsToSpendDelta) {
		return fmt.Errorf("%w: deltas must be multiples of 0.5", ErrInvalidTransaction)
	}

	switch t.Kind {
	case model.KindBankAward:
		if t.BankerID == nil {
			return fmt.Errorf("%w: bank award requires a banker", ErrInvalidTransaction)
		}
		if t.Reason == "" {
			return fmt.Errorf("%w: bank award requires a reason", ErrInvalidTransaction)
		}
		return validateAwardDeltas(t)

	case model.KindCelebratoryAward:
		if t.MomentID == nil {
			return fmt.Errorf("%w: celebratory award requires an observable moment", ErrInvalidTransaction)
		}
		return validateAwardDeltas(t)

	case model.KindKickbackReward:
		if t.ObservationID == nil {
			return fmt.Errorf("%w: kickback reward requires an observation", ErrInvalidTransaction)
		}
		return validateAwardDeltas(t)

	case model.KindObserverGive:
		if t.ObservationID == nil {
			return fmt.Errorf("%w: observer give requires an observation", ErrInvalidTransaction)
		}
		if !t.PointsToGiveDelta.IsNegative() {
			return fmt.Errorf("%w: give delta must be negative for observer give", ErrInvalidTransaction)
		}
		if !t.PointsToSpendDelta.IsZero() {
			return fmt.Errorf("%w: spend delta must be zero for observer give", ErrInvalidTransaction)
		}
		return nil

	case model.KindPointsExchange:
		if t.ObservationID == nil {
			return fmt.Errorf("%w: points exchange requires an observation", ErrInvalidTransaction)
		}
		if !t.PointsToSpendDelta.IsPositive() {
			return fmt.Errorf("%w: spend delta must be positive for points exchange", ErrInvalidTransaction)
		}
		return nil

	case model.KindRedemption:
		if t.RedemptionID == nil {
			return fmt.Errorf("%w: redemption transaction requires a redemption", ErrInvalidTransaction)
		}
		if !t.PointsToSpendDelta.IsNegative() {
			return fmt.Errorf("%w: spend delta must be negative for redemption", ErrInvalidTransaction)
		}
		if !t.PointsToGiveDelta.IsZero() {
			return fmt.Errorf("%w: give delta must be zero for redemption", ErrInvalidTransaction)
		}
		return nil
	}

	return fmt.Errorf("%w: unknown kind %q", ErrInvalidTransaction, t.Kind)
}

// validateAwardDeltas проверяет правила начисляющих транзакций:
// оба изменения неотрицательны и хотя бы одно строго положительно.
func validateAwardDeltas(t model.Transaction) error {
	if t.PointsToGiveDelta.IsNegative() || t.PointsToSpendDelta.IsNegative() {
		return fmt.Errorf("%w: award deltas must not be negative", ErrInvalidTransaction)
	}
	if t.PointsToGiveDelta.IsZero() && t.PointsToSpendDelta.IsZero() {
		return fmt.Errorf("%w: must award at least some points", ErrInvalidTransaction)
	}
	return nil
}
