// Package model содержит доменные сущности сервиса кудос.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Teammate представляет сотрудника организации, участвующего в программе признания.
type Teammate struct {
	ID             int64
	Login          string
	PasswordHash   []byte
	OrganizationID int64
	DisplayName    string
	PointsAdmin    bool
	CreatedAt      time.Time
}

// Ledger хранит текущие балансы двух пулов баллов сотрудника в организации.
// Ровно одна строка на пару (сотрудник, организация); оба пула всегда >= 0.
type Ledger struct {
	ID             int64
	TeammateID     int64
	OrganizationID int64
	PointsToGive   decimal.Decimal
	PointsToSpend  decimal.Decimal
	UpdatedAt      time.Time
}

// Balance содержит текущие балансы пулов баллов сотрудника.
type Balance struct {
	PointsToGive  decimal.Decimal `json:"points_to_give"`
	PointsToSpend decimal.Decimal `json:"points_to_spend"`
}

// TransactionKind определяет вид транзакции баллов.
type TransactionKind string

const (
	KindBankAward        TransactionKind = "bank_award"
	KindCelebratoryAward TransactionKind = "celebratory_award"
	KindKickbackReward   TransactionKind = "kickback_reward"
	KindObserverGive     TransactionKind = "observer_give"
	KindPointsExchange   TransactionKind = "points_exchange"
	KindRedemption       TransactionKind = "redemption"
)

// Transaction описывает неизменяемую запись о событии, изменяющем баланс.
// Записи только добавляются; после создания меняется лишь отметка применения.
type Transaction struct {
	ID                 int64
	Kind               TransactionKind
	TeammateID         int64
	OrganizationID     int64
	PointsToGiveDelta  decimal.Decimal
	PointsToSpendDelta decimal.Decimal
	BankerID           *int64
	ObservationID      *int64
	MomentID           *int64
	RedemptionID       *int64
	TriggeredBy        *int64
	Reason             string
	CreatedAt          time.Time
	AppliedAt          *time.Time
}

// FromCompanyBank сообщает, выдаётся ли обмен баллов из банка компании,
// а не из собственного баланса наблюдателя.
func (t Transaction) FromCompanyBank() bool {
	return t.Kind == KindPointsExchange && t.MomentID != nil
}

// RedemptionStatus описывает статус обработки запроса на награду.
type RedemptionStatus string

const (
	RedemptionStatusPending    RedemptionStatus = "pending"
	RedemptionStatusProcessing RedemptionStatus = "processing"
	RedemptionStatusFulfilled  RedemptionStatus = "fulfilled"
	RedemptionStatusFailed     RedemptionStatus = "failed"
	RedemptionStatusCancelled  RedemptionStatus = "cancelled"
)

// Terminal сообщает, является ли статус конечным.
func (s RedemptionStatus) Terminal() bool {
	switch s {
	case RedemptionStatusFulfilled, RedemptionStatusFailed, RedemptionStatusCancelled:
		return true
	}
	return false
}

// CanTransition проверяет допустимость перехода из текущего статуса в указанный.
func (s RedemptionStatus) CanTransition(to RedemptionStatus) bool {
	switch to {
	case RedemptionStatusProcessing:
		return s == RedemptionStatusPending
	case RedemptionStatusFulfilled, RedemptionStatusFailed, RedemptionStatusCancelled:
		return s == RedemptionStatusPending || s == RedemptionStatusProcessing
	}
	return false
}

// Redemption описывает запрос сотрудника на обмен баллов на награду из каталога.
type Redemption struct {
	ID                int64
	TeammateID        int64
	OrganizationID    int64
	RewardID          int64
	PointsSpent       decimal.Decimal
	Status            RedemptionStatus
	FulfilledAt       *time.Time
	ExternalReference string
	Notes             string
	CreatedAt         time.Time
}

// RewardType определяет категорию награды в каталоге.
type RewardType string

const (
	RewardTypeGiftCard    RewardType = "gift_card"
	RewardTypeMerchandise RewardType = "merchandise"
	RewardTypeExperience  RewardType = "experience"
	RewardTypeDonation    RewardType = "donation"
	RewardTypeCustom      RewardType = "custom"
)

// ValidRewardType проверяет, что категория награды известна.
func ValidRewardType(t RewardType) bool {
	switch t {
	case RewardTypeGiftCard, RewardTypeMerchandise, RewardTypeExperience,
		RewardTypeDonation, RewardTypeCustom:
		return true
	}
	return false
}

// Reward описывает позицию каталога наград. Вместо удаления награда
// деактивируется; доступность проверяется по флагу Active в каждом запросе.
type Reward struct {
	ID             int64
	OrganizationID int64
	Name           string
	CostInPoints   decimal.Decimal
	RewardType     RewardType
	Active         bool
	Provider       string
	ExternalID     string
	CreatedAt      time.Time
}
