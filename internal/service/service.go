// Package service реализует бизнес-логику сервиса кудос.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/kudos-system/internal/fulfillment"
	"github.com/mmeshcher/kudos-system/internal/model"
	"github.com/mmeshcher/kudos-system/internal/repository"
	"github.com/mmeshcher/kudos-system/internal/validation"
)

// ErrInvalidCredentials возвращается при неверном логине или пароле.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotPointsAdmin возвращается, если действие требует права распоряжаться банком баллов.
	ErrNotPointsAdmin = errors.New("teammate is not a points admin")
	// ErrDifferentOrganization возвращается, если участники операции из разных организаций.
	ErrDifferentOrganization = errors.New("teammates belong to different organizations")
	// ErrRewardUnavailable возвращается, если награда неактивна или из чужой организации.
	ErrRewardUnavailable = errors.New("reward is not available")
	// ErrInvalidReward возвращается при нарушении правил позиции каталога.
	ErrInvalidReward = errors.New("invalid reward")
)

// kickbackPoints — вознаграждение наблюдателю за данную обратную связь.
var kickbackPoints = decimal.New(5, -1)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateTeammate(ctx context.Context, login string, passwordHash []byte, organizationID int64, displayName string) (int64, error)
	GetTeammateByLogin(ctx context.Context, login string) (*model.Teammate, error)
	GetTeammateByID(ctx context.Context, id int64) (*model.Teammate, error)
	GetBalance(ctx context.Context, teammateID, organizationID int64) (*model.Balance, error)
	RecalculateBalance(ctx context.Context, teammateID, organizationID int64) (*model.Balance, error)
	CreateTransaction(ctx context.Context, t model.Transaction) (int64, error)
	ApplyTransaction(ctx context.Context, id int64) error
	GetTransactionsByTeammate(ctx context.Context, teammateID, organizationID int64) ([]model.Transaction, error)
	CreateRedemption(ctx context.Context, teammateID, organizationID, rewardID int64, points decimal.Decimal) (int64, error)
	GetRedemptionByID(ctx context.Context, id int64) (*model.Redemption, error)
	GetRedemptionsByTeammate(ctx context.Context, teammateID, organizationID int64) ([]model.Redemption, error)
	GetRedemptionsForFulfillment(ctx context.Context, limit int) ([]model.Redemption, error)
	UpdateRedemptionStatus(ctx context.Context, id int64, to model.RedemptionStatus, note string) error
	FulfillRedemption(ctx context.Context, id int64, externalRef string) error
	CreateReward(ctx context.Context, rw model.Reward) (int64, error)
	GetRewardByID(ctx context.Context, id int64) (*model.Reward, error)
	GetActiveRewards(ctx context.Context, organizationID int64) ([]model.Reward, error)
	DeactivateReward(ctx context.Context, id int64) error
}

// Service содержит бизнес-логику сервиса кудос.
type Service struct {
	repo              Repository
	fulfillmentClient *fulfillment.Client
}

// NewService создаёт новый сервис с указанным репозиторием и клиентом провайдера наград.
func NewService(repo Repository, fulfillmentClient *fulfillment.Client) *Service {
	return &Service{
		repo:              repo,
		fulfillmentClient: fulfillmentClient,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterTeammate регистрирует нового сотрудника.
func (s *Service) RegisterTeammate(ctx context.Context, login, password string, organizationID int64, displayName string) (int64, error) {
	hashed := hashPassword(login, password)
	id, err := s.repo.CreateTeammate(ctx, login, hashed, organizationID, displayName)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// AuthenticateTeammate проверяет логин и пароль сотрудника и возвращает его идентификатор.
func (s *Service) AuthenticateTeammate(ctx context.Context, login, password string) (int64, error) {
	tm, err := s.repo.GetTeammateByLogin(ctx, login)
	if err != nil {
		return 0, err
	}

	hashed := hashPassword(login, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(tm.PasswordHash) {
		return 0, ErrInvalidCredentials
	}

	return tm.ID, nil
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}

// recordAndApply — единственный путь от события к изменению баланса:
// валидация по виду транзакции, сохранение, применение к леджеру.
func (s *Service) recordAndApply(ctx context.Context, t model.Transaction) (int64, error) {
	if err := validation.ValidateTransaction(t); err != nil {
		return 0, err
	}

	id, err := s.repo.CreateTransaction(ctx, t)
	if err != nil {
		return 0, err
	}

	if err := s.repo.ApplyTransaction(ctx, id); err != nil {
		return 0, err
	}

	return id, nil
}

// AwardFromBank начисляет сотруднику баллы из банка компании от имени банкира.
func (s *Service) AwardFromBank(ctx context.Context, bankerID, teammateID int64, give, spend decimal.Decimal, reason string) (int64, error) {
	banker, err := s.repo.GetTeammateByID(ctx, bankerID)
	if err != nil {
		return 0, err
	}
	if !banker.PointsAdmin {
		return 0, ErrNotPointsAdmin
	}

	recipient, err := s.repo.GetTeammateByID(ctx, teammateID)
	if err != nil {
		return 0, err
	}
	if recipient.OrganizationID != banker.OrganizationID {
		return 0, ErrDifferentOrganization
	}

	return s.recordAndApply(ctx, model.Transaction{
		Kind:               model.KindBankAward,
		TeammateID:         recipient.ID,
		OrganizationID:     recipient.OrganizationID,
		PointsToGiveDelta:  give,
		PointsToSpendDelta: spend,
		BankerID:           &banker.ID,
		Reason:             reason,
	})
}

// CelebrateMoment начисляет сотруднику баллы за системное событие
// (юбилей, завершение испытательного срока и т.п.). Банкир не требуется,
// но инициировать начисление может только администратор баллов.
func (s *Service) CelebrateMoment(ctx context.Context, actorID, teammateID, momentID int64, give, spend decimal.Decimal) (int64, error) {
	actor, err := s.repo.GetTeammateByID(ctx, actorID)
	if err != nil {
		return 0, err
	}
	if !actor.PointsAdmin {
		return 0, ErrNotPointsAdmin
	}

	recipient, err := s.repo.GetTeammateByID(ctx, teammateID)
	if err != nil {
		return 0, err
	}
	if recipient.OrganizationID != actor.OrganizationID {
		return 0, ErrDifferentOrganization
	}

	return s.recordAndApply(ctx, model.Transaction{
		Kind:               model.KindCelebratoryAward,
		TeammateID:         recipient.ID,
		OrganizationID:     recipient.OrganizationID,
		PointsToGiveDelta:  give,
		PointsToSpendDelta: spend,
		MomentID:           &momentID,
	})
}

// GiveKudos проводит цепочку передачи признания: наблюдатель отдаёт баллы из
// своего пула отдачи, получатель получает их в пул трат, а наблюдатель
// получает небольшой кикбэк за обратную связь. Все три транзакции связаны
// через исходную. Цепочка не атомарна: атомарна каждая транзакция по
// отдельности. При сбое после применённого списания ошибка содержит
// идентификатор исходной транзакции; балансы восстанавливаются через
// RecalculateBalance.
func (s *Service) GiveKudos(ctx context.Context, observerID, observeeID, observationID int64, amount decimal.Decimal) (int64, error) {
	observer, err := s.repo.GetTeammateByID(ctx, observerID)
	if err != nil {
		return 0, err
	}

	observee, err := s.repo.GetTeammateByID(ctx, observeeID)
	if err != nil {
		return 0, err
	}
	if observee.OrganizationID != observer.OrganizationID {
		return 0, ErrDifferentOrganization
	}

	giveID, err := s.recordAndApply(ctx, model.Transaction{
		Kind:              model.KindObserverGive,
		TeammateID:        observer.ID,
		OrganizationID:    observer.OrganizationID,
		PointsToGiveDelta: amount.Neg(),
		ObservationID:     &observationID,
	})
	if err != nil {
		return 0, err
	}

	_, err = s.recordAndApply(ctx, model.Transaction{
		Kind:               model.KindPointsExchange,
		TeammateID:         observee.ID,
		OrganizationID:     observee.OrganizationID,
		PointsToSpendDelta: amount,
		ObservationID:      &observationID,
		TriggeredBy:        &giveID,
	})
	if err != nil {
		return 0, fmt.Errorf("points exchange after give %d: %w", giveID, err)
	}

	_, err = s.recordAndApply(ctx, model.Transaction{
		Kind:               model.KindKickbackReward,
		TeammateID:         observer.ID,
		OrganizationID:     observer.OrganizationID,
		PointsToSpendDelta: kickbackPoints,
		ObservationID:      &observationID,
		TriggeredBy:        &giveID,
	})
	if err != nil {
		return 0, fmt.Errorf("kickback after give %d: %w", giveID, err)
	}

	return giveID, nil
}

// GetBalance возвращает балансы пулов сотрудника.
func (s *Service) GetBalance(ctx context.Context, teammateID int64) (*model.Balance, error) {
	tm, err := s.repo.GetTeammateByID(ctx, teammateID)
	if err != nil {
		return nil, err
	}
	return s.repo.GetBalance(ctx, tm.ID, tm.OrganizationID)
}

// RecalculateBalance пересчитывает балансы сотрудника по истории транзакций.
func (s *Service) RecalculateBalance(ctx context.Context, teammateID int64) (*model.Balance, error) {
	tm, err := s.repo.GetTeammateByID(ctx, teammateID)
	if err != nil {
		return nil, err
	}
	return s.repo.RecalculateBalance(ctx, tm.ID, tm.OrganizationID)
}

// CanGive сообщает, хватает ли сотруднику баллов в пуле отдачи.
// Проверка справочная: авторитетная выполняется при списании.
func (s *Service) CanGive(ctx context.Context, teammateID int64, amount decimal.Decimal) (bool, error) {
	b, err := s.GetBalance(ctx, teammateID)
	if err != nil {
		return false, err
	}
	return b.PointsToGive.GreaterThanOrEqual(amount), nil
}

// CanSpend сообщает, хватает ли сотруднику баллов в пуле трат.
// Проверка справочная: авторитетная выполняется при списании.
func (s *Service) CanSpend(ctx context.Context, teammateID int64, amount decimal.Decimal) (bool, error) {
	b, err := s.GetBalance(ctx, teammateID)
	if err != nil {
		return false, err
	}
	return b.PointsToSpend.GreaterThanOrEqual(amount), nil
}

// GetTransactionsByTeammate возвращает историю транзакций сотрудника.
func (s *Service) GetTransactionsByTeammate(ctx context.Context, teammateID int64) ([]model.Transaction, error) {
	tm, err := s.repo.GetTeammateByID(ctx, teammateID)
	if err != nil {
		return nil, err
	}
	return s.repo.GetTransactionsByTeammate(ctx, tm.ID, tm.OrganizationID)
}

// CreateRedemption создаёт запрос сотрудника на обмен баллов на награду.
// Баллы на этом шаге не списываются: списание произойдёт при исполнении.
func (s *Service) CreateRedemption(ctx context.Context, teammateID, rewardID int64) (int64, error) {
	tm, err := s.repo.GetTeammateByID(ctx, teammateID)
	if err != nil {
		return 0, err
	}

	rw, err := s.repo.GetRewardByID(ctx, rewardID)
	if err != nil {
		return 0, err
	}
	if !rw.Active || rw.OrganizationID != tm.OrganizationID {
		return 0, ErrRewardUnavailable
	}

	return s.repo.CreateRedemption(ctx, tm.ID, tm.OrganizationID, rw.ID, rw.CostInPoints)
}

// GetRedemptionsByTeammate возвращает запросы сотрудника на награды.
func (s *Service) GetRedemptionsByTeammate(ctx context.Context, teammateID int64) ([]model.Redemption, error) {
	tm, err := s.repo.GetTeammateByID(ctx, teammateID)
	if err != nil {
		return nil, err
	}
	return s.repo.GetRedemptionsByTeammate(ctx, tm.ID, tm.OrganizationID)
}

// MarkProcessing переводит запрос на награду в статус processing.
func (s *Service) MarkProcessing(ctx context.Context, redemptionID int64) error {
	return s.repo.UpdateRedemptionStatus(ctx, redemptionID, model.RedemptionStatusProcessing, "")
}

// MarkFulfilled исполняет запрос: фиксирует внешнюю ссылку провайдера
// и списывает баллы с леджера в той же единице работы.
func (s *Service) MarkFulfilled(ctx context.Context, redemptionID int64, externalRef string) error {
	return s.repo.FulfillRedemption(ctx, redemptionID, externalRef)
}

// MarkFailed переводит запрос в статус failed с указанием причины.
func (s *Service) MarkFailed(ctx context.Context, redemptionID int64, reason string) error {
	return s.repo.UpdateRedemptionStatus(ctx, redemptionID, model.RedemptionStatusFailed, reason)
}

// CancelRedemption отменяет запрос от имени его владельца или администратора баллов.
func (s *Service) CancelRedemption(ctx context.Context, actorID, redemptionID int64, reason string) error {
	rd, err := s.repo.GetRedemptionByID(ctx, redemptionID)
	if err != nil {
		return err
	}

	if rd.TeammateID != actorID {
		actor, err := s.repo.GetTeammateByID(ctx, actorID)
		if err != nil {
			return err
		}
		if !actor.PointsAdmin || actor.OrganizationID != rd.OrganizationID {
			return ErrNotPointsAdmin
		}
	}

	return s.repo.UpdateRedemptionStatus(ctx, redemptionID, model.RedemptionStatusCancelled, reason)
}

// CreateReward добавляет награду в каталог организации администратора.
func (s *Service) CreateReward(ctx context.Context, actorID int64, rw model.Reward) (int64, error) {
	actor, err := s.repo.GetTeammateByID(ctx, actorID)
	if err != nil {
		return 0, err
	}
	if !actor.PointsAdmin {
		return 0, ErrNotPointsAdmin
	}

	if rw.Name == "" {
		return 0, fmt.Errorf("%w: name is required", ErrInvalidReward)
	}
	if !model.ValidRewardType(rw.RewardType) {
		return 0, fmt.Errorf("%w: unknown reward type %q", ErrInvalidReward, rw.RewardType)
	}
	if !rw.CostInPoints.IsPositive() || !validation.IsHalfIncrement(rw.CostInPoints) {
		return 0, fmt.Errorf("%w: cost must be a positive multiple of 0.5", ErrInvalidReward)
	}

	rw.OrganizationID = actor.OrganizationID
	return s.repo.CreateReward(ctx, rw)
}

// DeactivateReward снимает награду с каталога организации администратора.
func (s *Service) DeactivateReward(ctx context.Context, actorID, rewardID int64) error {
	actor, err := s.repo.GetTeammateByID(ctx, actorID)
	if err != nil {
		return err
	}
	if !actor.PointsAdmin {
		return ErrNotPointsAdmin
	}

	rw, err := s.repo.GetRewardByID(ctx, rewardID)
	if err != nil {
		return err
	}
	if rw.OrganizationID != actor.OrganizationID {
		return fmt.Errorf("%w: id %d", repository.ErrRewardNotFound, rewardID)
	}

	return s.repo.DeactivateReward(ctx, rewardID)
}

// GetActiveRewards возвращает доступные награды организации сотрудника.
func (s *Service) GetActiveRewards(ctx context.Context, teammateID int64) ([]model.Reward, error) {
	tm, err := s.repo.GetTeammateByID(ctx, teammateID)
	if err != nil {
		return nil, err
	}
	return s.repo.GetActiveRewards(ctx, tm.OrganizationID)
}

// StartFulfillmentUpdates запускает фоновый процесс исполнения запросов на награды.
func (s *Service) StartFulfillmentUpdates(ctx context.Context) {
	if s.fulfillmentClient == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.processFulfillmentBatch(ctx)
			}
		}
	}()
}

func (s *Service) processFulfillmentBatch(ctx context.Context) {
	redemptions, err := s.repo.GetRedemptionsForFulfillment(ctx, 100)
	if err != nil {
		return
	}

	for _, rd := range redemptions {
		if rd.Status == model.RedemptionStatusPending {
			// Справочная проверка до обращения к провайдеру: без баллов
			// запрос остаётся pending до следующего цикла
			can, err := s.CanSpend(ctx, rd.TeammateID, rd.PointsSpent)
			if err != nil || !can {
				continue
			}

			if err := s.MarkProcessing(ctx, rd.ID); err != nil {
				continue
			}
		}

		rw, err := s.repo.GetRewardByID(ctx, rd.RewardID)
		if err != nil {
			continue
		}

		tm, err := s.repo.GetTeammateByID(ctx, rd.TeammateID)
		if err != nil {
			continue
		}

		result, statusCode, retryAfter, err := s.fulfillmentClient.SubmitRedemption(ctx, fulfillment.Request{
			RedemptionID: rd.ID,
			Provider:     rw.Provider,
			ExternalID:   rw.ExternalID,
			Teammate:     tm.Login,
			Points:       rd.PointsSpent,
		})
		if err != nil {
			continue
		}

		if statusCode == 429 {
			if retryAfter > 0 {
				timer := time.NewTimer(retryAfter)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			}
			continue
		}

		if result == nil {
			continue
		}

		switch result.Status {
		case fulfillment.StatusAccepted:
			if err := s.MarkFulfilled(ctx, rd.ID, result.Reference); err != nil {
				if errors.Is(err, repository.ErrInsufficientBalance) {
					_ = s.MarkFailed(ctx, rd.ID, "insufficient balance at fulfillment")
				}
			}
		case fulfillment.StatusRejected:
			_ = s.MarkFailed(ctx, rd.ID, result.Reason)
		}
	}
}
