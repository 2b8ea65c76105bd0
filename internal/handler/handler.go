// Package handler содержит HTTP-обработчики API сервиса кудос.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/kudos-system/internal/middleware"
	"github.com/mmeshcher/kudos-system/internal/model"
	"github.com/mmeshcher/kudos-system/internal/repository"
	"github.com/mmeshcher/kudos-system/internal/service"
	"github.com/mmeshcher/kudos-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterTeammate(ctx context.Context, login, password string, organizationID int64, displayName string) (int64, error)
	AuthenticateTeammate(ctx context.Context, login, password string) (int64, error)
	AwardFromBank(ctx context.Context, bankerID, teammateID int64, give, spend decimal.Decimal, reason string) (int64, error)
	CelebrateMoment(ctx context.Context, actorID, teammateID, momentID int64, give, spend decimal.Decimal) (int64, error)
	GiveKudos(ctx context.Context, observerID, observeeID, observationID int64, amount decimal.Decimal) (int64, error)
	GetBalance(ctx context.Context, teammateID int64) (*model.Balance, error)
	GetTransactionsByTeammate(ctx context.Context, teammateID int64) ([]model.Transaction, error)
	CreateRedemption(ctx context.Context, teammateID, rewardID int64) (int64, error)
	GetRedemptionsByTeammate(ctx context.Context, teammateID int64) ([]model.Redemption, error)
	CancelRedemption(ctx context.Context, actorID, redemptionID int64, reason string) error
	CreateReward(ctx context.Context, actorID int64, rw model.Reward) (int64, error)
	DeactivateReward(ctx context.Context, actorID, rewardID int64) error
	GetActiveRewards(ctx context.Context, teammateID int64) ([]model.Reward, error)
}

// Handler реализует HTTP-обработчики API сервиса кудос.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type registerRequest struct {
	Login          string `json:"login"`
	Password       string `json:"password"`
	OrganizationID int64  `json:"organization_id"`
	DisplayName    string `json:"display_name"`
}

// Register обрабатывает регистрацию нового сотрудника.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" || req.OrganizationID <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	teammateID, err := h.service.RegisterTeammate(r.Context(), req.Login, req.Password, req.OrganizationID, req.DisplayName)
	if err != nil {
		if errors.Is(err, repository.ErrTeammateExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("register teammate error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, teammateID)
	w.WriteHeader(http.StatusOK)
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Login выполняет аутентификацию сотрудника и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	teammateID, err := h.service.AuthenticateTeammate(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrTeammateNotFound) || errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login teammate error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, teammateID)
	w.WriteHeader(http.StatusOK)
}

// GetBalance возвращает балансы пулов текущего сотрудника.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	teammateID, ok := middleware.GetTeammateIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	balance, err := h.service.GetBalance(r.Context(), teammateID)
	if err != nil {
		h.logger.Error("get balance error", zap.Error(err), zap.Int64("teammateID", teammateID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(balance); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type transactionResponse struct {
	ID                 int64           `json:"id"`
	Kind               string          `json:"kind"`
	PointsToGiveDelta  decimal.Decimal `json:"points_to_give_delta"`
	PointsToSpendDelta decimal.Decimal `json:"points_to_spend_delta"`
	TriggeredBy        *int64          `json:"triggered_by,omitempty"`
	Reason             string          `json:"reason,omitempty"`
	CreatedAt          string          `json:"created_at"`
}

// GetTransactions возвращает историю транзакций текущего сотрудника.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	teammateID, ok := middleware.GetTeammateIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	transactions, err := h.service.GetTransactionsByTeammate(r.Context(), teammateID)
	if err != nil {
		h.logger.Error("get transactions error", zap.Error(err), zap.Int64("teammateID", teammateID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(transactions) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]transactionResponse, 0, len(transactions))
	for _, t := range transactions {
		resp = append(resp, transactionResponse{
			ID:                 t.ID,
			Kind:               string(t.Kind),
			PointsToGiveDelta:  t.PointsToGiveDelta,
			PointsToSpendDelta: t.PointsToSpendDelta,
			TriggeredBy:        t.TriggeredBy,
			Reason:             t.Reason,
			CreatedAt:          t.CreatedAt.Format(time.RFC3339),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type awardRequest struct {
	TeammateID    int64           `json:"teammate_id"`
	PointsToGive  decimal.Decimal `json:"points_to_give"`
	PointsToSpend decimal.Decimal `json:"points_to_spend"`
	Reason        string          `json:"reason"`
}

// Award начисляет баллы из банка компании от имени текущего сотрудника.
func (h *Handler) Award(w http.ResponseWriter, r *http.Request) {
	bankerID, ok := middleware.GetTeammateIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req awardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	_, err := h.service.AwardFromBank(r.Context(), bankerID, req.TeammateID, req.PointsToGive, req.PointsToSpend, req.Reason)
	if err != nil {
		h.writeLedgerError(w, err, "award error", bankerID)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type momentRequest struct {
	TeammateID    int64           `json:"teammate_id"`
	MomentID      int64           `json:"moment_id"`
	PointsToGive  decimal.Decimal `json:"points_to_give"`
	PointsToSpend decimal.Decimal `json:"points_to_spend"`
}

// CelebrateMoment начисляет баллы за системное событие.
func (h *Handler) CelebrateMoment(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetTeammateIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req momentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	_, err := h.service.CelebrateMoment(r.Context(), actorID, req.TeammateID, req.MomentID, req.PointsToGive, req.PointsToSpend)
	if err != nil {
		h.writeLedgerError(w, err, "celebrate moment error", actorID)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type kudosRequest struct {
	ObserveeID    int64           `json:"observee_id"`
	ObservationID int64           `json:"observation_id"`
	Points        decimal.Decimal `json:"points"`
}

// GiveKudos передаёт баллы признания от текущего сотрудника коллеге.
func (h *Handler) GiveKudos(w http.ResponseWriter, r *http.Request) {
	observerID, ok := middleware.GetTeammateIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req kudosRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	_, err := h.service.GiveKudos(r.Context(), observerID, req.ObserveeID, req.ObservationID, req.Points)
	if err != nil {
		h.writeLedgerError(w, err, "give kudos error", observerID)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// writeLedgerError переводит ошибки леджера в HTTP-статусы.
func (h *Handler) writeLedgerError(w http.ResponseWriter, err error, msg string, teammateID int64) {
	switch {
	case errors.Is(err, repository.ErrInsufficientBalance):
		http.Error(w, http.StatusText(http.StatusPaymentRequired), http.StatusPaymentRequired)
	case errors.Is(err, validation.ErrInvalidTransaction), errors.Is(err, service.ErrDifferentOrganization):
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
	case errors.Is(err, service.ErrNotPointsAdmin):
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
	case errors.Is(err, repository.ErrTeammateNotFound):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	default:
		h.logger.Error(msg, zap.Error(err), zap.Int64("teammateID", teammateID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

type rewardRequest struct {
	Name         string          `json:"name"`
	CostInPoints decimal.Decimal `json:"cost_in_points"`
	RewardType   string          `json:"reward_type"`
	Provider     string          `json:"provider,omitempty"`
	ExternalID   string          `json:"external_id,omitempty"`
}

type rewardResponse struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	CostInPoints decimal.Decimal `json:"cost_in_points"`
	RewardType   string          `json:"reward_type"`
}

// CreateReward добавляет награду в каталог организации текущего администратора.
func (h *Handler) CreateReward(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetTeammateIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req rewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	_, err := h.service.CreateReward(r.Context(), actorID, model.Reward{
		Name:         req.Name,
		CostInPoints: req.CostInPoints,
		RewardType:   model.RewardType(req.RewardType),
		Provider:     req.Provider,
		ExternalID:   req.ExternalID,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotPointsAdmin):
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		case errors.Is(err, service.ErrInvalidReward):
			http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		default:
			h.logger.Error("create reward error", zap.Error(err), zap.Int64("teammateID", actorID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusCreated)
}

// GetRewards возвращает доступные награды организации текущего сотрудника.
func (h *Handler) GetRewards(w http.ResponseWriter, r *http.Request) {
	teammateID, ok := middleware.GetTeammateIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	rewards, err := h.service.GetActiveRewards(r.Context(), teammateID)
	if err != nil {
		h.logger.Error("get rewards error", zap.Error(err), zap.Int64("teammateID", teammateID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(rewards) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]rewardResponse, 0, len(rewards))
	for _, rw := range rewards {
		resp = append(resp, rewardResponse{
			ID:           rw.ID,
			Name:         rw.Name,
			CostInPoints: rw.CostInPoints,
			RewardType:   string(rw.RewardType),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

// DeactivateReward снимает награду с каталога.
func (h *Handler) DeactivateReward(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetTeammateIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	rewardID, err := idFromURL(r, "rewardID")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.DeactivateReward(r.Context(), actorID, rewardID); err != nil {
		switch {
		case errors.Is(err, service.ErrNotPointsAdmin):
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		case errors.Is(err, repository.ErrRewardNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		default:
			h.logger.Error("deactivate reward error", zap.Error(err), zap.Int64("teammateID", actorID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}

type redemptionRequest struct {
	RewardID int64 `json:"reward_id"`
}

// CreateRedemption создаёт запрос текущего сотрудника на награду.
// Исполнение и списание баллов произойдут асинхронно.
func (h *Handler) CreateRedemption(w http.ResponseWriter, r *http.Request) {
	teammateID, ok := middleware.GetTeammateIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req redemptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	_, err := h.service.CreateRedemption(r.Context(), teammateID, req.RewardID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRewardNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, service.ErrRewardUnavailable):
			http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		default:
			h.logger.Error("create redemption error", zap.Error(err), zap.Int64("teammateID", teammateID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

type redemptionResponse struct {
	ID                int64           `json:"id"`
	RewardID          int64           `json:"reward_id"`
	PointsSpent       decimal.Decimal `json:"points_spent"`
	Status            string          `json:"status"`
	FulfilledAt       string          `json:"fulfilled_at,omitempty"`
	ExternalReference string          `json:"external_reference,omitempty"`
	Notes             string          `json:"notes,omitempty"`
	CreatedAt         string          `json:"created_at"`
}

// GetRedemptions возвращает запросы текущего сотрудника на награды.
func (h *Handler) GetRedemptions(w http.ResponseWriter, r *http.Request) {
	teammateID, ok := middleware.GetTeammateIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	redemptions, err := h.service.GetRedemptionsByTeammate(r.Context(), teammateID)
	if err != nil {
		h.logger.Error("get redemptions error", zap.Error(err), zap.Int64("teammateID", teammateID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(redemptions) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]redemptionResponse, 0, len(redemptions))
	for _, rd := range redemptions {
		item := redemptionResponse{
			ID:                rd.ID,
			RewardID:          rd.RewardID,
			PointsSpent:       rd.PointsSpent,
			Status:            string(rd.Status),
			ExternalReference: rd.ExternalReference,
			Notes:             rd.Notes,
			CreatedAt:         rd.CreatedAt.Format(time.RFC3339),
		}
		if rd.FulfilledAt != nil {
			item.FulfilledAt = rd.FulfilledAt.Format(time.RFC3339)
		}
		resp = append(resp, item)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// CancelRedemption отменяет запрос на награду.
func (h *Handler) CancelRedemption(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetTeammateIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	redemptionID, err := idFromURL(r, "redemptionID")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.CancelRedemption(r.Context(), actorID, redemptionID, req.Reason); err != nil {
		switch {
		case errors.Is(err, repository.ErrRedemptionNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrInvalidStateTransition):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		case errors.Is(err, service.ErrNotPointsAdmin):
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		default:
			h.logger.Error("cancel redemption error", zap.Error(err), zap.Int64("teammateID", actorID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}
