package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/kudos-system/internal/middleware"
	"github.com/mmeshcher/kudos-system/internal/model"
	"github.com/mmeshcher/kudos-system/internal/repository"
	"github.com/mmeshcher/kudos-system/internal/service"
	"github.com/mmeshcher/kudos-system/internal/validation"
)

type stubService struct {
	registerTeammateID int64
	registerErr        error

	authTeammateID int64
	authErr        error

	awardID  int64
	awardErr error

	momentID  int64
	momentErr error

	kudosID  int64
	kudosErr error

	balanceResp *model.Balance
	balanceErr  error

	transactionsResp []model.Transaction
	transactionsErr  error

	redemptionID        int64
	createRedemptionErr error

	redemptionsResp []model.Redemption
	redemptionsErr  error

	cancelErr error

	rewardID        int64
	createRewardErr error

	deactivateErr error

	rewardsResp []model.Reward
	rewardsErr  error
}

func (s *stubService) RegisterTeammate(ctx context.Context, login, password string, organizationID int64, displayName string) (int64, error) {
	return s.registerTeammateID, s.registerErr
}

func (s *stubService) AuthenticateTeammate(ctx context.Context, login, password string) (int64, error) {
	return s.authTeammateID, s.authErr
}

func (s *stubService) AwardFromBank(ctx context.Context, bankerID, teammateID int64, give, spend decimal.Decimal, reason string) (int64, error) {
	return s.awardID, s.awardErr
}

func (s *stubService) CelebrateMoment(ctx context.Context, actorID, teammateID, momentID int64, give, spend decimal.Decimal) (int64, error) {
	return s.momentID, s.momentErr
}

func (s *stubService) GiveKudos(ctx context.Context, observerID, observeeID, observationID int64, amount decimal.Decimal) (int64, error) {
	return s.kudosID, s.kudosErr
}

func (s *stubService) GetBalance(ctx context.Context, teammateID int64) (*model.Balance, error) {
	return s.balanceResp, s.balanceErr
}

func (s *stubService) GetTransactionsByTeammate(ctx context.Context, teammateID int64) ([]model.Transaction, error) {
	return s.transactionsResp, s.transactionsErr
}

func (s *stubService) CreateRedemption(ctx context.Context, teammateID, rewardID int64) (int64, error) {
	return s.redemptionID, s.createRedemptionErr
}

func (s *stubService) GetRedemptionsByTeammate(ctx context.Context, teammateID int64) ([]model.Redemption, error) {
	return s.redemptionsResp, s.redemptionsErr
}

func (s *stubService) CancelRedemption(ctx context.Context, actorID, redemptionID int64, reason string) error {
	return s.cancelErr
}

func (s *stubService) CreateReward(ctx context.Context, actorID int64, rw model.Reward) (int64, error) {
	return s.rewardID, s.createRewardErr
}

func (s *stubService) DeactivateReward(ctx context.Context, actorID, rewardID int64) error {
	return s.deactivateErr
}

func (s *stubService) GetActiveRewards(ctx context.Context, teammateID int64) ([]model.Reward, error) {
	return s.rewardsResp, s.rewardsErr
}

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	auth := middleware.NewAuthMiddleware("test-secret")

	return NewHandler(svc, logger, auth)
}

func authCookie(t *testing.T, h *Handler, teammateID int64) *http.Cookie {
	t.Helper()

	rec := httptest.NewRecorder()
	h.authMiddleware.SetAuthCookie(rec, teammateID)

	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatalf("auth cookie was not set")
	}
	return cookies[0]
}

func TestRegister_Success(t *testing.T) {
	svc := &stubService{
		registerTeammateID: 42,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(registerRequest{
		Login:          "teammate",
		Password:       "pass",
		OrganizationID: 1,
		DisplayName:    "Teammate",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/teammate/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if len(res.Cookies()) == 0 {
		t.Fatalf("expected auth cookie after registration")
	}
}

func TestRegister_Conflict(t *testing.T) {
	svc := &stubService{
		registerErr: repository.ErrTeammateExists,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(registerRequest{
		Login:          "teammate",
		Password:       "pass",
		OrganizationID: 1,
	})

	req := httptest.NewRequest(http.MethodPost, "/api/teammate/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusConflict)
	}
}

func TestLogin_Unauthorized(t *testing.T) {
	svc := &stubService{
		authErr: service.ErrInvalidCredentials,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(credentialsRequest{
		Login:    "teammate",
		Password: "wrong",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/teammate/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestGetBalance_JSON(t *testing.T) {
	svc := &stubService{
		balanceResp: &model.Balance{
			PointsToGive:  decimal.RequireFromString("7.5"),
			PointsToSpend: decimal.RequireFromString("3"),
		},
	}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/teammate/balance", nil)
	req.AddCookie(authCookie(t, h, 1))

	rec := httptest.NewRecorder()
	handlerWithAuth := h.authMiddleware.Middleware(http.HandlerFunc(h.GetBalance))
	handlerWithAuth.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q, want application/json", ct)
	}

	var got model.Balance
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	if !got.PointsToGive.Equal(decimal.RequireFromString("7.5")) {
		t.Fatalf("points_to_give = %s, want 7.5", got.PointsToGive)
	}
}

func TestGetBalance_UnauthorizedWithoutCookie(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	req := httptest.NewRequest(http.MethodGet, "/api/teammate/balance", nil)
	rec := httptest.NewRecorder()

	handlerWithAuth := h.authMiddleware.Middleware(http.HandlerFunc(h.GetBalance))
	handlerWithAuth.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestGetTransactions_NoContent(t *testing.T) {
	svc := &stubService{
		transactionsResp: []model.Transaction{},
	}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/teammate/transactions", nil)
	req.AddCookie(authCookie(t, h, 1))

	rec := httptest.NewRecorder()
	handlerWithAuth := h.authMiddleware.Middleware(http.HandlerFunc(h.GetTransactions))
	handlerWithAuth.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNoContent)
	}
}

func TestAward_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		serviceErr error
		wantStatus int
	}{
		{
			name:       "insufficient balance",
			serviceErr: repository.ErrInsufficientBalance,
			wantStatus: http.StatusPaymentRequired,
		},
		{
			name:       "not points admin",
			serviceErr: service.ErrNotPointsAdmin,
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "different organization",
			serviceErr: service.ErrDifferentOrganization,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "invalid transaction",
			serviceErr: validation.ErrInvalidTransaction,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "recipient not found",
			serviceErr: repository.ErrTeammateNotFound,
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{
				awardErr: tt.serviceErr,
			}
			h := newTestHandler(t, svc)

			body, _ := json.Marshal(awardRequest{
				TeammateID:   2,
				PointsToGive: decimal.RequireFromString("5"),
				Reason:       "good work",
			})

			req := httptest.NewRequest(http.MethodPost, "/api/teammate/awards", bytes.NewReader(body))
			req.AddCookie(authCookie(t, h, 1))

			rec := httptest.NewRecorder()
			handlerWithAuth := h.authMiddleware.Middleware(http.HandlerFunc(h.Award))
			handlerWithAuth.ServeHTTP(rec, req)

			res := rec.Result()
			if res.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", res.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestGiveKudos_InsufficientBalance(t *testing.T) {
	svc := &stubService{
		kudosErr: repository.ErrInsufficientBalance,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(kudosRequest{
		ObserveeID:    2,
		ObservationID: 77,
		Points:        decimal.RequireFromString("2"),
	})

	req := httptest.NewRequest(http.MethodPost, "/api/teammate/kudos", bytes.NewReader(body))
	req.AddCookie(authCookie(t, h, 1))

	rec := httptest.NewRecorder()
	handlerWithAuth := h.authMiddleware.Middleware(http.HandlerFunc(h.GiveKudos))
	handlerWithAuth.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusPaymentRequired)
	}
}

func TestCreateRedemption_Accepted(t *testing.T) {
	svc := &stubService{
		redemptionID: 10,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(redemptionRequest{RewardID: 3})

	req := httptest.NewRequest(http.MethodPost, "/api/teammate/redemptions", bytes.NewReader(body))
	req.AddCookie(authCookie(t, h, 1))

	rec := httptest.NewRecorder()
	handlerWithAuth := h.authMiddleware.Middleware(http.HandlerFunc(h.CreateRedemption))
	handlerWithAuth.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusAccepted)
	}
}

func TestCreateRedemption_RewardUnavailable(t *testing.T) {
	svc := &stubService{
		createRedemptionErr: service.ErrRewardUnavailable,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(redemptionRequest{RewardID: 3})

	req := httptest.NewRequest(http.MethodPost, "/api/teammate/redemptions", bytes.NewReader(body))
	req.AddCookie(authCookie(t, h, 1))

	rec := httptest.NewRecorder()
	handlerWithAuth := h.authMiddleware.Middleware(http.HandlerFunc(h.CreateRedemption))
	handlerWithAuth.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestCancelRedemption_Conflict(t *testing.T) {
	svc := &stubService{
		cancelErr: repository.ErrInvalidStateTransition,
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body, _ := json.Marshal(cancelRequest{Reason: "too late"})

	req := httptest.NewRequest(http.MethodPost, "/api/teammate/redemptions/5/cancel", bytes.NewReader(body))
	req.AddCookie(authCookie(t, h, 1))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusConflict)
	}
}

func TestGetRedemptions_JSONResponse(t *testing.T) {
	now := time.Now().UTC()
	svc := &stubService{
		redemptionsResp: []model.Redemption{
			{
				ID:          1,
				RewardID:    3,
				PointsSpent: decimal.RequireFromString("5"),
				Status:      model.RedemptionStatusPending,
				CreatedAt:   now,
			},
		},
	}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/teammate/redemptions", nil)
	req.AddCookie(authCookie(t, h, 1))

	rec := httptest.NewRecorder()
	handlerWithAuth := h.authMiddleware.Middleware(http.HandlerFunc(h.GetRedemptions))
	handlerWithAuth.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q, want application/json", ct)
	}

	var got []redemptionResponse
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode redemptions: %v", err)
	}
	if len(got) != 1 || got[0].Status != string(model.RedemptionStatusPending) {
		t.Fatalf("unexpected response: %+v", got)
	}
}

func TestGetRewards_NoContent(t *testing.T) {
	svc := &stubService{
		rewardsResp: []model.Reward{},
	}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/rewards", nil)
	req.AddCookie(authCookie(t, h, 1))

	rec := httptest.NewRecorder()
	handlerWithAuth := h.authMiddleware.Middleware(http.HandlerFunc(h.GetRewards))
	handlerWithAuth.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNoContent)
	}
}

func TestCreateReward_Forbidden(t *testing.T) {
	svc := &stubService{
		createRewardErr: service.ErrNotPointsAdmin,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(rewardRequest{
		Name:         "gift card",
		CostInPoints: decimal.RequireFromString("5"),
		RewardType:   string(model.RewardTypeGiftCard),
	})

	req := httptest.NewRequest(http.MethodPost, "/api/rewards", bytes.NewReader(body))
	req.AddCookie(authCookie(t, h, 1))

	rec := httptest.NewRecorder()
	handlerWithAuth := h.authMiddleware.Middleware(http.HandlerFunc(h.CreateReward))
	handlerWithAuth.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusForbidden)
	}
}
