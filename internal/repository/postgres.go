// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/kudos-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrTeammateExists возвращается при попытке создать сотрудника с уже существующим логином.
var (
	ErrTeammateExists = errors.New("teammate already exists")
	// ErrTeammateNotFound возвращается, если сотрудник не найден.
	ErrTeammateNotFound = errors.New("teammate not found")
	// ErrInsufficientBalance возвращается при попытке списания, уводящего пул баллов в минус.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidStateTransition возвращается при недопустимой смене статуса награды.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrTransactionNotFound возвращается, если транзакция не найдена.
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrRedemptionNotFound возвращается, если запрос на награду не найден.
	ErrRedemptionNotFound = errors.New("redemption not found")
	// ErrRewardNotFound возвращается, если награда не найдена в каталоге.
	ErrRewardNotFound = errors.New("reward not found")
)

var allRedemptionStatuses = []model.RedemptionStatus{
	model.RedemptionStatusPending,
	model.RedemptionStatusProcessing,
	model.RedemptionStatusFulfilled,
	model.RedemptionStatusFailed,
	model.RedemptionStatusCancelled,
}

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет единицу работы при конфликтах сериализации и дедлоках.
// Конкурирующие списания с одной строки леджера сериализуются блокировкой строки,
// но под нагрузкой транзакция может быть отменена и её нужно повторить целиком.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn()
		if err == nil {
			return nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				return retry.RetryableError(err)
			}
		}

		return err
	})
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateTeammate создаёт нового сотрудника.
func (r *PostgresRepository) CreateTeammate(ctx context.Context, login string, passwordHash []byte, organizationID int64, displayName string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO teammates (login, password_hash, organization_id, display_name)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		login, passwordHash, organizationID, displayName,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrTeammateExists, login)
		}
		return 0, fmt.Errorf("create teammate: %w", err)
	}
	return id, nil
}

// GetTeammateByLogin возвращает сотрудника по логину.
func (r *PostgresRepository) GetTeammateByLogin(ctx context.Context, login string) (*model.Teammate, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, organization_id, display_name, points_admin, created_at
		 FROM teammates WHERE login = $1`,
		login,
	)

	var tm model.Teammate
	err := row.Scan(&tm.ID, &tm.Login, &tm.PasswordHash, &tm.OrganizationID, &tm.DisplayName, &tm.PointsAdmin, &tm.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTeammateNotFound
		}
		return nil, fmt.Errorf("get teammate: %w", err)
	}

	return &tm, nil
}

// GetTeammateByID возвращает сотрудника по идентификатору.
func (r *PostgresRepository) GetTeammateByID(ctx context.Context, id int64) (*model.Teammate, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, organization_id, display_name, points_admin, created_at
		 FROM teammates WHERE id = $1`,
		id,
	)

	var tm model.Teammate
	err := row.Scan(&tm.ID, &tm.Login, &tm.PasswordHash, &tm.OrganizationID, &tm.DisplayName, &tm.PointsAdmin, &tm.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTeammateNotFound
		}
		return nil, fmt.Errorf("get teammate: %w", err)
	}

	return &tm, nil
}

// lockLedgerTx находит или создаёт строку леджера и удерживает на ней блокировку
// до конца транзакции. INSERT ... ON CONFLICT DO NOTHING делает первое обращение
// безопасным при конкурентном создании.
func (r *PostgresRepository) lockLedgerTx(ctx context.Context, tx pgx.Tx, teammateID, organizationID int64) (*model.Ledger, error) {
	_, err := tx.Exec(ctx,
		`INSERT INTO ledgers (teammate_id, organization_id) VALUES ($1, $2)
		 ON CONFLICT (teammate_id, organization_id) DO NOTHING`,
		teammateID, organizationID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert ledger: %w", err)
	}

	var l model.Ledger
	err = tx.QueryRow(ctx,
		`SELECT id, teammate_id, organization_id, points_to_give, points_to_spend, updated_at
		 FROM ledgers
		 WHERE teammate_id = $1 AND organization_id = $2
		 FOR UPDATE`,
		teammateID, organizationID,
	).Scan(&l.ID, &l.TeammateID, &l.OrganizationID, &l.PointsToGive, &l.PointsToSpend, &l.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("lock ledger: %w", err)
	}

	return &l, nil
}

// applyDeltasTx применяет изменения обоих пулов к заблокированной строке леджера.
// Проверка достаточности баланса и запись выполняются под одной блокировкой,
// поэтому параллельные списания не могут совместно увести пул в минус.
func (r *PostgresRepository) applyDeltasTx(ctx context.Context, tx pgx.Tx, teammateID, organizationID int64, giveDelta, spendDelta decimal.Decimal) error {
	l, err := r.lockLedgerTx(ctx, tx, teammateID, organizationID)
	if err != nil {
		return err
	}

	newGive := l.PointsToGive.Add(giveDelta)
	newSpend := l.PointsToSpend.Add(spendDelta)

	if newGive.IsNegative() {
		return fmt.Errorf("%w: points to give would become %s", ErrInsufficientBalance, newGive)
	}
	if newSpend.IsNegative() {
		return fmt.Errorf("%w: points to spend would become %s", ErrInsufficientBalance, newSpend)
	}

	_, err = tx.Exec(ctx,
		`UPDATE ledgers SET points_to_give = $2, points_to_spend = $3, updated_at = now() WHERE id = $1`,
		l.ID, newGive, newSpend,
	)
	if err != nil {
		return fmt.Errorf("update ledger: %w", err)
	}

	return nil
}

// GetBalance возвращает текущие балансы пулов сотрудника. Отсутствие строки
// леджера равнозначно нулевым балансам.
func (r *PostgresRepository) GetBalance(ctx context.Context, teammateID, organizationID int64) (*model.Balance, error) {
	var b model.Balance
	err := r.pool.QueryRow(ctx,
		`SELECT points_to_give, points_to_spend
		 FROM ledgers
		 WHERE teammate_id = $1 AND organization_id = $2`,
		teammateID, organizationID,
	).Scan(&b.PointsToGive, &b.PointsToSpend)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &model.Balance{PointsToGive: decimal.Zero, PointsToSpend: decimal.Zero}, nil
		}
		return nil, fmt.Errorf("get balance: %w", err)
	}

	return &b, nil
}

// RecalculateBalance пересчитывает оба пула с нуля по всем применённым
// транзакциям сотрудника, прижимая каждый пул к нулю снизу. Служит для
// сверки и ремонта, не участвует в обычном пути записи.
func (r *PostgresRepository) RecalculateBalance(ctx context.Context, teammateID, organizationID int64) (*model.Balance, error) {
	var b model.Balance

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		l, err := r.lockLedgerTx(ctx, tx, teammateID, organizationID)
		if err != nil {
			return err
		}

		var giveSum, spendSum decimal.Decimal
		err = tx.QueryRow(ctx,
			`SELECT COALESCE(SUM(points_to_give_delta), 0), COALESCE(SUM(points_to_spend_delta), 0)
			 FROM kudos_transactions
			 WHERE teammate_id = $1 AND organization_id = $2 AND applied_at IS NOT NULL`,
			teammateID, organizationID,
		).Scan(&giveSum, &spendSum)
		if err != nil {
			return fmt.Errorf("sum transactions: %w", err)
		}

		if giveSum.IsNegative() {
			giveSum = decimal.Zero
		}
		if spendSum.IsNegative() {
			spendSum = decimal.Zero
		}

		_, err = tx.Exec(ctx,
			`UPDATE ledgers SET points_to_give = $2, points_to_spend = $3, updated_at = now() WHERE id = $1`,
			l.ID, giveSum, spendSum,
		)
		if err != nil {
			return fmt.Errorf("update ledger: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		b = model.Balance{PointsToGive: giveSum, PointsToSpend: spendSum}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &b, nil
}

// CreateTransaction сохраняет транзакцию без применения к леджеру.
func (r *PostgresRepository) CreateTransaction(ctx context.Context, t model.Transaction) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO kudos_transactions
		 (kind, teammate_id, organization_id, points_to_give_delta, points_to_spend_delta,
		  banker_id, observation_id, moment_id, redemption_id, triggered_by, reason)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id`,
		string(t.Kind), t.TeammateID, t.OrganizationID, t.PointsToGiveDelta, t.PointsToSpendDelta,
		t.BankerID, t.ObservationID, t.MomentID, t.RedemptionID, t.TriggeredBy, t.Reason,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}
	return id, nil
}

// ApplyTransaction применяет изменения транзакции к леджеру в одной единице
// работы. Отметка applied_at захватывается условным UPDATE, поэтому повторное
// применение той же транзакции ничего не меняет. Частичное применение
// невозможно: при нехватке баллов в любом пуле вся транзакция откатывается.
func (r *PostgresRepository) ApplyTransaction(ctx context.Context, id int64) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var (
			teammateID     int64
			organizationID int64
			giveDelta      decimal.Decimal
			spendDelta     decimal.Decimal
		)
		err = tx.QueryRow(ctx,
			`UPDATE kudos_transactions SET applied_at = now()
			 WHERE id = $1 AND applied_at IS NULL
			 RETURNING teammate_id, organization_id, points_to_give_delta, points_to_spend_delta`,
			id,
		).Scan(&teammateID, &organizationID, &giveDelta, &spendDelta)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				var exists bool
				if err := tx.QueryRow(ctx,
					`SELECT EXISTS (SELECT 1 FROM kudos_transactions WHERE id = $1)`, id,
				).Scan(&exists); err != nil {
					return fmt.Errorf("check transaction: %w", err)
				}
				if !exists {
					return fmt.Errorf("%w: id %d", ErrTransactionNotFound, id)
				}
				// Уже применена — повтор безопасен
				return nil
			}
			return fmt.Errorf("claim transaction: %w", err)
		}

		if err := r.applyDeltasTx(ctx, tx, teammateID, organizationID, giveDelta, spendDelta); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
}

// GetTransactionsByTeammate возвращает историю транзакций сотрудника.
func (r *PostgresRepository) GetTransactionsByTeammate(ctx context.Context, teammateID, organizationID int64) ([]model.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, kind, teammate_id, organization_id, points_to_give_delta, points_to_spend_delta,
		        banker_id, observation_id, moment_id, redemption_id, triggered_by, reason, created_at, applied_at
		 FROM kudos_transactions
		 WHERE teammate_id = $1 AND organization_id = $2
		 ORDER BY created_at DESC, id DESC`,
		teammateID, organizationID,
	)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var res []model.Transaction
	for rows.Next() {
		var t model.Transaction
		err := rows.Scan(
			&t.ID, &t.Kind, &t.TeammateID, &t.OrganizationID, &t.PointsToGiveDelta, &t.PointsToSpendDelta,
			&t.BankerID, &t.ObservationID, &t.MomentID, &t.RedemptionID, &t.TriggeredBy, &t.Reason, &t.CreatedAt, &t.AppliedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		res = append(res, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateRedemption создаёт запрос на награду в статусе pending.
// Леджер на этом шаге не затрагивается: списание произойдёт при исполнении.
func (r *PostgresRepository) CreateRedemption(ctx context.Context, teammateID, organizationID, rewardID int64, points decimal.Decimal) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO redemptions (teammate_id, organization_id, reward_id, points_spent, status)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		teammateID, organizationID, rewardID, points, string(model.RedemptionStatusPending),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert redemption: %w", err)
	}
	return id, nil
}

// GetRedemptionByID возвращает запрос на награду по идентификатору.
func (r *PostgresRepository) GetRedemptionByID(ctx context.Context, id int64) (*model.Redemption, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, teammate_id, organization_id, reward_id, points_spent, status,
		        fulfilled_at, external_reference, notes, created_at
		 FROM redemptions WHERE id = $1`,
		id,
	)

	var rd model.Redemption
	err := row.Scan(&rd.ID, &rd.TeammateID, &rd.OrganizationID, &rd.RewardID, &rd.PointsSpent, &rd.Status,
		&rd.FulfilledAt, &rd.ExternalReference, &rd.Notes, &rd.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRedemptionNotFound
		}
		return nil, fmt.Errorf("get redemption: %w", err)
	}

	return &rd, nil
}

// GetRedemptionsByTeammate возвращает запросы на награды сотрудника.
func (r *PostgresRepository) GetRedemptionsByTeammate(ctx context.Context, teammateID, organizationID int64) ([]model.Redemption, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, teammate_id, organization_id, reward_id, points_spent, status,
		        fulfilled_at, external_reference, notes, created_at
		 FROM redemptions
		 WHERE teammate_id = $1 AND organization_id = $2
		 ORDER BY created_at DESC, id DESC`,
		teammateID, organizationID,
	)
	if err != nil {
		return nil, fmt.Errorf("select redemptions: %w", err)
	}
	defer rows.Close()

	return scanRedemptions(rows)
}

// GetRedemptionsForFulfillment возвращает запросы, ожидающие исполнения.
// Pending-запросы без достаточного баланса не попадают в выборку и не
// занимают место в пачке; processing-запросы возвращаются всегда.
func (r *PostgresRepository) GetRedemptionsForFulfillment(ctx context.Context, limit int) ([]model.Redemption, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT rd.id, rd.teammate_id, rd.organization_id, rd.reward_id, rd.points_spent, rd.status,
		        rd.fulfilled_at, rd.external_reference, rd.notes, rd.created_at
		 FROM redemptions rd
		 LEFT JOIN ledgers l ON l.teammate_id = rd.teammate_id AND l.organization_id = rd.organization_id
		 WHERE rd.status = $2
		    OR (rd.status = $1 AND COALESCE(l.points_to_spend, 0) >= rd.points_spent)
		 ORDER BY rd.created_at
		 LIMIT $3`,
		string(model.RedemptionStatusPending), string(model.RedemptionStatusProcessing), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select redemptions for fulfillment: %w", err)
	}
	defer rows.Close()

	return scanRedemptions(rows)
}

func scanRedemptions(rows pgx.Rows) ([]model.Redemption, error) {
	var res []model.Redemption
	for rows.Next() {
		var rd model.Redemption
		err := rows.Scan(&rd.ID, &rd.TeammateID, &rd.OrganizationID, &rd.RewardID, &rd.PointsSpent, &rd.Status,
			&rd.FulfilledAt, &rd.ExternalReference, &rd.Notes, &rd.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan redemption: %w", err)
		}
		res = append(res, rd)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// UpdateRedemptionStatus переводит запрос в указанный статус с дописыванием
// заметки. Допустимые исходные статусы выводятся из модели; условие в SQL
// делает проверку и смену статуса атомарными.
func (r *PostgresRepository) UpdateRedemptionStatus(ctx context.Context, id int64, to model.RedemptionStatus, note string) error {
	var from []string
	for _, s := range allRedemptionStatuses {
		if s.CanTransition(to) {
			from = append(from, string(s))
		}
	}

	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE redemptions
		 SET status = $2,
		     notes = CASE WHEN $3 = '' THEN notes
		                  WHEN notes = '' THEN $3
		                  ELSE notes || E'\n' || $3 END
		 WHERE id = $1 AND status = ANY($4)`,
		id, string(to), note, from,
	)
	if err != nil {
		return fmt.Errorf("update redemption status: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return r.explainStatusConflict(ctx, id, to)
	}

	return nil
}

func (r *PostgresRepository) explainStatusConflict(ctx context.Context, id int64, to model.RedemptionStatus) error {
	var current string
	err := r.pool.QueryRow(ctx, `SELECT status FROM redemptions WHERE id = $1`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: id %d", ErrRedemptionNotFound, id)
		}
		return fmt.Errorf("get redemption status: %w", err)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, current, to)
}

// FulfillRedemption исполняет запрос на награду: переводит его в fulfilled,
// создаёт списывающую транзакцию и применяет её к леджеру — всё в одной
// единице работы. Уникальный индекс по redemption_id гарантирует не более
// одного списания на запрос. При нехватке баллов вся операция откатывается
// и запрос остаётся в прежнем статусе.
func (r *PostgresRepository) FulfillRedemption(ctx context.Context, id int64, externalRef string) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var (
			teammateID     int64
			organizationID int64
			points         decimal.Decimal
		)
		err = tx.QueryRow(ctx,
			`UPDATE redemptions
			 SET status = $2, fulfilled_at = now(), external_reference = $3
			 WHERE id = $1 AND status IN ($4, $5)
			 RETURNING teammate_id, organization_id, points_spent`,
			id, string(model.RedemptionStatusFulfilled), externalRef,
			string(model.RedemptionStatusPending), string(model.RedemptionStatusProcessing),
		).Scan(&teammateID, &organizationID, &points)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return r.explainStatusConflict(ctx, id, model.RedemptionStatusFulfilled)
			}
			return fmt.Errorf("fulfill redemption: %w", err)
		}

		debit := points.Neg()

		_, err = tx.Exec(ctx,
			`INSERT INTO kudos_transactions
			 (kind, teammate_id, organization_id, points_to_spend_delta, redemption_id, applied_at)
			 VALUES ($1, $2, $3, $4, $5, now())`,
			string(model.KindRedemption), teammateID, organizationID, debit, id,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
				return fmt.Errorf("%w: redemption %d already debited", ErrInvalidStateTransition, id)
			}
			return fmt.Errorf("insert debit transaction: %w", err)
		}

		if err := r.applyDeltasTx(ctx, tx, teammateID, organizationID, decimal.Zero, debit); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
}

// CreateReward добавляет награду в каталог.
func (r *PostgresRepository) CreateReward(ctx context.Context, rw model.Reward) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO rewards (organization_id, name, cost_in_points, reward_type, provider, external_id)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		rw.OrganizationID, rw.Name, rw.CostInPoints, string(rw.RewardType), rw.Provider, rw.ExternalID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert reward: %w", err)
	}
	return id, nil
}

// GetRewardByID возвращает награду по идентификатору.
func (r *PostgresRepository) GetRewardByID(ctx context.Context, id int64) (*model.Reward, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, organization_id, name, cost_in_points, reward_type, active, provider, external_id, created_at
		 FROM rewards WHERE id = $1`,
		id,
	)

	var rw model.Reward
	err := row.Scan(&rw.ID, &rw.OrganizationID, &rw.Name, &rw.CostInPoints, &rw.RewardType, &rw.Active,
		&rw.Provider, &rw.ExternalID, &rw.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRewardNotFound
		}
		return nil, fmt.Errorf("get reward: %w", err)
	}

	return &rw, nil
}

// GetActiveRewards возвращает доступные награды организации.
func (r *PostgresRepository) GetActiveRewards(ctx context.Context, organizationID int64) ([]model.Reward, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, organization_id, name, cost_in_points, reward_type, active, provider, external_id, created_at
		 FROM rewards
		 WHERE organization_id = $1 AND active
		 ORDER BY name`,
		organizationID,
	)
	if err != nil {
		return nil, fmt.Errorf("select rewards: %w", err)
	}
	defer rows.Close()

	var res []model.Reward
	for rows.Next() {
		var rw model.Reward
		err := rows.Scan(&rw.ID, &rw.OrganizationID, &rw.Name, &rw.CostInPoints, &rw.RewardType, &rw.Active,
			&rw.Provider, &rw.ExternalID, &rw.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		res = append(res, rw)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// DeactivateReward снимает награду с каталога. Строка остаётся: на неё могут
// ссылаться запросы и транзакции.
func (r *PostgresRepository) DeactivateReward(ctx context.Context, id int64) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE rewards SET active = FALSE WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deactivate reward: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrRewardNotFound, id)
	}

	return nil
}
