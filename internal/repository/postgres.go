// Package repository содержит реализацию хранилища леджера в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/swedenfix/goldledger/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrActorExists возвращается при попытке создать второй счёт для того же актора.
var (
	ErrActorExists = errors.New("actor already has an account")
	// ErrCodeTaken возвращается при коллизии сгенерированного кода счёта.
	ErrCodeTaken = errors.New("account code already taken")
	// ErrAccountNotFound возвращается, если счёт не найден.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInsufficientFunds возвращается при списании суммы, превышающей баланс.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrWithdrawalNotFound возвращается, если заявка на вывод не найдена.
	ErrWithdrawalNotFound = errors.New("withdrawal request not found")
	// ErrAlreadyResolved возвращается при повторном решении по заявке.
	ErrAlreadyResolved = errors.New("withdrawal request already resolved")
	// ErrStoreUnavailable возвращается при недоступности хранилища; не путать
	// с отсутствием записи.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// PostgresRepository предоставляет доступ к хранилищу леджера в PostgreSQL.
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

// withRetry повторяет операцию при сбоях сериализации и дедлоках.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(500*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn()
		if err == nil {
			return nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) &&
			(pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected) {
			return retry.RetryableError(err)
		}

		return err
	})
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// wrapStoreErr помечает сетевые сбои как ErrStoreUnavailable, чтобы граница
// не интерпретировала их как отсутствие счёта или нулевой баланс.
func wrapStoreErr(op string, err error) error {
	if isConnectionError(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateAccount сохраняет новый счёт с нулевым балансом.
func (r *PostgresRepository) CreateAccount(ctx context.Context, acc model.Account) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO accounts (code, actor_id, display_name, role, balance) VALUES ($1, $2, $3, $4, 0)`,
		acc.Code, acc.ActorID, acc.DisplayName, acc.Role,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			if pgErr.ConstraintName == "accounts_pkey" {
				return fmt.Errorf("%w: %s", ErrCodeTaken, acc.Code)
			}
			return fmt.Errorf("%w: %d", ErrActorExists, acc.ActorID)
		}
		return wrapStoreErr("create account", err)
	}
	return nil
}

const accountColumns = `code, actor_id, display_name, role, balance, created_at`

func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	err := row.Scan(&a.Code, &a.ActorID, &a.DisplayName, &a.Role, &a.BalanceCents, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetByActorID возвращает счёт по идентификатору актора.
func (r *PostgresRepository) GetByActorID(ctx context.Context, actorID int64) (*model.Account, error) {
	acc, err := scanAccount(r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE actor_id = $1`, actorID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, wrapStoreErr("get account by actor", err)
	}
	return acc, nil
}

// GetByCode возвращает счёт по его коду.
func (r *PostgresRepository) GetByCode(ctx context.Context, code string) (*model.Account, error) {
	acc, err := scanAccount(r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE code = $1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, wrapStoreErr("get account by code", err)
	}
	return acc, nil
}

// ApplyDelta атомарно изменяет баланс счёта на delta и возвращает новый баланс.
// Условие balance + delta >= 0 проверяется тем же UPDATE, что исключает
// потерянные обновления при конкурирующих списаниях.
func (r *PostgresRepository) ApplyDelta(ctx context.Context, code string, delta int64) (int64, error) {
	var newBalance int64

	err := r.withRetry(ctx, func() error {
		err := r.pool.QueryRow(ctx,
			`UPDATE accounts SET balance = balance + $2 WHERE code = $1 AND balance + $2 >= 0 RETURNING balance`,
			code, delta,
		).Scan(&newBalance)
		if err == nil {
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		// UPDATE не затронул строк: либо счёта нет, либо не хватает средств.
		var exists bool
		if err := r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM accounts WHERE code = $1)`, code,
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrAccountNotFound
		}
		return ErrInsufficientFunds
	})
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) || errors.Is(err, ErrInsufficientFunds) {
			return 0, err
		}
		return 0, wrapStoreErr("apply delta", err)
	}

	return newBalance, nil
}

// Transfer атомарно переводит amount с одного счёта на другой в одной транзакции.
// Строки блокируются FOR UPDATE в порядке кодов, чтобы исключить дедлоки
// встречных переводов.
func (r *PostgresRepository) Transfer(ctx context.Context, fromCode, toCode string, amount int64) (senderBalance, receiverBalance int64, err error) {
	err = r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		first, second := fromCode, toCode
		if first > second {
			first, second = second, first
		}

		for _, code := range []string{first, second} {
			var dummy int
			if err := tx.QueryRow(ctx,
				`SELECT 1 FROM accounts WHERE code = $1 FOR UPDATE`, code,
			).Scan(&dummy); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return ErrAccountNotFound
				}
				return fmt.Errorf("lock account: %w", err)
			}
		}

		err = tx.QueryRow(ctx,
			`UPDATE accounts SET balance = balance - $2 WHERE code = $1 AND balance >= $2 RETURNING balance`,
			fromCode, amount,
		).Scan(&senderBalance)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrInsufficientFunds
			}
			return fmt.Errorf("debit sender: %w", err)
		}

		err = tx.QueryRow(ctx,
			`UPDATE accounts SET balance = balance + $2 WHERE code = $1 RETURNING balance`,
			toCode, amount,
		).Scan(&receiverBalance)
		if err != nil {
			return fmt.Errorf("credit receiver: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) || errors.Is(err, ErrInsufficientFunds) {
			return 0, 0, err
		}
		return 0, 0, wrapStoreErr("transfer", err)
	}

	return senderBalance, receiverBalance, nil
}

// ListAll возвращает все счета в порядке их создания.
func (r *PostgresRepository) ListAll(ctx context.Context) ([]model.Account, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+accountColumns+` FROM accounts ORDER BY id`)
	if err != nil {
		return nil, wrapStoreErr("list accounts", err)
	}
	defer rows.Close()

	var res []model.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		res = append(res, *acc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// escapeLike экранирует метасимволы шаблона LIKE в пользовательском вводе.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// SearchByName возвращает счета, чьё имя содержит подстроку без учёта регистра.
// Счёт самого ищущего исключается, результат ограничен limit записями
// в порядке создания счетов.
func (r *PostgresRepository) SearchByName(ctx context.Context, substring string, excludeActorID int64, limit int) ([]model.Account, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+accountColumns+`
		 FROM accounts
		 WHERE display_name ILIKE '%' || $1 || '%' AND actor_id <> $2
		 ORDER BY id
		 LIMIT $3`,
		escapeLike(substring), excludeActorID, limit,
	)
	if err != nil {
		return nil, wrapStoreErr("search accounts", err)
	}
	defer rows.Close()

	var res []model.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		res = append(res, *acc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateWithdrawal сохраняет новую заявку на вывод средств в статусе PENDING.
func (r *PostgresRepository) CreateWithdrawal(ctx context.Context, req model.WithdrawalRequest) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO withdrawal_requests (id, account_code, amount, status) VALUES ($1, $2, $3, $4)`,
		req.ID, req.AccountCode, req.AmountCents, string(model.WithdrawalStatusPending),
	)
	if err != nil {
		return wrapStoreErr("create withdrawal", err)
	}
	return nil
}

// GetWithdrawal возвращает заявку на вывод по идентификатору.
func (r *PostgresRepository) GetWithdrawal(ctx context.Context, id uuid.UUID) (*model.WithdrawalRequest, error) {
	var (
		req    model.WithdrawalRequest
		status string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, account_code, amount, status, created_at, resolved_at, resolved_by
		 FROM withdrawal_requests WHERE id = $1`, id,
	).Scan(&req.ID, &req.AccountCode, &req.AmountCents, &status, &req.CreatedAt, &req.ResolvedAt, &req.ResolvedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, wrapStoreErr("get withdrawal", err)
	}

	req.Status = model.WithdrawalStatus(status)
	return &req, nil
}

// ApproveWithdrawal атомарно списывает сумму заявки и переводит её в статус
// APPROVED. Списание, смена статуса и запись в журнал выполняются в одной
// транзакции: заявка либо остаётся PENDING, либо оплачивается ровно один раз.
func (r *PostgresRepository) ApproveWithdrawal(ctx context.Context, id uuid.UUID, adminID int64, adminName string) (*model.WithdrawalRequest, *model.Account, error) {
	var (
		req model.WithdrawalRequest
		acc *model.Account
	)

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var status string
		err = tx.QueryRow(ctx,
			`SELECT id, account_code, amount, status, created_at
			 FROM withdrawal_requests WHERE id = $1 FOR UPDATE`, id,
		).Scan(&req.ID, &req.AccountCode, &req.AmountCents, &status, &req.CreatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrWithdrawalNotFound
			}
			return fmt.Errorf("lock withdrawal: %w", err)
		}
		if model.WithdrawalStatus(status) != model.WithdrawalStatusPending {
			return ErrAlreadyResolved
		}

		// Баланс мог измениться с момента подачи заявки; списание условное.
		acc, err = scanAccount(tx.QueryRow(ctx,
			`UPDATE accounts SET balance = balance - $2
			 WHERE code = $1 AND balance >= $2
			 RETURNING `+accountColumns,
			req.AccountCode, req.AmountCents,
		))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrInsufficientFunds
			}
			return fmt.Errorf("debit account: %w", err)
		}

		var resolvedAt time.Time
		err = tx.QueryRow(ctx,
			`UPDATE withdrawal_requests
			 SET status = $2, resolved_at = now(), resolved_by = $3
			 WHERE id = $1 AND status = $4
			 RETURNING resolved_at`,
			id, string(model.WithdrawalStatusApproved), adminID, string(model.WithdrawalStatusPending),
		).Scan(&resolvedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrAlreadyResolved
			}
			return fmt.Errorf("resolve withdrawal: %w", err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO history (account_name, admin_name, amount) VALUES ($1, $2, $3)`,
			acc.DisplayName, adminName, req.AmountCents,
		)
		if err != nil {
			return fmt.Errorf("append history: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		req.Status = model.WithdrawalStatusApproved
		req.ResolvedAt = &resolvedAt
		req.ResolvedBy = &adminID
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrWithdrawalNotFound) || errors.Is(err, ErrAlreadyResolved) || errors.Is(err, ErrInsufficientFunds) {
			return nil, nil, err
		}
		return nil, nil, wrapStoreErr("approve withdrawal", err)
	}

	return &req, acc, nil
}

// RejectWithdrawal переводит заявку в терминальный статус REJECTED без изменения баланса.
func (r *PostgresRepository) RejectWithdrawal(ctx context.Context, id uuid.UUID, adminID int64) (*model.WithdrawalRequest, *model.Account, error) {
	var (
		req model.WithdrawalRequest
		acc *model.Account
	)

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var status string
		err = tx.QueryRow(ctx,
			`SELECT id, account_code, amount, status, created_at
			 FROM withdrawal_requests WHERE id = $1 FOR UPDATE`, id,
		).Scan(&req.ID, &req.AccountCode, &req.AmountCents, &status, &req.CreatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrWithdrawalNotFound
			}
			return fmt.Errorf("lock withdrawal: %w", err)
		}
		if model.WithdrawalStatus(status) != model.WithdrawalStatusPending {
			return ErrAlreadyResolved
		}

		var resolvedAt time.Time
		err = tx.QueryRow(ctx,
			`UPDATE withdrawal_requests
			 SET status = $2, resolved_at = now(), resolved_by = $3
			 WHERE id = $1 AND status = $4
			 RETURNING resolved_at`,
			id, string(model.WithdrawalStatusRejected), adminID, string(model.WithdrawalStatusPending),
		).Scan(&resolvedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrAlreadyResolved
			}
			return fmt.Errorf("resolve withdrawal: %w", err)
		}

		acc, err = scanAccount(tx.QueryRow(ctx,
			`SELECT `+accountColumns+` FROM accounts WHERE code = $1`, req.AccountCode))
		if err != nil {
			return fmt.Errorf("get account: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		req.Status = model.WithdrawalStatusRejected
		req.ResolvedAt = &resolvedAt
		req.ResolvedBy = &adminID
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrWithdrawalNotFound) || errors.Is(err, ErrAlreadyResolved) {
			return nil, nil, err
		}
		return nil, nil, wrapStoreErr("reject withdrawal", err)
	}

	return &req, acc, nil
}

// AppendHistory добавляет запись в журнал. Используется административными
// корректировками; выплаты пишут журнал внутри своей транзакции.
func (r *PostgresRepository) AppendHistory(ctx context.Context, entry model.HistoryEntry) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO history (account_name, admin_name, amount) VALUES ($1, $2, $3)`,
		entry.AccountName, entry.AdminName, entry.AmountCents,
	)
	if err != nil {
		return wrapStoreErr("append history", err)
	}
	return nil
}

// ListHistory возвращает последние записи журнала, новые первыми.
func (r *PostgresRepository) ListHistory(ctx context.Context, limit int) ([]model.HistoryEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT occurred_at, account_name, admin_name, amount
		 FROM history ORDER BY occurred_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, wrapStoreErr("list history", err)
	}
	defer rows.Close()

	var res []model.HistoryEntry
	for rows.Next() {
		var e model.HistoryEntry
		if err := rows.Scan(&e.OccurredAt, &e.AccountName, &e.AdminName, &e.AmountCents); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		res = append(res, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// Stats возвращает сводную статистику леджера.
func (r *PostgresRepository) Stats(ctx context.Context) (*model.Stats, error) {
	var s model.Stats

	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(balance), 0) FROM accounts`,
	).Scan(&s.Accounts, &s.TotalCents)
	if err != nil {
		return nil, wrapStoreErr("stats accounts", err)
	}

	err = r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM withdrawal_requests WHERE status = $1`,
		string(model.WithdrawalStatusPending),
	).Scan(&s.PendingWithdrawals)
	if err != nil {
		return nil, wrapStoreErr("stats withdrawals", err)
	}

	return &s, nil
}
