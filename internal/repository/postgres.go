// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/nattapongd/ecoschool-system/internal/model"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке зарегистрировать уже занятый номер ученика.
var (
	ErrUserExists = errors.New("student id already registered")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrDeedNotFound возвращается, если запись о добром деле не найдена.
	ErrDeedNotFound = errors.New("good deed entry not found")
	// ErrDeedAlreadyReviewed возвращается при повторной попытке смены статуса записи.
	ErrDeedAlreadyReviewed = errors.New("good deed entry already reviewed")
)

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

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		// Если ошибка контекста — выходим сразу
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			// Ретраи полезны для Serialization Failure и Deadlocks, сетевыми
			// переподключениями pgxpool занимается сам.
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

const userColumns = `id, student_id, full_name, password_hash, role, good_deed_points, garbage_stamps, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	var role string
	err := row.Scan(&u.ID, &u.StudentID, &u.FullName, &u.PasswordHash, &role, &u.GoodDeedPoints, &u.GarbageStamps, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	u.Role = model.Role(role)
	return &u, nil
}

// CreateUser создаёт нового пользователя с нулевыми балансами.
func (r *PostgresRepository) CreateUser(ctx context.Context, studentID, fullName string, passwordHash []byte, role model.Role) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO users (student_id, full_name, password_hash, role)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+userColumns,
		studentID, fullName, passwordHash, string(role),
	)

	u, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, fmt.Errorf("%w: %s", ErrUserExists, studentID)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// GetUserByID возвращает пользователя по внутреннему идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetUserByStudentID возвращает пользователя по номеру ученика.
func (r *PostgresRepository) GetUserByStudentID(ctx context.Context, studentID string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE student_id = $1`,
		studentID,
	)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// CreateGoodDeed добавляет запись о добром деле со статусом pending.
// Балансы пользователя запись не меняет.
func (r *PostgresRepository) CreateGoodDeed(ctx context.Context, userID int64, deedType model.DeedType, details, imageURL string) (*model.GoodDeedEntry, error) {
	var e model.GoodDeedEntry
	var dtype, status string

	err := r.pool.QueryRow(ctx,
		`INSERT INTO good_deeds (user_id, type, details, image_url)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, user_id, type, details, image_url, status, created_at`,
		userID, string(deedType), details, imageURL,
	).Scan(&e.ID, &e.UserID, &dtype, &e.Details, &e.ImageURL, &status, &e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert good deed: %w", err)
	}

	e.Type = model.DeedType(dtype)
	e.Status = model.DeedStatus(status)
	return &e, nil
}

// GetGoodDeedsByUser возвращает записи о добрых делах пользователя, новые первыми.
func (r *PostgresRepository) GetGoodDeedsByUser(ctx context.Context, userID int64) ([]model.GoodDeedEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, type, details, image_url, status, created_at
		 FROM good_deeds
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select good deeds: %w", err)
	}
	defer rows.Close()

	var res []model.GoodDeedEntry
	for rows.Next() {
		var e model.GoodDeedEntry
		var dtype, status string
		if err := rows.Scan(&e.ID, &e.UserID, &dtype, &e.Details, &e.ImageURL, &status, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan good deed: %w", err)
		}
		e.Type = model.DeedType(dtype)
		e.Status = model.DeedStatus(status)
		res = append(res, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// UpdateGoodDeedStatus переводит запись из pending в указанный статус.
// Повторная проверка уже рассмотренной записи запрещена.
func (r *PostgresRepository) UpdateGoodDeedStatus(ctx context.Context, entryID int64, status model.DeedStatus) (*model.GoodDeedEntry, error) {
	var e model.GoodDeedEntry
	var dtype, st string

	err := r.pool.QueryRow(ctx,
		`UPDATE good_deeds
		 SET status = $2
		 WHERE id = $1 AND status = $3
		 RETURNING id, user_id, type, details, image_url, status, created_at`,
		entryID, string(status), string(model.DeedStatusPending),
	).Scan(&e.ID, &e.UserID, &dtype, &e.Details, &e.ImageURL, &st, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Либо записи нет, либо она уже рассмотрена — различаем отдельным запросом.
			var exists bool
			if chkErr := r.pool.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM good_deeds WHERE id = $1)`, entryID,
			).Scan(&exists); chkErr != nil {
				return nil, fmt.Errorf("check good deed: %w", chkErr)
			}
			if exists {
				return nil, ErrDeedAlreadyReviewed
			}
			return nil, ErrDeedNotFound
		}
		return nil, fmt.Errorf("update good deed status: %w", err)
	}

	e.Type = model.DeedType(dtype)
	e.Status = model.DeedStatus(st)
	return &e, nil
}

// AddGarbageStamps в одной транзакции увеличивает баланс марок пользователя и
// добавляет строку в журнал начислений. Инкремент выполняется на стороне БД,
// чтобы параллельные начисления не теряли обновления.
func (r *PostgresRepository) AddGarbageStamps(ctx context.Context, userID int64, stamps int, description string) (*model.User, *model.GarbageTransaction, error) {
	var u *model.User
	var t model.GarbageTransaction

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		row := tx.QueryRow(ctx,
			`UPDATE users
			 SET garbage_stamps = garbage_stamps + $2
			 WHERE id = $1
			 RETURNING `+userColumns,
			userID, stamps,
		)

		u, err = scanUser(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrUserNotFound
			}
			return fmt.Errorf("increment garbage stamps: %w", err)
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO garbage_transactions (user_id, stamps_added, description)
			 VALUES ($1, $2, $3)
			 RETURNING id, user_id, stamps_added, description, created_at`,
			userID, stamps, description,
		).Scan(&t.ID, &t.UserID, &t.StampsAdded, &t.Description, &t.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert garbage transaction: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return u, &t, nil
}

// GetGarbageTransactionsByUser возвращает журнал начислений марок пользователя, новые первыми.
func (r *PostgresRepository) GetGarbageTransactionsByUser(ctx context.Context, userID int64) ([]model.GarbageTransaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, stamps_added, description, created_at
		 FROM garbage_transactions
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select garbage transactions: %w", err)
	}
	defer rows.Close()

	var res []model.GarbageTransaction
	for rows.Next() {
		var t model.GarbageTransaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.StampsAdded, &t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan garbage transaction: %w", err)
		}
		res = append(res, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// AddGoodDeedPoints атомарно увеличивает баланс баллов пользователя на стороне БД.
func (r *PostgresRepository) AddGoodDeedPoints(ctx context.Context, userID int64, points int) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE users
		 SET good_deed_points = good_deed_points + $2
		 WHERE id = $1
		 RETURNING `+userColumns,
		userID, points,
	)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("increment good deed points: %w", err)
	}
	return u, nil
}

// CreateIssue добавляет обращение пользователя со статусом pending.
func (r *PostgresRepository) CreateIssue(ctx context.Context, userID int64, category, details, imageURL string) (*model.Issue, error) {
	var is model.Issue
	var status string

	err := r.pool.QueryRow(ctx,
		`INSERT INTO issues (user_id, category, details, image_url)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, user_id, category, details, image_url, status, created_at`,
		userID, category, details, imageURL,
	).Scan(&is.ID, &is.UserID, &is.Category, &is.Details, &is.ImageURL, &status, &is.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert issue: %w", err)
	}

	is.Status = model.IssueStatus(status)
	return &is, nil
}

// GetIssuesByUser возвращает обращения пользователя, новые первыми.
func (r *PostgresRepository) GetIssuesByUser(ctx context.Context, userID int64) ([]model.Issue, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, category, details, image_url, status, created_at
		 FROM issues
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select issues: %w", err)
	}
	defer rows.Close()

	var res []model.Issue
	for rows.Next() {
		var is model.Issue
		var status string
		if err := rows.Scan(&is.ID, &is.UserID, &is.Category, &is.Details, &is.ImageURL, &status, &is.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		is.Status = model.IssueStatus(status)
		res = append(res, is)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateAnnouncement добавляет объявление комитета.
func (r *PostgresRepository) CreateAnnouncement(ctx context.Context, title, content string, authorRole model.Role) (*model.Announcement, error) {
	var a model.Announcement
	var role string

	err := r.pool.QueryRow(ctx,
		`INSERT INTO announcements (title, content, author_role)
		 VALUES ($1, $2, $3)
		 RETURNING id, title, content, author_role, created_at`,
		title, content, string(authorRole),
	).Scan(&a.ID, &a.Title, &a.Content, &role, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert announcement: %w", err)
	}

	a.AuthorRole = model.Role(role)
	return &a, nil
}

// GetAnnouncements возвращает все объявления, новые первыми.
func (r *PostgresRepository) GetAnnouncements(ctx context.Context) ([]model.Announcement, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, content, author_role, created_at
		 FROM announcements
		 ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("select announcements: %w", err)
	}
	defer rows.Close()

	var res []model.Announcement
	for rows.Next() {
		var a model.Announcement
		var role string
		if err := rows.Scan(&a.ID, &a.Title, &a.Content, &role, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan announcement: %w", err)
		}
		a.AuthorRole = model.Role(role)
		res = append(res, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
