package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"telegram_loyalty_bot/internal/storage/models"
	"telegram_loyalty_bot/pkg/errors"
)

// PostgresStorage реализует интерфейс Storage поверх pgxpool
type PostgresStorage struct {
	pool *pgxpool.Pool
}

const (
	userColumns   = `telegram_id, username, first_name, last_name, source, staff_id, referrer_id, subscribed, created_at, updated_at, last_seen_at`
	staffColumns  = `id, telegram_id, name, position, code, active, created_at, updated_at`
	couponColumns = `id, user_id, code, discount, status, issued_at, expires_at, redeemed_at, redeemed_by`
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		telegram_id BIGINT PRIMARY KEY,
		username VARCHAR(255) NOT NULL DEFAULT '',
		first_name VARCHAR(255) NOT NULL DEFAULT '',
		last_name VARCHAR(255) NOT NULL DEFAULT '',
		source VARCHAR(128) NOT NULL DEFAULT 'direct',
		staff_id BIGINT,
		referrer_id BIGINT,
		subscribed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_seen_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS staff (
		id BIGSERIAL PRIMARY KEY,
		telegram_id BIGINT UNIQUE NOT NULL,
		name VARCHAR(255) NOT NULL,
		position VARCHAR(255) NOT NULL DEFAULT '',
		code VARCHAR(64) UNIQUE NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS coupons (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT UNIQUE NOT NULL REFERENCES users(telegram_id) ON DELETE CASCADE,
		code VARCHAR(32) UNIQUE NOT NULL,
		discount INTEGER NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'issued',
		issued_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		expires_at TIMESTAMPTZ,
		redeemed_at TIMESTAMPTZ,
		redeemed_by BIGINT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_created_at ON users(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_users_source ON users(source)`,
	`CREATE INDEX IF NOT EXISTS idx_users_staff_id ON users(staff_id)`,
	`CREATE INDEX IF NOT EXISTS idx_coupons_status ON coupons(status)`,
	`CREATE INDEX IF NOT EXISTS idx_coupons_issued_at ON coupons(issued_at)`,
}

// New создает пул соединений, проверяет его и выполняет миграции
func New(ctx context.Context, dsn string, maxConns int) (*PostgresStorage, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}

	if maxConns > 0 {
		poolConfig.MaxConns = int32(maxConns)
	}
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.ErrDatabaseConnection.WithError(err)
	}

	storage := &PostgresStorage{pool: pool}
	if err := storage.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return storage, nil
}

// migrate выполняет миграции базы данных
func (s *PostgresStorage) migrate(ctx context.Context) error {
	for _, query := range migrations {
		if _, err := s.pool.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute migration query: %w", err)
		}
	}

	// Сдвигаем последовательности после импорта строк с явными ID
	for _, table := range []string{"staff", "coupons"} {
		query := fmt.Sprintf(
			`SELECT setval(pg_get_serial_sequence('%s', 'id'), COALESCE((SELECT MAX(id) FROM %s), 0) + 1, false)`,
			table, table,
		)
		if _, err := s.pool.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to sync %s sequence: %w", table, err)
		}
	}

	return nil
}

// Close закрывает пул соединений
func (s *PostgresStorage) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Ping проверяет подключение к базе данных
func (s *PostgresStorage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func scanUser(row pgx.Row) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(
		&u.TelegramID, &u.Username, &u.FirstName, &u.LastName, &u.Source,
		&u.StaffID, &u.ReferrerID, &u.Subscribed,
		&u.CreatedAt, &u.UpdatedAt, &u.LastSeenAt,
	)
	return u, err
}

func scanStaff(row pgx.Row) (*models.Staff, error) {
	st := &models.Staff{}
	err := row.Scan(
		&st.ID, &st.TelegramID, &st.Name, &st.Position, &st.Code, &st.Active,
		&st.CreatedAt, &st.UpdatedAt,
	)
	return st, err
}

func scanCoupon(row pgx.Row) (*models.Coupon, error) {
	c := &models.Coupon{}
	err := row.Scan(
		&c.ID, &c.UserID, &c.Code, &c.Discount, &c.Status,
		&c.IssuedAt, &c.ExpiresAt, &c.RedeemedAt, &c.RedeemedBy,
	)
	return c, err
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

// CreateUser сохраняет гостя, если его еще нет
func (s *PostgresStorage) CreateUser(ctx context.Context, user *models.User) (bool, error) {
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	user.LastSeenAt = now
	if user.Source == "" {
		user.Source = models.SourceDirect
	}

	query := `INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (telegram_id) DO NOTHING`

	tag, err := s.pool.Exec(ctx, query,
		user.TelegramID, user.Username, user.FirstName, user.LastName, user.Source,
		user.StaffID, user.ReferrerID, user.Subscribed,
		user.CreatedAt.UTC(), user.UpdatedAt, user.LastSeenAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create user: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// GetUser получает гостя по Telegram ID
func (s *PostgresStorage) GetUser(ctx context.Context, telegramID int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_id = $1`

	user, err := scanUser(s.pool.QueryRow(ctx, query, telegramID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.ErrUserNotFound.WithContext(telegramID)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// UpdateUser обновляет профиль и атрибуцию гостя
func (s *PostgresStorage) UpdateUser(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()

	query := `UPDATE users SET username = $1, first_name = $2, last_name = $3, source = $4,
		staff_id = $5, referrer_id = $6, subscribed = $7, updated_at = $8
		WHERE telegram_id = $9`

	tag, err := s.pool.Exec(ctx, query,
		user.Username, user.FirstName, user.LastName, user.Source,
		user.StaffID, user.ReferrerID, user.Subscribed, user.UpdatedAt,
		user.TelegramID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	return expectRow(tag, errors.ErrUserNotFound.WithContext(user.TelegramID))
}

// TouchUser обновляет время последнего визита
func (s *PostgresStorage) TouchUser(ctx context.Context, telegramID int64, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET last_seen_at = $1 WHERE telegram_id = $2`, orNow(at), telegramID)
	if err != nil {
		return fmt.Errorf("failed to touch user: %w", err)
	}

	return expectRow(tag, errors.ErrUserNotFound.WithContext(telegramID))
}

// SetSubscribed сохраняет результат проверки подписки
func (s *PostgresStorage) SetSubscribed(ctx context.Context, telegramID int64, subscribed bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET subscribed = $1, updated_at = CURRENT_TIMESTAMP WHERE telegram_id = $2`,
		subscribed, telegramID,
	)
	if err != nil {
		return fmt.Errorf("failed to set subscription: %w", err)
	}

	return expectRow(tag, errors.ErrUserNotFound.WithContext(telegramID))
}

// whereBuilder собирает условия с нумерованными плейсхолдерами
type whereBuilder struct {
	conds []string
	args  []interface{}
}

func (w *whereBuilder) add(cond string, args ...interface{}) {
	for _, arg := range args {
		w.args = append(w.args, arg)
		cond = strings.Replace(cond, "?", "$"+strconv.Itoa(len(w.args)), 1)
	}
	w.conds = append(w.conds, cond)
}

func (w *whereBuilder) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// ListUsers возвращает гостей по фильтру в порядке регистрации
func (s *PostgresStorage) ListUsers(ctx context.Context, filter models.UserFilter) ([]*models.User, error) {
	var where whereBuilder
	if !filter.From.IsZero() {
		where.add("created_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		where.add("created_at < ?", filter.To)
	}
	if filter.Source != "" {
		where.add("(source = ? OR source LIKE ?)", filter.Source, filter.Source+":%")
	}

	query := `SELECT ` + userColumns + ` FROM users` + where.String() + ` ORDER BY created_at, telegram_id`

	rows, err := s.pool.Query(ctx, query, where.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

// CreateStaff добавляет сотрудника
func (s *PostgresStorage) CreateStaff(ctx context.Context, staff *models.Staff) error {
	query := `INSERT INTO staff (telegram_id, name, position, code, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING
		RETURNING id, created_at, updated_at`

	err := s.pool.QueryRow(ctx, query,
		staff.TelegramID, staff.Name, staff.Position, staff.Code, staff.Active,
	).Scan(&staff.ID, &staff.CreatedAt, &staff.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := s.GetStaffByTelegramID(ctx, staff.TelegramID); getErr == nil {
				return errors.ErrStaffAlreadyExists.WithContext(staff.TelegramID)
			}
			return errors.ErrStaffCodeTaken.WithContext(staff.Code)
		}
		return fmt.Errorf("failed to create staff: %w", err)
	}

	return nil
}

// GetStaffByCode получает сотрудника по коду QR
func (s *PostgresStorage) GetStaffByCode(ctx context.Context, code string) (*models.Staff, error) {
	staff, err := scanStaff(s.pool.QueryRow(ctx, `SELECT `+staffColumns+` FROM staff WHERE code = $1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.ErrStaffNotFound.WithContext(code)
		}
		return nil, fmt.Errorf("failed to get staff: %w", err)
	}

	return staff, nil
}

// GetStaffByTelegramID получает сотрудника по Telegram ID
func (s *PostgresStorage) GetStaffByTelegramID(ctx context.Context, telegramID int64) (*models.Staff, error) {
	staff, err := scanStaff(s.pool.QueryRow(ctx, `SELECT `+staffColumns+` FROM staff WHERE telegram_id = $1`, telegramID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.ErrStaffNotFound.WithContext(telegramID)
		}
		return nil, fmt.Errorf("failed to get staff: %w", err)
	}

	return staff, nil
}

// ListStaff возвращает всех сотрудников
func (s *PostgresStorage) ListStaff(ctx context.Context) ([]*models.Staff, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+staffColumns+` FROM staff ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list staff: %w", err)
	}
	defer rows.Close()

	var list []*models.Staff
	for rows.Next() {
		staff, err := scanStaff(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan staff: %w", err)
		}
		list = append(list, staff)
	}

	return list, rows.Err()
}

// UpdateStaff обновляет имя, должность, код и активность сотрудника
func (s *PostgresStorage) UpdateStaff(ctx context.Context, staff *models.Staff) error {
	query := `UPDATE staff SET name = $1, position = $2, code = $3, active = $4, updated_at = CURRENT_TIMESTAMP
		WHERE telegram_id = $5
		RETURNING updated_at`

	err := s.pool.QueryRow(ctx, query,
		staff.Name, staff.Position, staff.Code, staff.Active, staff.TelegramID,
	).Scan(&staff.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errors.ErrStaffNotFound.WithContext(staff.TelegramID)
		}
		if isUniqueViolation(err) {
			return errors.ErrStaffCodeTaken.WithContext(staff.Code)
		}
		return fmt.Errorf("failed to update staff: %w", err)
	}

	return nil
}

// DeleteStaff удаляет сотрудника
func (s *PostgresStorage) DeleteStaff(ctx context.Context, telegramID int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM staff WHERE telegram_id = $1`, telegramID)
	if err != nil {
		return fmt.Errorf("failed to delete staff: %w", err)
	}

	return expectRow(tag, errors.ErrStaffNotFound.WithContext(telegramID))
}

// IssueCoupon сохраняет выданный купон
func (s *PostgresStorage) IssueCoupon(ctx context.Context, coupon *models.Coupon) error {
	if coupon.Status == "" {
		coupon.Status = models.CouponIssued
	}
	coupon.IssuedAt = orNow(coupon.IssuedAt)

	query := `INSERT INTO coupons (user_id, code, discount, status, issued_at, expires_at, redeemed_at, redeemed_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT DO NOTHING
		RETURNING id`

	err := s.pool.QueryRow(ctx, query,
		coupon.UserID, coupon.Code, coupon.Discount, coupon.Status,
		coupon.IssuedAt, coupon.ExpiresAt, coupon.RedeemedAt, coupon.RedeemedBy,
	).Scan(&coupon.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := s.GetCouponByUser(ctx, coupon.UserID); getErr == nil {
				return errors.ErrCouponAlreadyIssued.WithContext(coupon.UserID)
			}
			return errors.ErrCouponCodeTaken.WithContext(coupon.Code)
		}
		return fmt.Errorf("failed to issue coupon: %w", err)
	}

	return nil
}

// GetCouponByCode получает купон по коду
func (s *PostgresStorage) GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	coupon, err := scanCoupon(s.pool.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = $1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.ErrCouponNotFound.WithContext(code)
		}
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}

	return coupon, nil
}

// GetCouponByUser получает купон гостя
func (s *PostgresStorage) GetCouponByUser(ctx context.Context, userID int64) (*models.Coupon, error) {
	coupon, err := scanCoupon(s.pool.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE user_id = $1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.ErrCouponNotFound.WithContext(userID)
		}
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}

	return coupon, nil
}

// RedeemCoupon гасит купон, если он выдан и не истек
func (s *PostgresStorage) RedeemCoupon(ctx context.Context, code string, redeemedBy int64, at time.Time) (*models.Coupon, error) {
	at = orNow(at)

	query := `UPDATE coupons SET status = $1, redeemed_at = $2, redeemed_by = $3
		WHERE code = $4 AND status = $5 AND (expires_at IS NULL OR expires_at > $2)
		RETURNING ` + couponColumns

	coupon, err := scanCoupon(s.pool.QueryRow(ctx, query,
		models.CouponRedeemed, at, redeemedBy, code, models.CouponIssued,
	))
	if err == nil {
		return coupon, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to redeem coupon: %w", err)
	}

	existing, getErr := s.GetCouponByCode(ctx, code)
	if getErr != nil {
		return nil, getErr
	}
	if existing.IsRedeemed() {
		return nil, errors.ErrCouponAlreadyRedeemed.WithContext(code)
	}
	if existing.IsExpired(at) {
		return nil, errors.ErrCouponExpired.WithContext(code)
	}
	return nil, errors.ErrCouponNotFound.WithContext(code)
}

// ListCoupons возвращает купоны по фильтру
func (s *PostgresStorage) ListCoupons(ctx context.Context, filter models.CouponFilter) ([]*models.Coupon, error) {
	var where whereBuilder
	if !filter.From.IsZero() {
		where.add("issued_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		where.add("issued_at < ?", filter.To)
	}
	if filter.Status != "" {
		where.add("status = ?", filter.Status)
	}

	query := `SELECT ` + couponColumns + ` FROM coupons` + where.String() + ` ORDER BY issued_at, id`

	rows, err := s.pool.Query(ctx, query, where.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list coupons: %w", err)
	}
	defer rows.Close()

	var coupons []*models.Coupon
	for rows.Next() {
		coupon, err := scanCoupon(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan coupon: %w", err)
		}
		coupons = append(coupons, coupon)
	}

	return coupons, rows.Err()
}

// ImportUser переносит гостя как есть, пропуская существующих
func (s *PostgresStorage) ImportUser(ctx context.Context, user *models.User) (bool, error) {
	query := `INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (telegram_id) DO NOTHING`

	tag, err := s.pool.Exec(ctx, query,
		user.TelegramID, user.Username, user.FirstName, user.LastName, user.Source,
		user.StaffID, user.ReferrerID, user.Subscribed,
		orNow(user.CreatedAt), orNow(user.UpdatedAt), orNow(user.LastSeenAt),
	)
	if err != nil {
		return false, fmt.Errorf("failed to import user: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// ImportStaff переносит сотрудника, пропуская уже существующий telegram_id.
// Исходный ID сохраняется, если он свободен, иначе берется следующий за максимальным.
func (s *PostgresStorage) ImportStaff(ctx context.Context, staff *models.Staff) (bool, error) {
	query := `INSERT INTO staff (` + staffColumns + `)
		VALUES (CASE WHEN EXISTS (SELECT 1 FROM staff WHERE id = $1)
		             THEN (SELECT MAX(id) + 1 FROM staff) ELSE $1 END,
		        $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (telegram_id) DO NOTHING`

	tag, err := s.pool.Exec(ctx, query,
		staff.ID, staff.TelegramID, staff.Name, staff.Position, staff.Code, staff.Active,
		orNow(staff.CreatedAt), orNow(staff.UpdatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("failed to import staff: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// ImportCoupon переносит купон со статусом, пропуская уже существующий код.
// Исходный ID сохраняется, если он свободен, иначе берется следующий за максимальным.
func (s *PostgresStorage) ImportCoupon(ctx context.Context, coupon *models.Coupon) (bool, error) {
	query := `INSERT INTO coupons (` + couponColumns + `)
		VALUES (CASE WHEN EXISTS (SELECT 1 FROM coupons WHERE id = $1)
		             THEN (SELECT MAX(id) + 1 FROM coupons) ELSE $1 END,
		        $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (code) DO NOTHING`

	tag, err := s.pool.Exec(ctx, query,
		coupon.ID, coupon.UserID, coupon.Code, coupon.Discount, coupon.Status,
		orNow(coupon.IssuedAt), coupon.ExpiresAt, coupon.RedeemedAt, coupon.RedeemedBy,
	)
	if err != nil {
		return false, fmt.Errorf("failed to import coupon: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// SyncSequences выравнивает последовательности после импорта
func (s *PostgresStorage) SyncSequences(ctx context.Context) error {
	return s.migrate(ctx)
}

func expectRow(tag pgconn.CommandTag, notFound error) error {
	if tag.RowsAffected() == 0 {
		return notFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
