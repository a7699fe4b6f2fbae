package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"telegram_loyalty_bot/internal/storage/models"
	"telegram_loyalty_bot/pkg/errors"

	_ "modernc.org/sqlite"
)

// SQLiteStorage реализует интерфейс Storage для SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// rowScanner объединяет *sql.Row и *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const (
	userColumns   = `telegram_id, username, first_name, last_name, source, staff_id, referrer_id, subscribed, created_at, updated_at, last_seen_at`
	staffColumns  = `id, telegram_id, name, position, code, active, created_at, updated_at`
	couponColumns = `id, user_id, code, discount, status, issued_at, expires_at, redeemed_at, redeemed_by`
)

// New создает новое подключение к SQLite базе данных
func New(dbPath string) (*SQLiteStorage, error) {
	// Время пишется в сортируемом формате, чтобы фильтры по датам работали в SQL
	dsn := dbPath
	if !strings.Contains(dsn, "?") {
		dsn += "?_time_format=sqlite"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка подключения
	db.SetMaxOpenConns(1) // SQLite поддерживает только одно write-подключение
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	storage := &SQLiteStorage{db: db}

	if err := storage.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return storage, nil
}

// migrate выполняет миграции базы данных
func (s *SQLiteStorage) migrate() error {
	// Включаем WAL mode для лучшей конкурентности
	if _, err := s.db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return fmt.Errorf("failed to set WAL mode: %w", err)
	}

	// Включаем foreign keys
	if _, err := s.db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			telegram_id INTEGER PRIMARY KEY,
			username TEXT NOT NULL DEFAULT '',
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT 'direct',
			staff_id INTEGER,
			referrer_id INTEGER,
			subscribed INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			last_seen_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS staff (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			telegram_id INTEGER UNIQUE NOT NULL,
			name TEXT NOT NULL,
			position TEXT NOT NULL DEFAULT '',
			code TEXT UNIQUE NOT NULL,
			active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS coupons (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER UNIQUE NOT NULL,
			code TEXT UNIQUE NOT NULL,
			discount INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'issued',
			issued_at DATETIME NOT NULL,
			expires_at DATETIME,
			redeemed_at DATETIME,
			redeemed_by INTEGER,
			FOREIGN KEY(user_id) REFERENCES users(telegram_id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_created_at ON users(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_users_source ON users(source)`,
		`CREATE INDEX IF NOT EXISTS idx_users_staff_id ON users(staff_id)`,
		`CREATE INDEX IF NOT EXISTS idx_coupons_status ON coupons(status)`,
		`CREATE INDEX IF NOT EXISTS idx_coupons_issued_at ON coupons(issued_at)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration query: %w", err)
		}
	}

	return nil
}

// Close закрывает подключение к базе данных
func (s *SQLiteStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping проверяет подключение к базе данных
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ts приводит время к UTC без монотонных часов
func ts(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func tsPtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func scanUser(row rowScanner) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(
		&u.TelegramID, &u.Username, &u.FirstName, &u.LastName, &u.Source,
		&u.StaffID, &u.ReferrerID, &u.Subscribed,
		&u.CreatedAt, &u.UpdatedAt, &u.LastSeenAt,
	)
	return u, err
}

func scanStaff(row rowScanner) (*models.Staff, error) {
	st := &models.Staff{}
	err := row.Scan(
		&st.ID, &st.TelegramID, &st.Name, &st.Position, &st.Code, &st.Active,
		&st.CreatedAt, &st.UpdatedAt,
	)
	return st, err
}

func scanCoupon(row rowScanner) (*models.Coupon, error) {
	c := &models.Coupon{}
	err := row.Scan(
		&c.ID, &c.UserID, &c.Code, &c.Discount, &c.Status,
		&c.IssuedAt, &c.ExpiresAt, &c.RedeemedAt, &c.RedeemedBy,
	)
	return c, err
}

// CreateUser сохраняет гостя, если его еще нет
func (s *SQLiteStorage) CreateUser(ctx context.Context, user *models.User) (bool, error) {
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
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			  ON CONFLICT(telegram_id) DO NOTHING`

	result, err := s.db.ExecContext(ctx, query,
		user.TelegramID, user.Username, user.FirstName, user.LastName, user.Source,
		user.StaffID, user.ReferrerID, user.Subscribed,
		ts(user.CreatedAt), ts(user.UpdatedAt), ts(user.LastSeenAt),
	)
	if err != nil {
		return false, fmt.Errorf("failed to create user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rowsAffected > 0, nil
}

// GetUser получает гостя по Telegram ID
func (s *SQLiteStorage) GetUser(ctx context.Context, telegramID int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_id = ?`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, telegramID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrUserNotFound.WithContext(telegramID)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// UpdateUser обновляет профиль и атрибуцию гостя
func (s *SQLiteStorage) UpdateUser(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()

	query := `UPDATE users SET username = ?, first_name = ?, last_name = ?, source = ?,
			  staff_id = ?, referrer_id = ?, subscribed = ?, updated_at = ?
			  WHERE telegram_id = ?`

	result, err := s.db.ExecContext(ctx, query,
		user.Username, user.FirstName, user.LastName, user.Source,
		user.StaffID, user.ReferrerID, user.Subscribed, user.UpdatedAt,
		user.TelegramID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	return expectRow(result, errors.ErrUserNotFound.WithContext(user.TelegramID))
}

// TouchUser обновляет время последнего визита
func (s *SQLiteStorage) TouchUser(ctx context.Context, telegramID int64, at time.Time) error {
	query := `UPDATE users SET last_seen_at = ? WHERE telegram_id = ?`

	result, err := s.db.ExecContext(ctx, query, ts(at), telegramID)
	if err != nil {
		return fmt.Errorf("failed to touch user: %w", err)
	}

	return expectRow(result, errors.ErrUserNotFound.WithContext(telegramID))
}

// SetSubscribed сохраняет результат проверки подписки
func (s *SQLiteStorage) SetSubscribed(ctx context.Context, telegramID int64, subscribed bool) error {
	query := `UPDATE users SET subscribed = ?, updated_at = ? WHERE telegram_id = ?`

	result, err := s.db.ExecContext(ctx, query, subscribed, time.Now().UTC(), telegramID)
	if err != nil {
		return fmt.Errorf("failed to set subscription: %w", err)
	}

	return expectRow(result, errors.ErrUserNotFound.WithContext(telegramID))
}

// ListUsers возвращает гостей по фильтру в порядке регистрации
func (s *SQLiteStorage) ListUsers(ctx context.Context, filter models.UserFilter) ([]*models.User, error) {
	var (
		conds []string
		args  []interface{}
	)
	if !filter.From.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, filter.From.UTC())
	}
	if !filter.To.IsZero() {
		conds = append(conds, "created_at < ?")
		args = append(args, filter.To.UTC())
	}
	if filter.Source != "" {
		conds = append(conds, "(source = ? OR source LIKE ?)")
		args = append(args, filter.Source, filter.Source+":%")
	}

	query := `SELECT ` + userColumns + ` FROM users`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at, telegram_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
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
func (s *SQLiteStorage) CreateStaff(ctx context.Context, staff *models.Staff) error {
	now := time.Now().UTC()
	staff.CreatedAt = now
	staff.UpdatedAt = now

	query := `INSERT INTO staff (telegram_id, name, position, code, active, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?)
			  ON CONFLICT DO NOTHING`

	result, err := s.db.ExecContext(ctx, query,
		staff.TelegramID, staff.Name, staff.Position, staff.Code, staff.Active,
		staff.CreatedAt, staff.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create staff: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return s.staffConflict(ctx, staff)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get staff ID: %w", err)
	}

	staff.ID = id
	return nil
}

// staffConflict определяет, какое уникальное поле вызвало конфликт
func (s *SQLiteStorage) staffConflict(ctx context.Context, staff *models.Staff) error {
	if _, err := s.GetStaffByTelegramID(ctx, staff.TelegramID); err == nil {
		return errors.ErrStaffAlreadyExists.WithContext(staff.TelegramID)
	}
	return errors.ErrStaffCodeTaken.WithContext(staff.Code)
}

// GetStaffByCode получает сотрудника по коду QR
func (s *SQLiteStorage) GetStaffByCode(ctx context.Context, code string) (*models.Staff, error) {
	query := `SELECT ` + staffColumns + ` FROM staff WHERE code = ?`

	staff, err := scanStaff(s.db.QueryRowContext(ctx, query, code))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrStaffNotFound.WithContext(code)
		}
		return nil, fmt.Errorf("failed to get staff: %w", err)
	}

	return staff, nil
}

// GetStaffByTelegramID получает сотрудника по Telegram ID
func (s *SQLiteStorage) GetStaffByTelegramID(ctx context.Context, telegramID int64) (*models.Staff, error) {
	query := `SELECT ` + staffColumns + ` FROM staff WHERE telegram_id = ?`

	staff, err := scanStaff(s.db.QueryRowContext(ctx, query, telegramID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrStaffNotFound.WithContext(telegramID)
		}
		return nil, fmt.Errorf("failed to get staff: %w", err)
	}

	return staff, nil
}

// ListStaff возвращает всех сотрудников
func (s *SQLiteStorage) ListStaff(ctx context.Context) ([]*models.Staff, error) {
	query := `SELECT ` + staffColumns + ` FROM staff ORDER BY name, id`

	rows, err := s.db.QueryContext(ctx, query)
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
func (s *SQLiteStorage) UpdateStaff(ctx context.Context, staff *models.Staff) error {
	staff.UpdatedAt = time.Now().UTC()

	var taken int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM staff WHERE code = ? AND telegram_id <> ?`,
		staff.Code, staff.TelegramID,
	).Scan(&taken)
	if err != nil {
		return fmt.Errorf("failed to check staff code: %w", err)
	}
	if taken > 0 {
		return errors.ErrStaffCodeTaken.WithContext(staff.Code)
	}

	query := `UPDATE staff SET name = ?, position = ?, code = ?, active = ?, updated_at = ?
			  WHERE telegram_id = ?`

	result, err := s.db.ExecContext(ctx, query,
		staff.Name, staff.Position, staff.Code, staff.Active, staff.UpdatedAt, staff.TelegramID,
	)
	if err != nil {
		return fmt.Errorf("failed to update staff: %w", err)
	}

	return expectRow(result, errors.ErrStaffNotFound.WithContext(staff.TelegramID))
}

// DeleteStaff удаляет сотрудника; атрибуция уже привлеченных гостей сохраняется
func (s *SQLiteStorage) DeleteStaff(ctx context.Context, telegramID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM staff WHERE telegram_id = ?`, telegramID)
	if err != nil {
		return fmt.Errorf("failed to delete staff: %w", err)
	}

	return expectRow(result, errors.ErrStaffNotFound.WithContext(telegramID))
}

// IssueCoupon сохраняет выданный купон
func (s *SQLiteStorage) IssueCoupon(ctx context.Context, coupon *models.Coupon) error {
	if coupon.Status == "" {
		coupon.Status = models.CouponIssued
	}
	coupon.IssuedAt = ts(coupon.IssuedAt)

	query := `INSERT INTO coupons (user_id, code, discount, status, issued_at, expires_at, redeemed_at, redeemed_by)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			  ON CONFLICT DO NOTHING`

	result, err := s.db.ExecContext(ctx, query,
		coupon.UserID, coupon.Code, coupon.Discount, coupon.Status,
		coupon.IssuedAt, tsPtr(coupon.ExpiresAt), tsPtr(coupon.RedeemedAt), coupon.RedeemedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to issue coupon: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rowsAffected == 0 {
		if _, err := s.GetCouponByUser(ctx, coupon.UserID); err == nil {
			return errors.ErrCouponAlreadyIssued.WithContext(coupon.UserID)
		}
		return errors.ErrCouponCodeTaken.WithContext(coupon.Code)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get coupon ID: %w", err)
	}

	coupon.ID = id
	return nil
}

// GetCouponByCode получает купон по коду
func (s *SQLiteStorage) GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE code = ?`

	coupon, err := scanCoupon(s.db.QueryRowContext(ctx, query, code))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrCouponNotFound.WithContext(code)
		}
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}

	return coupon, nil
}

// GetCouponByUser получает купон гостя
func (s *SQLiteStorage) GetCouponByUser(ctx context.Context, userID int64) (*models.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE user_id = ?`

	coupon, err := scanCoupon(s.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrCouponNotFound.WithContext(userID)
		}
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}

	return coupon, nil
}

// RedeemCoupon гасит купон, если он выдан и не истек
func (s *SQLiteStorage) RedeemCoupon(ctx context.Context, code string, redeemedBy int64, at time.Time) (*models.Coupon, error) {
	at = ts(at)

	query := `UPDATE coupons SET status = ?, redeemed_at = ?, redeemed_by = ?
			  WHERE code = ? AND status = ? AND (expires_at IS NULL OR expires_at > ?)`

	result, err := s.db.ExecContext(ctx, query,
		models.CouponRedeemed, at, redeemedBy, code, models.CouponIssued, at,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to redeem coupon: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get affected rows: %w", err)
	}

	coupon, err := s.GetCouponByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		return nil, redeemRejection(coupon, at)
	}

	return coupon, nil
}

// redeemRejection объясняет, почему купон не удалось погасить
func redeemRejection(coupon *models.Coupon, at time.Time) error {
	if coupon.IsRedeemed() {
		return errors.ErrCouponAlreadyRedeemed.WithContext(coupon.Code)
	}
	if coupon.IsExpired(at) {
		return errors.ErrCouponExpired.WithContext(coupon.Code)
	}
	return errors.ErrCouponNotFound.WithContext(coupon.Code)
}

// ListCoupons возвращает купоны по фильтру
func (s *SQLiteStorage) ListCoupons(ctx context.Context, filter models.CouponFilter) ([]*models.Coupon, error) {
	var (
		conds []string
		args  []interface{}
	)
	if !filter.From.IsZero() {
		conds = append(conds, "issued_at >= ?")
		args = append(args, filter.From.UTC())
	}
	if !filter.To.IsZero() {
		conds = append(conds, "issued_at < ?")
		args = append(args, filter.To.UTC())
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}

	query := `SELECT ` + couponColumns + ` FROM coupons`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY issued_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
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
func (s *SQLiteStorage) ImportUser(ctx context.Context, user *models.User) (bool, error) {
	query := `INSERT INTO users (` + userColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			  ON CONFLICT(telegram_id) DO NOTHING`

	result, err := s.db.ExecContext(ctx, query,
		user.TelegramID, user.Username, user.FirstName, user.LastName, user.Source,
		user.StaffID, user.ReferrerID, user.Subscribed,
		ts(user.CreatedAt), ts(user.UpdatedAt), ts(user.LastSeenAt),
	)
	if err != nil {
		return false, fmt.Errorf("failed to import user: %w", err)
	}

	return inserted(result)
}

// ImportStaff переносит сотрудника, пропуская уже существующий telegram_id.
// Исходный ID сохраняется, если он свободен, иначе выдается новый.
func (s *SQLiteStorage) ImportStaff(ctx context.Context, staff *models.Staff) (bool, error) {
	query := `INSERT INTO staff (` + staffColumns + `)
			  VALUES (CASE WHEN EXISTS (SELECT 1 FROM staff WHERE id = ?) THEN NULL ELSE ? END,
			          ?, ?, ?, ?, ?, ?, ?)
			  ON CONFLICT(telegram_id) DO NOTHING`

	result, err := s.db.ExecContext(ctx, query,
		staff.ID, staff.ID, staff.TelegramID, staff.Name, staff.Position, staff.Code, staff.Active,
		ts(staff.CreatedAt), ts(staff.UpdatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("failed to import staff: %w", err)
	}

	return inserted(result)
}

// ImportCoupon переносит купон со статусом, пропуская уже существующий код.
// Исходный ID сохраняется, если он свободен, иначе выдается новый.
func (s *SQLiteStorage) ImportCoupon(ctx context.Context, coupon *models.Coupon) (bool, error) {
	query := `INSERT INTO coupons (` + couponColumns + `)
			  VALUES (CASE WHEN EXISTS (SELECT 1 FROM coupons WHERE id = ?) THEN NULL ELSE ? END,
			          ?, ?, ?, ?, ?, ?, ?, ?)
			  ON CONFLICT(code) DO NOTHING`

	result, err := s.db.ExecContext(ctx, query,
		coupon.ID, coupon.ID, coupon.UserID, coupon.Code, coupon.Discount, coupon.Status,
		ts(coupon.IssuedAt), tsPtr(coupon.ExpiresAt), tsPtr(coupon.RedeemedAt), coupon.RedeemedBy,
	)
	if err != nil {
		return false, fmt.Errorf("failed to import coupon: %w", err)
	}

	return inserted(result)
}

func inserted(result sql.Result) (bool, error) {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rowsAffected > 0, nil
}

// expectRow возвращает notFound, если запрос не затронул ни одной строки
func expectRow(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}
