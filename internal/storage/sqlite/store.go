// Package sqlite реализует storage.Repository поверх SQLite.
package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"rezme/internal/models"
	"rezme/internal/storage"
	"rezme/internal/storage/sqlite/migrations"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

var _ storage.Repository = (*Store)(nil)

// Store хранит пользователей, брони и отзывы в SQLite.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open открывает базу по пути path и применяет встроенные миграции.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	dsn := "file:" + cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close закрывает соединение с базой.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type userRow struct {
	models.User
	CreatedAtMs int64 `db:"created_at"`
}

type bookingRow struct {
	models.Booking
	CreatedAtMs int64 `db:"created_at"`
}

type reviewRow struct {
	models.Review
	CreatedAtMs int64 `db:"created_at"`
}

func (s *Store) UpsertUser(ctx context.Context, user models.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (tg_id, username, first_name, phone, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(tg_id) DO NOTHING`,
		user.TgID, user.Username, user.FirstName, user.Phone, toMillis(s.now()),
	)
	if err != nil {
		return fmt.Errorf("upsert user %d: %w", user.TgID, err)
	}
	return nil
}

func (s *Store) SaveUserPhone(ctx context.Context, user models.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (tg_id, username, first_name, phone, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(tg_id) DO UPDATE SET phone = excluded.phone`,
		user.TgID, user.Username, user.FirstName, user.Phone, toMillis(s.now()),
	)
	if err != nil {
		return fmt.Errorf("save phone for user %d: %w", user.TgID, err)
	}
	return nil
}

func (s *Store) GetUserPhone(ctx context.Context, tgID int64) (string, error) {
	var phones []string
	if err := s.db.SelectContext(ctx, &phones, `SELECT phone FROM users WHERE tg_id = ?`, tgID); err != nil {
		return "", fmt.Errorf("get phone for user %d: %w", tgID, err)
	}
	if len(phones) == 0 {
		return "", nil
	}
	return phones[0], nil
}

func (s *Store) count(ctx context.Context, table string) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM `+table); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	return s.count(ctx, "users")
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	var rows []userRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, tg_id, username, first_name, phone, created_at
		 FROM users
		 ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users := make([]models.User, 0, len(rows))
	for _, r := range rows {
		u := r.User
		u.CreatedAt = fromMillis(r.CreatedAtMs)
		users = append(users, u)
	}
	return users, nil
}

func (s *Store) CreateBooking(ctx context.Context, b models.Booking) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO bookings (tg_id, venue_id, category, date, time, people_count, comment, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.TgID, b.VenueID, b.Category, b.Date, b.Time, b.PeopleCount, b.Comment, toMillis(s.now()),
	)
	if err != nil {
		return 0, fmt.Errorf("create booking: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) CountBookings(ctx context.Context) (int, error) {
	return s.count(ctx, "bookings")
}

func (s *Store) LastBookings(ctx context.Context, limit int) ([]models.Booking, error) {
	var rows []bookingRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, tg_id, venue_id, category, date, time, people_count, comment, created_at
		 FROM bookings
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("last bookings: %w", err)
	}
	out := make([]models.Booking, 0, len(rows))
	for _, r := range rows {
		b := r.Booking
		b.CreatedAt = fromMillis(r.CreatedAtMs)
		out = append(out, b)
	}
	return out, nil
}

func (s *Store) UserVenueIDs(ctx context.Context, tgID int64) ([]int64, error) {
	var ids []int64
	err := s.db.SelectContext(ctx, &ids,
		`SELECT venue_id FROM bookings
		 WHERE tg_id = ? AND venue_id IS NOT NULL
		 GROUP BY venue_id
		 ORDER BY MIN(id)`, tgID)
	if err != nil {
		return nil, fmt.Errorf("venue ids for user %d: %w", tgID, err)
	}
	return ids, nil
}

func (s *Store) HasBookingForVenue(ctx context.Context, tgID, venueID int64) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM bookings WHERE tg_id = ? AND venue_id = ?`, tgID, venueID)
	if err != nil {
		return false, fmt.Errorf("check booking user %d venue %d: %w", tgID, venueID, err)
	}
	return n > 0, nil
}

func (s *Store) CreateReview(ctx context.Context, r models.Review) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO reviews (tg_id, venue_id, rating, text, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		r.TgID, r.VenueID, r.Rating, r.Text, toMillis(s.now()),
	)
	if err != nil {
		return 0, fmt.Errorf("create review: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) CountReviews(ctx context.Context) (int, error) {
	return s.count(ctx, "reviews")
}

func (s *Store) LastReviews(ctx context.Context, limit int) ([]models.Review, error) {
	var rows []reviewRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, tg_id, venue_id, rating, text, created_at
		 FROM reviews
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("last reviews: %w", err)
	}
	out := make([]models.Review, 0, len(rows))
	for _, r := range rows {
		rv := r.Review
		rv.CreatedAt = fromMillis(r.CreatedAtMs)
		out = append(out, rv)
	}
	return out, nil
}
