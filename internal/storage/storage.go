// Package storage описывает реляционное хранилище пользователей, броней и отзывов.
package storage

import (
	"context"

	"rezme/internal/models"
)

// Repository - то, что нужно диалогам и админке от реляционного хранилища.
type Repository interface {
	// UpsertUser регистрирует пользователя; существующая запись не меняется.
	UpsertUser(ctx context.Context, user models.User) error
	// SaveUserPhone создает пользователя при необходимости и записывает телефон.
	SaveUserPhone(ctx context.Context, user models.User) error
	// GetUserPhone возвращает "" если телефона (или пользователя) нет.
	GetUserPhone(ctx context.Context, tgID int64) (string, error)
	CountUsers(ctx context.Context) (int, error)
	// ListUsers - новые регистрации первыми.
	ListUsers(ctx context.Context) ([]models.User, error)

	CreateBooking(ctx context.Context, booking models.Booking) (int64, error)
	CountBookings(ctx context.Context) (int, error)
	LastBookings(ctx context.Context, limit int) ([]models.Booking, error)
	// UserVenueIDs - различные непустые venue_id из броней пользователя.
	UserVenueIDs(ctx context.Context, tgID int64) ([]int64, error)
	HasBookingForVenue(ctx context.Context, tgID, venueID int64) (bool, error)

	CreateReview(ctx context.Context, review models.Review) (int64, error)
	CountReviews(ctx context.Context) (int, error)
	LastReviews(ctx context.Context, limit int) ([]models.Review, error)
}
