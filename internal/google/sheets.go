// Package google дублирует новые брони в Google Sheets.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"rezme/internal/notify"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	bookingsRange = "Bookings!A:A"
	probeRange    = "Bookings!A1"
)

var bookingHeaders = []any{"ID", "Telegram ID", "Username", "Имя", "Телефон", "Фильтр", "Заведение", "Дата", "Время", "Людей", "Комментарий", "Создано"}

type SheetsService struct {
	service       *sheets.Service
	spreadsheetID string
}

var _ notify.Notifier = (*SheetsService)(nil)

func NewSheetsService(ctx context.Context, credentialsFile, spreadsheetID string) (*SheetsService, error) {
	// Читаем файл учетных данных сервисного аккаунта
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}

	return &SheetsService{service: srv, spreadsheetID: spreadsheetID}, nil
}

// TestConnection проверяет доступ к таблице
func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, probeRange).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// EnsureHeader записывает заголовки, если лист пустой.
func (s *SheetsService) EnsureHeader(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, probeRange).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if len(resp.Values) > 0 {
		return nil
	}

	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, probeRange, &sheets.ValueRange{
		Values: [][]any{bookingHeaders},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

// ServiceAccountEmail возвращает email сервисного аккаунта, которому нужно выдать доступ к таблице.
func ServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}
	return creds.ClientEmail, nil
}

// AppendBooking добавляет бронь в конец листа Bookings.
func (s *SheetsService) AppendBooking(ctx context.Context, n notify.BookingNotice) error {
	row := []any{
		n.BookingID,
		n.UserID,
		n.Username,
		n.FullName,
		n.Phone,
		n.FilterLine,
		n.VenueName,
		n.Date,
		n.Time,
		n.People,
		n.Comment,
		n.CreatedAt.Format("2006-01-02 15:04:05"),
	}

	_, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, bookingsRange, &sheets.ValueRange{
		Values: [][]any{row},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append booking %d: %w", n.BookingID, err)
	}
	return nil
}

func (s *SheetsService) NotifyBooking(ctx context.Context, n notify.BookingNotice) error {
	return s.AppendBooking(ctx, n)
}
