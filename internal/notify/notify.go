// Package notify доставляет уведомления о новых бронях оператору.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// BookingNotice - всё, что оператору нужно знать о брони.
type BookingNotice struct {
	BookingID  int64
	UserID     int64
	Username   string
	FullName   string
	Phone      string
	FilterLine string // "Тип заведения: ..." или "Район: ..."
	VenueID    int64
	VenueName  string
	Date       string // YYYY-MM-DD
	Time       string
	People     string
	Comment    string
	CreatedAt  time.Time
}

type Notifier interface {
	NotifyBooking(ctx context.Context, notice BookingNotice) error
}

// NotifierFunc адаптирует функцию к Notifier.
type NotifierFunc func(ctx context.Context, notice BookingNotice) error

func (f NotifierFunc) NotifyBooking(ctx context.Context, notice BookingNotice) error {
	return f(ctx, notice)
}

// Multi рассылает уведомление во все приемники и объединяет ошибки.
type Multi []Notifier

func (m Multi) NotifyBooking(ctx context.Context, notice BookingNotice) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.NotifyBooking(ctx, notice); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HumanDate переводит YYYY-MM-DD в ДД.ММ.ГГГГ; нераспознанное значение возвращается как есть.
func HumanDate(iso string) string {
	d, err := time.Parse("2006-01-02", iso)
	if err != nil {
		return iso
	}
	return d.Format("02.01.2006")
}

// OperatorText - текст сообщения оператору.
func OperatorText(n BookingNotice) string {
	username := n.Username
	if username == "" {
		username = "без юзернейма"
	}
	phone := n.Phone
	if phone == "" {
		phone = "не указан"
	}
	comment := n.Comment
	if comment == "" {
		comment = "без комментариев"
	}

	var b strings.Builder
	b.WriteString("🔔 Новая заявка на бронь\n\n")
	fmt.Fprintf(&b, "Пользователь: @%s (%d)\n", username, n.UserID)
	fmt.Fprintf(&b, "Имя: %s\n", n.FullName)
	fmt.Fprintf(&b, "Телефон: %s\n\n", phone)
	if n.FilterLine != "" {
		b.WriteString(n.FilterLine + "\n")
	}
	fmt.Fprintf(&b, "Заведение: %s\n", n.VenueName)
	fmt.Fprintf(&b, "Дата: %s\n", HumanDate(n.Date))
	fmt.Fprintf(&b, "Время: %s\n", n.Time)
	fmt.Fprintf(&b, "Людей: %s\n", n.People)
	fmt.Fprintf(&b, "Комментарий: %s\n", comment)
	return b.String()
}
