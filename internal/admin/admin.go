// Package admin - операторские отчеты и управление каталогом.
//
// Каждая точка входа сначала проверяет права вызывающего и только потом
// обращается к хранилищу или каталогу.
package admin

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	"rezme/internal/catalog"
	"rezme/internal/chat"
	"rezme/internal/export"
	"rezme/internal/flow"
	"rezme/internal/metrics"
	"rezme/internal/models"

	"github.com/rs/zerolog"
)

const (
	RecentLimit = 30
	UsersLimit  = 50

	msgDenied      = "⛔ Нет доступа."
	msgPanelDenied = "⛔ У вас нет доступа к админ-панели."

	timeLayout = "2006-01-02 15:04:05"
)

// Callback-данные админ-меню.
const (
	CallbackStats     = "admin:stats"
	CallbackUsers     = "admin:users"
	CallbackBookings  = "admin:bookings"
	CallbackReviews   = "admin:reviews"
	CallbackVenues    = "admin:venues"
	CallbackAddVenue  = "admin:add_venue"
	CallbackDelVenue  = "admin:del_venue"
	CallbackExport    = "admin:export"
	deleteVenuePrefix = "admin_del_venue:"
)

type Repository interface {
	CountUsers(ctx context.Context) (int, error)
	CountBookings(ctx context.Context) (int, error)
	CountReviews(ctx context.Context) (int, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	LastBookings(ctx context.Context, limit int) ([]models.Booking, error)
	LastReviews(ctx context.Context, limit int) ([]models.Review, error)
}

type Catalog interface {
	ListAll() ([]models.Venue, error)
	Get(id int64) (models.Venue, error)
	Remove(id int64) (bool, error)
}

type Exporter interface {
	Bookings(rows []export.BookingRow) (string, error)
}

type Service struct {
	authorize   flow.Authorizer
	repo        Repository
	catalog     Catalog
	exporter    Exporter
	exportLimit int
	metrics     *metrics.Metrics
	log         zerolog.Logger
}

func NewService(authorize flow.Authorizer, repo Repository, venues Catalog, exporter Exporter, exportLimit int, m *metrics.Metrics, log zerolog.Logger) *Service {
	if exportLimit <= 0 {
		exportLimit = 200
	}
	return &Service{
		authorize:   authorize,
		repo:        repo,
		catalog:     venues,
		exporter:    exporter,
		exportLimit: exportLimit,
		metrics:     m,
		log:         log.With().Str("component", "admin").Logger(),
	}
}

// Handles сообщает, что callback относится к админ-меню.
func Handles(data string) bool {
	return strings.HasPrefix(data, "admin:") || strings.HasPrefix(data, deleteVenuePrefix)
}

func refusal(ev chat.Event, text string) []chat.Reply {
	if ev.Kind == chat.KindCallback {
		return []chat.Reply{chat.Alert(msgDenied)}
	}
	return []chat.Reply{chat.Text(text)}
}

// Allowed сообщает, является ли пользователь оператором.
func (s *Service) Allowed(userID int64) bool {
	return s.authorize(userID)
}

// guard выполняет render только для оператора.
func (s *Service) guard(ctx context.Context, ev chat.Event, denied string, render func(context.Context) ([]chat.Reply, error)) ([]chat.Reply, error) {
	if !s.authorize(ev.UserID) {
		s.log.Warn().Int64("user_id", ev.UserID).Str("kind", ev.Kind.String()).Msg("Unauthorized admin access")
		return refusal(ev, denied), nil
	}
	return render(ctx)
}

func Menu() *chat.Menu {
	return chat.Inline(
		chat.Row(chat.Button{Text: "📊 Статистика", Data: CallbackStats}),
		chat.Row(chat.Button{Text: "👥 Пользователи", Data: CallbackUsers}),
		chat.Row(chat.Button{Text: "📅 Брони", Data: CallbackBookings}),
		chat.Row(chat.Button{Text: "⭐️ Отзывы", Data: CallbackReviews}),
		chat.Row(chat.Button{Text: "🏬 Заведения", Data: CallbackVenues}),
		chat.Row(
			chat.Button{Text: "➕ Добавить заведение", Data: CallbackAddVenue},
			chat.Button{Text: "🗑 Удалить заведение", Data: CallbackDelVenue},
		),
		chat.Row(chat.Button{Text: "📤 Выгрузить брони", Data: CallbackExport}),
	)
}

// HandleCallback обрабатывает кнопки админ-меню, кроме добавления заведения.
func (s *Service) HandleCallback(ctx context.Context, ev chat.Event) ([]chat.Reply, error) {
	switch ev.Data {
	case CallbackStats:
		return s.Stats(ctx, ev)
	case CallbackUsers:
		return s.Users(ctx, ev)
	case CallbackBookings:
		return s.Bookings(ctx, ev)
	case CallbackReviews:
		return s.Reviews(ctx, ev)
	case CallbackVenues:
		return s.Venues(ctx, ev)
	case CallbackDelVenue:
		return s.DeleteMenu(ctx, ev)
	case CallbackExport:
		return s.Export(ctx, ev)
	}
	if raw, ok := strings.CutPrefix(ev.Data, deleteVenuePrefix); ok {
		return s.Delete(ctx, ev, raw)
	}
	return []chat.Reply{flow.OutdatedReply()}, nil
}

type counts struct {
	users, bookings, reviews int
}

func (s *Service) counts(ctx context.Context) (counts, error) {
	var c counts
	var err error
	if c.users, err = s.repo.CountUsers(ctx); err != nil {
		return c, err
	}
	if c.bookings, err = s.repo.CountBookings(ctx); err != nil {
		return c, err
	}
	if c.reviews, err = s.repo.CountReviews(ctx); err != nil {
		return c, err
	}
	return c, nil
}

func (c counts) String() string {
	return fmt.Sprintf("👥 Пользователи: <b>%d</b>\n📅 Брони: <b>%d</b>\n⭐️ Отзывы: <b>%d</b>\n", c.users, c.bookings, c.reviews)
}

func (s *Service) Panel(ctx context.Context, ev chat.Event) ([]chat.Reply, error) {
	return s.guard(ctx, ev, msgPanelDenied, func(ctx context.Context) ([]chat.Reply, error) {
		c, err := s.counts(ctx)
		if err != nil {
			return nil, err
		}
		text := "🛠 <b>Админ-панель</b>\n\n" + c.String() + "\nВыберите раздел 👇"
		return []chat.Reply{chat.WithMenu(text, Menu())}, nil
	})
}

func (s *Service) Stats(ctx context.Context, ev chat.Event) ([]chat.Reply, error) {
	return s.guard(ctx, ev, msgDenied, func(ctx context.Context) ([]chat.Reply, error) {
		c, err := s.counts(ctx)
		if err != nil {
			return nil, err
		}
		return []chat.Reply{chat.WithMenu("📊 <b>Статистика</b>\n\n"+c.String(), Menu())}, nil
	})
}

func orDash(s string) string {
	if s == "" {
		return catalog.Placeholder
	}
	return html.EscapeString(s)
}

func (s *Service) Users(ctx context.Context, ev chat.Event) ([]chat.Reply, error) {
	return s.guard(ctx, ev, msgDenied, func(ctx context.Context) ([]chat.Reply, error) {
		users, err := s.repo.ListUsers(ctx)
		if err != nil {
			return nil, err
		}
		if len(users) == 0 {
			return []chat.Reply{chat.Text("Пользователей пока нет.")}, nil
		}
		if len(users) > UsersLimit {
			users = users[:UsersLimit]
		}

		lines := make([]string, 0, len(users))
		for _, u := range users {
			lines = append(lines, fmt.Sprintf("• <b>%s</b> (@%s, id=%d)\n  Телефон: %s\n  Дата регистрации: %s",
				html.EscapeString(u.FirstName), orDash(u.Username), u.TgID, orDash(u.Phone), u.CreatedAt.Format(timeLayout)))
		}
		return []chat.Reply{chat.Text("👥 <b>Пользователи</b> (последние)\n\n" + strings.Join(lines, "\n\n"))}, nil
	})
}

// venueNames читает каталог один раз и возвращает функцию подстановки названия.
// Отсутствующий id или удаленное заведение дают заглушку.
func (s *Service) venueNames() (func(id *int64) string, error) {
	venues, err := s.catalog.ListAll()
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(venues))
	for _, v := range venues {
		names[v.ID] = v.Name
	}
	return func(id *int64) string {
		if id == nil {
			return catalog.Placeholder
		}
		if name, ok := names[*id]; ok {
			return name
		}
		return catalog.Placeholder
	}, nil
}

func (s *Service) Bookings(ctx context.Context, ev chat.Event) ([]chat.Reply, error) {
	return s.guard(ctx, ev, msgDenied, func(ctx context.Context) ([]chat.Reply, error) {
		bookings, err := s.repo.LastBookings(ctx, RecentLimit)
		if err != nil {
			return nil, err
		}
		if len(bookings) == 0 {
			return []chat.Reply{chat.Text("Броней пока нет.")}, nil
		}
		name, err := s.venueNames()
		if err != nil {
			return nil, err
		}

		lines := make([]string, 0, len(bookings))
		for _, b := range bookings {
			lines = append(lines, fmt.Sprintf("• Пользователь id=%d\n"+
				"  Заведение: %s\n"+
				"  Категория/фильтр: %s\n"+
				"  Дата/время: %s %s\n"+
				"  Людей: %d\n"+
				"  Комментарий: %s\n"+
				"  Создано: %s",
				b.TgID, html.EscapeString(name(b.VenueID)), html.EscapeString(b.Category), b.Date, b.Time,
				b.PeopleCount, orDash(b.Comment), b.CreatedAt.Format(timeLayout)))
		}
		return []chat.Reply{chat.Text("📅 <b>Последние брони</b>\n\n" + strings.Join(lines, "\n\n"))}, nil
	})
}

func (s *Service) Reviews(ctx context.Context, ev chat.Event) ([]chat.Reply, error) {
	return s.guard(ctx, ev, msgDenied, func(ctx context.Context) ([]chat.Reply, error) {
		reviews, err := s.repo.LastReviews(ctx, RecentLimit)
		if err != nil {
			return nil, err
		}
		if len(reviews) == 0 {
			return []chat.Reply{chat.Text("Отзывов пока нет.")}, nil
		}
		name, err := s.venueNames()
		if err != nil {
			return nil, err
		}

		lines := make([]string, 0, len(reviews))
		for _, r := range reviews {
			lines = append(lines, fmt.Sprintf("• Пользователь id=%d\n"+
				"  Заведение: %s\n"+
				"  Оценка: %d⭐️\n"+
				"  Отзыв: %s\n"+
				"  Дата: %s",
				r.TgID, html.EscapeString(name(r.VenueID)), r.Rating, orDash(r.Text), r.CreatedAt.Format(timeLayout)))
		}
		return []chat.Reply{chat.Text("⭐️ <b>Последние отзывы</b>\n\n" + strings.Join(lines, "\n\n"))}, nil
	})
}

func (s *Service) Venues(ctx context.Context, ev chat.Event) ([]chat.Reply, error) {
	return s.guard(ctx, ev, msgDenied, func(ctx context.Context) ([]chat.Reply, error) {
		venues, err := s.catalog.ListAll()
		if err != nil {
			return nil, err
		}
		if len(venues) == 0 {
			return []chat.Reply{chat.Text("Заведений в базе пока нет.")}, nil
		}

		lines := make([]string, 0, len(venues))
		for _, v := range venues {
			lines = append(lines, fmt.Sprintf("ID: <b>%d</b>\n"+
				"Название: <b>%s</b>\n"+
				"Категория: %s\n"+
				"Район: %s\n"+
				"Адрес: %s\n"+
				"Телефон: %s\n"+
				"Instagram: %s",
				v.ID, html.EscapeString(v.Name), html.EscapeString(v.Category), orDash(v.District),
				html.EscapeString(v.Address), html.EscapeString(v.Phone), orDash(v.Instagram)))
		}
		return []chat.Reply{chat.Text("🏬 <b>Заведения</b>\n\n" + strings.Join(lines, "\n\n"))}, nil
	})
}

func (s *Service) DeleteMenu(ctx context.Context, ev chat.Event) ([]chat.Reply, error) {
	return s.guard(ctx, ev, msgDenied, func(ctx context.Context) ([]chat.Reply, error) {
		venues, err := s.catalog.ListAll()
		if err != nil {
			return nil, err
		}
		if len(venues) == 0 {
			return []chat.Reply{chat.Text("Заведений в базе пока нет.")}, nil
		}

		rows := make([][]chat.Button, 0, len(venues))
		for _, v := range venues {
			rows = append(rows, chat.Row(chat.Button{
				Text: fmt.Sprintf("🗑 %s (id=%d)", v.Name, v.ID),
				Data: deleteVenuePrefix + strconv.FormatInt(v.ID, 10),
			}))
		}
		return []chat.Reply{chat.WithMenu("Выберите заведение для удаления 👇", chat.Inline(rows...))}, nil
	})
}

func (s *Service) Delete(ctx context.Context, ev chat.Event, rawID string) ([]chat.Reply, error) {
	return s.guard(ctx, ev, msgDenied, func(ctx context.Context) ([]chat.Reply, error) {
		id, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil {
			return []chat.Reply{flow.OutdatedReply()}, nil
		}

		venue, err := s.catalog.Get(id)
		if errors.Is(err, catalog.ErrNotFound) {
			return []chat.Reply{chat.Alert("Заведение не найдено.")}, nil
		}
		if err != nil {
			return nil, err
		}

		removed, err := s.catalog.Remove(id)
		if err != nil {
			return nil, err
		}
		if !removed {
			return []chat.Reply{chat.Alert("Заведение не найдено.")}, nil
		}
		s.metrics.IncVenueRemoved()
		s.log.Info().Int64("venue_id", id).Str("name", venue.Name).Msg("Venue removed")

		return []chat.Reply{{
			Text: fmt.Sprintf("✅ Заведение <b>%s</b> (id=%d) удалено.", html.EscapeString(venue.Name), id),
			Edit: true,
		}}, nil
	})
}

func (s *Service) Export(ctx context.Context, ev chat.Event) ([]chat.Reply, error) {
	return s.guard(ctx, ev, msgDenied, func(ctx context.Context) ([]chat.Reply, error) {
		bookings, err := s.repo.LastBookings(ctx, s.exportLimit)
		if err != nil {
			return nil, err
		}
		if len(bookings) == 0 {
			return []chat.Reply{chat.Text("Броней пока нет.")}, nil
		}
		name, err := s.venueNames()
		if err != nil {
			return nil, err
		}

		rows := make([]export.BookingRow, 0, len(bookings))
		for _, b := range bookings {
			rows = append(rows, export.BookingRow{Booking: b, VenueName: name(b.VenueID)})
		}
		path, err := s.exporter.Bookings(rows)
		if err != nil {
			return nil, fmt.Errorf("export bookings: %w", err)
		}
		s.log.Info().Str("path", path).Int("rows", len(rows)).Msg("Bookings exported")

		return []chat.Reply{{Document: &chat.Document{
			Path:    path,
			Caption: fmt.Sprintf("📤 Последние брони: %d", len(rows)),
		}}}, nil
	})
}
