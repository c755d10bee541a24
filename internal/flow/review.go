package flow

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	"rezme/internal/catalog"
	"rezme/internal/chat"
	"rezme/internal/metrics"
	"rezme/internal/models"
	"rezme/internal/state"

	"github.com/rs/zerolog"
)

const (
	ReviewChoosingVenue  = "review:choosing_venue"
	ReviewChoosingRating = "review:choosing_rating"
	ReviewTypingText     = "review:typing_text"
)

const maxRating = 5

type reviewDraft struct {
	VenueID int64
	Rating  int
}

func decodeReview(tag string, fields map[string]string) (reviewDraft, error) {
	var d reviewDraft
	if raw := fields["venue_id"]; raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return d, fmt.Errorf("%w: venue_id %q", ErrInvalidState, raw)
		}
		d.VenueID = id
	}
	if raw := fields["rating"]; raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return d, fmt.Errorf("%w: rating %q", ErrInvalidState, raw)
		}
		d.Rating = n
	}

	switch tag {
	case ReviewChoosingVenue:
	case ReviewChoosingRating:
		if d.VenueID == 0 {
			return d, fmt.Errorf("%w: no venue at %s", ErrInvalidState, tag)
		}
	case ReviewTypingText:
		if d.VenueID == 0 || d.Rating < 1 || d.Rating > maxRating {
			return d, fmt.Errorf("%w: incomplete review at %s", ErrInvalidState, tag)
		}
	default:
		return d, fmt.Errorf("%w: unknown review step %q", ErrInvalidState, tag)
	}
	return d, nil
}

// ReviewRepository - часть хранилища, нужная отзывам.
type ReviewRepository interface {
	UserVenueIDs(ctx context.Context, tgID int64) ([]int64, error)
	HasBookingForVenue(ctx context.Context, tgID, venueID int64) (bool, error)
	CreateReview(ctx context.Context, r models.Review) (int64, error)
}

// Review - диалог отзыва. Оставить отзыв можно только о заведении, где у
// пользователя есть бронь.
type Review struct {
	states  state.Store
	repo    ReviewRepository
	catalog Catalog
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func NewReview(states state.Store, repo ReviewRepository, venues Catalog, m *metrics.Metrics, log zerolog.Logger) *Review {
	return &Review{
		states:  states,
		repo:    repo,
		catalog: venues,
		metrics: m,
		log:     log.With().Str("component", "review").Logger(),
	}
}

func (r *Review) Owns(tag string) bool {
	return strings.HasPrefix(tag, "review:")
}

func (r *Review) Start(ctx context.Context, ev chat.Event) ([]chat.Reply, error) {
	if err := r.states.Clear(ctx, ev.UserID); err != nil {
		return nil, err
	}

	ids, err := r.repo.UserVenueIDs(ctx, ev.UserID)
	if err != nil {
		return nil, err
	}

	var venues []models.Venue
	for _, id := range ids {
		v, err := r.catalog.Get(id)
		if errors.Is(err, catalog.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		venues = append(venues, v)
	}

	if len(venues) == 0 {
		return []chat.Reply{chat.WithMenu(
			"У вас пока нет броней в наших заведениях, поэтому оставить отзыв нельзя 🙂",
			MainMenu(),
		)}, nil
	}

	if err := r.states.SetState(ctx, ev.UserID, ReviewChoosingVenue); err != nil {
		return nil, err
	}
	rows := make([][]chat.Button, 0, len(venues))
	for _, v := range venues {
		rows = append(rows, chat.Row(chat.Button{Text: v.Name, Data: "rev_venue:" + strconv.FormatInt(v.ID, 10)}))
	}
	return []chat.Reply{chat.WithMenu("Выберите заведение, о котором хотите оставить отзыв 👇", chat.Inline(rows...))}, nil
}

func (r *Review) HandleText(ctx context.Context, tag string, ev chat.Event) ([]chat.Reply, error) {
	if tag == ReviewTypingText {
		return r.text(ctx, tag, ev)
	}
	r.metrics.IncRejection("text_instead_of_button")
	return []chat.Reply{chat.Text(msgUseMenu)}, nil
}

func (r *Review) HandleCallback(ctx context.Context, tag string, ev chat.Event) ([]chat.Reply, error) {
	switch tag {
	case ReviewChoosingVenue:
		return r.chooseVenue(ctx, ev)
	case ReviewChoosingRating:
		return r.chooseRating(ctx, tag, ev)
	}
	r.metrics.IncRejection("unknown_payload")
	return []chat.Reply{OutdatedReply()}, nil
}

// venueName возвращает название или заглушку, если заведение удалено из каталога.
func (r *Review) venueName(id int64) (string, error) {
	v, err := r.catalog.Get(id)
	if errors.Is(err, catalog.ErrNotFound) {
		return catalog.Placeholder, nil
	}
	if err != nil {
		return "", err
	}
	return v.Name, nil
}

func (r *Review) chooseVenue(ctx context.Context, ev chat.Event) ([]chat.Reply, error) {
	raw, ok := payload(ev.Data, "rev_venue:")
	id, err := strconv.ParseInt(raw, 10, 64)
	if !ok || err != nil {
		r.metrics.IncRejection("unknown_payload")
		return []chat.Reply{OutdatedReply()}, nil
	}

	// право на отзыв проверяется по броням на момент выбора
	has, err := r.repo.HasBookingForVenue(ctx, ev.UserID, id)
	if err != nil {
		return nil, err
	}
	if !has {
		r.metrics.IncRejection("no_booking_for_venue")
		return []chat.Reply{chat.Alert("У вас не было брони в этом заведении, отзыв оставить нельзя.")}, nil
	}

	name, err := r.venueName(id)
	if err != nil {
		return nil, err
	}

	if err := r.states.UpdateFields(ctx, ev.UserID, map[string]string{"venue_id": strconv.FormatInt(id, 10)}); err != nil {
		return nil, err
	}
	if err := r.states.SetState(ctx, ev.UserID, ReviewChoosingRating); err != nil {
		return nil, err
	}

	return []chat.Reply{{
		Text: fmt.Sprintf("Заведение: <b>%s</b>\n\nПоставьте, пожалуйста, оценку от 1 до 5 ⭐️", html.EscapeString(name)),
		Menu: ratingMenu(),
		Edit: true,
	}}, nil
}

func (r *Review) chooseRating(ctx context.Context, tag string, ev chat.Event) ([]chat.Reply, error) {
	raw, ok := payload(ev.Data, "rev_rate:")
	rating, err := strconv.Atoi(raw)
	if !ok || err != nil || rating < 1 || rating > maxRating {
		r.metrics.IncRejection("unknown_payload")
		return []chat.Reply{OutdatedReply()}, nil
	}

	fields, err := r.states.GetFields(ctx, ev.UserID)
	if err != nil {
		return nil, err
	}
	if _, err := decodeReview(tag, fields); err != nil {
		return nil, err
	}

	if err := r.states.UpdateFields(ctx, ev.UserID, map[string]string{"rating": strconv.Itoa(rating)}); err != nil {
		return nil, err
	}
	if err := r.states.SetState(ctx, ev.UserID, ReviewTypingText); err != nil {
		return nil, err
	}

	return []chat.Reply{{
		Text: fmt.Sprintf("Оценка: <b>%d⭐️</b>\n\n"+
			"Теперь напишите ваш отзыв текстом.\n"+
			"Если хотите оставить только оценку, напишите «нет».", rating),
		Edit: true,
	}}, nil
}

func (r *Review) text(ctx context.Context, tag string, ev chat.Event) ([]chat.Reply, error) {
	fields, err := r.states.GetFields(ctx, ev.UserID)
	if err != nil {
		return nil, err
	}
	d, err := decodeReview(tag, fields)
	if err != nil {
		return nil, err
	}

	text := Optional(ev.Text)
	name, err := r.venueName(d.VenueID)
	if err != nil {
		return nil, err
	}

	venueID := d.VenueID
	reviewID, err := r.repo.CreateReview(ctx, models.Review{
		TgID:    ev.UserID,
		VenueID: &venueID,
		Rating:  d.Rating,
		Text:    text,
	})
	if err != nil {
		return nil, err
	}
	r.metrics.IncReview()

	if err := r.states.Clear(ctx, ev.UserID); err != nil {
		r.log.Error().Err(err).Int64("user_id", ev.UserID).Msg("Failed to clear state after review")
	}
	r.log.Info().Int64("review_id", reviewID).Int64("user_id", ev.UserID).Int64("venue_id", venueID).Int("rating", d.Rating).Msg("Review created")

	shown := text
	if shown == "" {
		shown = "без текста"
	}
	return []chat.Reply{chat.WithMenu(
		fmt.Sprintf("Спасибо! Ваш отзыв сохранён 🙌\n\n"+
			"Заведение: <b>%s</b>\n"+
			"Оценка: <b>%d⭐️</b>\n"+
			"Отзыв: <b>%s</b>", html.EscapeString(name), d.Rating, html.EscapeString(shown)),
		MainMenu(),
	)}, nil
}

func ratingMenu() *chat.Menu {
	row := make([]chat.Button, 0, maxRating)
	for n := 1; n <= maxRating; n++ {
		row = append(row, chat.Button{Text: fmt.Sprintf("⭐️%d", n), Data: fmt.Sprintf("rev_rate:%d", n)})
	}
	return chat.Inline(row)
}
