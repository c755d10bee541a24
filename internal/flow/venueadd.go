package flow

import (
	"context"
	"fmt"
	"html"
	"slices"
	"strings"

	"rezme/internal/catalog"
	"rezme/internal/chat"
	"rezme/internal/metrics"
	"rezme/internal/models"
	"rezme/internal/state"

	"github.com/rs/zerolog"
)

const (
	VenueWaitingName      = "venue_add:waiting_name"
	VenueWaitingCategory  = "venue_add:waiting_category"
	VenueWaitingDistrict  = "venue_add:waiting_district"
	VenueWaitingAddress   = "venue_add:waiting_address"
	VenueWaitingPhone     = "venue_add:waiting_phone"
	VenueWaitingInstagram = "venue_add:waiting_instagram"
)

const (
	msgDenied     = "⛔ Нет доступа."
	msgEmptyField = "Поле не может быть пустым."
	msgLongField  = "Слишком длинное название района, сократите его."
)

type venueStep struct {
	tag      string
	field    string
	prompt   string
	required bool
}

var venueSteps = []venueStep{
	{VenueWaitingName, "name", "1/6. Введите <b>название</b> заведения:", true},
	{VenueWaitingCategory, "category", "2/6. Введите <b>категорию</b> (например, Кафе/Рестораны):", true},
	{VenueWaitingDistrict, "district", "3/6. Введите <b>район</b> (или напишите «нет»):", false},
	{VenueWaitingAddress, "address", "4/6. Введите <b>адрес</b>:", true},
	{VenueWaitingPhone, "phone", "5/6. Введите <b>телефон</b>:", true},
	{VenueWaitingInstagram, "instagram", "6/6. Введите ссылку на <b>Instagram</b> (или напишите «нет»):", false},
}

func venueStepIndex(tag string) int {
	return slices.IndexFunc(venueSteps, func(s venueStep) bool { return s.tag == tag })
}

func decodeVenue(fields map[string]string) (models.VenueFields, error) {
	v := models.VenueFields{
		Name:      fields["name"],
		Category:  fields["category"],
		District:  fields["district"],
		Address:   fields["address"],
		Phone:     fields["phone"],
		Instagram: fields["instagram"],
	}
	if v.Name == "" || v.Category == "" || v.Address == "" || v.Phone == "" {
		return v, fmt.Errorf("%w: incomplete venue", ErrInvalidState)
	}
	if v.District == "" {
		v.District = catalog.Placeholder
	}
	return v, nil
}

// VenueAdd - пошаговое добавление заведения. Доступно только оператору,
// права проверяются на входе и на каждом шаге.
type VenueAdd struct {
	states    state.Store
	catalog   Catalog
	authorize Authorizer
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

func NewVenueAdd(states state.Store, venues Catalog, authorize Authorizer, m *metrics.Metrics, log zerolog.Logger) *VenueAdd {
	return &VenueAdd{
		states:    states,
		catalog:   venues,
		authorize: authorize,
		metrics:   m,
		log:       log.With().Str("component", "venue_add").Logger(),
	}
}

func (v *VenueAdd) Owns(tag string) bool {
	return strings.HasPrefix(tag, "venue_add:")
}

func denied(ev chat.Event) []chat.Reply {
	if ev.Kind == chat.KindCallback {
		return []chat.Reply{chat.Alert(msgDenied)}
	}
	return []chat.Reply{chat.Text(msgDenied)}
}

// Begin - общий вход для команды /add_venue и кнопки админ-меню.
func (v *VenueAdd) Begin(ctx context.Context, ev chat.Event) ([]chat.Reply, error) {
	if !v.authorize(ev.UserID) {
		v.log.Warn().Int64("user_id", ev.UserID).Msg("Unauthorized venue add attempt")
		return denied(ev), nil
	}
	if err := v.states.Clear(ctx, ev.UserID); err != nil {
		return nil, err
	}
	if err := v.states.SetState(ctx, ev.UserID, venueSteps[0].tag); err != nil {
		return nil, err
	}
	return []chat.Reply{chat.WithMenu("Добавление нового заведения.\n\n"+venueSteps[0].prompt, MainMenu())}, nil
}

func (v *VenueAdd) HandleText(ctx context.Context, tag string, ev chat.Event) ([]chat.Reply, error) {
	if !v.authorize(ev.UserID) {
		if err := v.states.Clear(ctx, ev.UserID); err != nil {
			return nil, err
		}
		return denied(ev), nil
	}

	i := venueStepIndex(tag)
	if i < 0 {
		return nil, fmt.Errorf("%w: unknown venue step %q", ErrInvalidState, tag)
	}
	step := venueSteps[i]

	value := strings.TrimSpace(ev.Text)
	if !step.required {
		value = Optional(value)
	}
	if step.required && value == "" {
		v.metrics.IncRejection("empty_field")
		return []chat.Reply{chat.Text(msgEmptyField + "\n\n" + step.prompt)}, nil
	}

	if step.tag == VenueWaitingDistrict && !fitsCallback(districtPrefix, value) {
		v.metrics.IncRejection("district_too_long")
		return []chat.Reply{chat.Text(msgLongField + "\n\n" + step.prompt)}, nil
	}

	if err := v.states.UpdateFields(ctx, ev.UserID, map[string]string{step.field: value}); err != nil {
		return nil, err
	}
	if i+1 < len(venueSteps) {
		if err := v.states.SetState(ctx, ev.UserID, venueSteps[i+1].tag); err != nil {
			return nil, err
		}
		return []chat.Reply{chat.Text(venueSteps[i+1].prompt)}, nil
	}
	return v.finish(ctx, ev)
}

func (v *VenueAdd) HandleCallback(ctx context.Context, tag string, ev chat.Event) ([]chat.Reply, error) {
	v.metrics.IncRejection("unknown_payload")
	return []chat.Reply{chat.Alert("Введите значение сообщением")}, nil
}

func (v *VenueAdd) finish(ctx context.Context, ev chat.Event) ([]chat.Reply, error) {
	fields, err := v.states.GetFields(ctx, ev.UserID)
	if err != nil {
		return nil, err
	}
	draft, err := decodeVenue(fields)
	if err != nil {
		return nil, err
	}

	venue, err := v.catalog.Add(draft)
	if err != nil {
		return nil, err
	}
	v.metrics.IncVenueAdded()

	if err := v.states.Clear(ctx, ev.UserID); err != nil {
		v.log.Error().Err(err).Int64("user_id", ev.UserID).Msg("Failed to clear state after venue add")
	}
	v.log.Info().Int64("venue_id", venue.ID).Str("name", venue.Name).Msg("Venue added")

	instagram := venue.Instagram
	if instagram == "" {
		instagram = catalog.Placeholder
	}
	text := fmt.Sprintf("✅ Заведение добавлено!\n\n"+
		"ID: <b>%d</b>\n"+
		"Название: <b>%s</b>\n"+
		"Категория: %s\n"+
		"Район: %s\n"+
		"Адрес: %s\n"+
		"Телефон: %s\n"+
		"Instagram: %s",
		venue.ID,
		html.EscapeString(venue.Name),
		html.EscapeString(venue.Category),
		html.EscapeString(venue.District),
		html.EscapeString(venue.Address),
		html.EscapeString(venue.Phone),
		html.EscapeString(instagram),
	)
	return []chat.Reply{chat.WithMenu(text, MainMenu())}, nil
}
