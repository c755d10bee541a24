package flow

import (
	"context"
	"errors"
	"fmt"
	"html"
	"slices"
	"strconv"
	"strings"
	"time"

	"rezme/internal/catalog"
	"rezme/internal/chat"
	"rezme/internal/metrics"
	"rezme/internal/models"
	"rezme/internal/notify"
	"rezme/internal/state"

	"github.com/rs/zerolog"
)

// Шаги бронирования.
const (
	BookingWaitingPhone     = "booking:waiting_phone"
	BookingChoosingMode     = "booking:choosing_mode"
	BookingChoosingCategory = "booking:choosing_category"
	BookingChoosingDistrict = "booking:choosing_district"
	BookingChoosingDate     = "booking:choosing_date"
	BookingChoosingTime     = "booking:choosing_time"
	BookingChoosingPeople   = "booking:choosing_people"
	BookingTypingComment    = "booking:typing_comment"
	BookingChoosingVenue    = "booking:choosing_venue"
)

var bookingSteps = []string{
	BookingWaitingPhone,
	BookingChoosingMode,
	BookingChoosingCategory, // ветки category и district занимают одну позицию
	BookingChoosingDate,
	BookingChoosingTime,
	BookingChoosingPeople,
	BookingTypingComment,
	BookingChoosingVenue,
}

func bookingRank(tag string) int {
	if tag == BookingChoosingDistrict {
		tag = BookingChoosingCategory
	}
	return slices.Index(bookingSteps, tag)
}

type Mode string

const (
	ModeCategory Mode = "category"
	ModeDistrict Mode = "district"
)

// bookingDraft - поля, собранные к текущему шагу бронирования.
type bookingDraft struct {
	Mode     Mode
	Category string
	District string
	Date     string
	Time     string
	People   int
	Comment  string
}

func decodeBooking(tag string, fields map[string]string) (bookingDraft, error) {
	d := bookingDraft{
		Mode:     Mode(fields["mode"]),
		Category: fields["category"],
		District: fields["district"],
		Date:     fields["date"],
		Time:     fields["time"],
		Comment:  fields["comment"],
	}
	if raw := fields["people"]; raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return d, fmt.Errorf("%w: people %q", ErrInvalidState, raw)
		}
		d.People = n
	}

	rank := bookingRank(tag)
	if rank < 0 {
		return d, fmt.Errorf("%w: unknown booking step %q", ErrInvalidState, tag)
	}
	switch {
	case tag == BookingChoosingCategory && d.Mode != ModeCategory,
		tag == BookingChoosingDistrict && d.Mode != ModeDistrict:
		return d, fmt.Errorf("%w: mode %q at %s", ErrInvalidState, d.Mode, tag)
	case rank >= bookingRank(BookingChoosingDate) && d.filter() == "":
		return d, fmt.Errorf("%w: no filter at %s", ErrInvalidState, tag)
	case rank >= bookingRank(BookingChoosingTime) && d.Date == "":
		return d, fmt.Errorf("%w: no date at %s", ErrInvalidState, tag)
	case rank >= bookingRank(BookingChoosingPeople) && d.Time == "":
		return d, fmt.Errorf("%w: no time at %s", ErrInvalidState, tag)
	case rank >= bookingRank(BookingTypingComment) && d.People <= 0:
		return d, fmt.Errorf("%w: no people at %s", ErrInvalidState, tag)
	}
	return d, nil
}

// filter - значение фильтра выбранной ветки.
func (d bookingDraft) filter() string {
	switch d.Mode {
	case ModeCategory:
		return d.Category
	case ModeDistrict:
		return d.District
	}
	return ""
}

// label - значение поля category брони.
func (d bookingDraft) label() string {
	if d.Mode == ModeDistrict {
		return "Район: " + d.District
	}
	return d.Category
}

func (d bookingDraft) filterLine() string {
	if d.Mode == ModeDistrict {
		return "Район: " + d.District
	}
	return "Тип заведения: " + d.Category
}

func (d bookingDraft) matches(v models.Venue) bool {
	if d.Mode == ModeDistrict {
		return v.District == d.District
	}
	return v.Category == d.Category
}

type BookingOptions struct {
	Categories []string
	Times      []string
	PeopleMax  int
}

// BookingRepository - часть хранилища, нужная бронированию.
type BookingRepository interface {
	GetUserPhone(ctx context.Context, tgID int64) (string, error)
	SaveUserPhone(ctx context.Context, user models.User) error
	CreateBooking(ctx context.Context, b models.Booking) (int64, error)
}

// Booking - диалог бронирования.
type Booking struct {
	states   state.Store
	repo     BookingRepository
	catalog  Catalog
	notifier notify.Notifier
	opts     BookingOptions
	metrics  *metrics.Metrics
	log      zerolog.Logger
	now      func() time.Time

	notifyTimeout time.Duration
}

// NotifyTimeout ограничивает доставку уведомления оператору.
const NotifyTimeout = 10 * time.Second

func NewBooking(states state.Store, repo BookingRepository, venues Catalog, notifier notify.Notifier, opts BookingOptions, m *metrics.Metrics, log zerolog.Logger) *Booking {
	if opts.PeopleMax <= 0 {
		opts.PeopleMax = 6
	}
	return &Booking{
		states:   states,
		repo:     repo,
		catalog:  venues,
		notifier: notifier,
		opts:     opts,
		metrics:  m,
		log:      log.With().Str("component", "booking").Logger(),
		now:      time.Now,

		notifyTimeout: NotifyTimeout,
	}
}

func (b *Booking) Owns(tag string) bool {
	return strings.HasPrefix(tag, "booking:")
}

// Start начинает бронирование заново, сбрасывая любой другой диалог.
func (b *Booking) Start(ctx context.Context, ev chat.Event) ([]chat.Reply, error) {
	if err := b.states.Clear(ctx, ev.UserID); err != nil {
		return nil, err
	}

	phone, err := b.repo.GetUserPhone(ctx, ev.UserID)
	if err != nil {
		return nil, err
	}
	if phone == "" {
		if err := b.states.SetState(ctx, ev.UserID, BookingWaitingPhone); err != nil {
			return nil, err
		}
		return []chat.Reply{chat.WithMenu(
			"📱 Перед бронированием отправьте, пожалуйста, номер телефона.\n\n"+
				"Нажмите кнопку «"+ButtonSendPhone+"» ниже.",
			PhoneMenu(),
		)}, nil
	}

	if err := b.states.SetState(ctx, ev.UserID, BookingChoosingMode); err != nil {
		return nil, err
	}
	return []chat.Reply{chat.WithMenu("Как будем подбирать заведение? 👇", modeMenu())}, nil
}

func (b *Booking) HandleText(ctx context.Context, tag string, ev chat.Event) ([]chat.Reply, error) {
	switch tag {
	case BookingWaitingPhone:
		return b.phone(ctx, ev)
	case BookingTypingComment:
		return b.comment(ctx, tag, ev)
	}
	b.metrics.IncRejection("text_instead_of_button")
	return []chat.Reply{chat.Text(msgUseMenu)}, nil
}

func (b *Booking) HandleCallback(ctx context.Context, tag string, ev chat.Event) ([]chat.Reply, error) {
	switch tag {
	case BookingChoosingMode:
		return b.chooseMode(ctx, ev)
	case BookingChoosingCategory:
		return b.chooseCategory(ctx, tag, ev)
	case BookingChoosingDistrict:
		return b.chooseDistrict(ctx, tag, ev)
	case BookingChoosingDate:
		return b.chooseDate(ctx, tag, ev)
	case BookingChoosingTime:
		return b.chooseTime(ctx, tag, ev)
	case BookingChoosingPeople:
		return b.choosePeople(ctx, tag, ev)
	case BookingChoosingVenue:
		return b.chooseVenue(ctx, tag, ev)
	}
	return b.reject("unknown_payload", msgOutdated), nil
}

func (b *Booking) reject(reason, alert string) []chat.Reply {
	b.metrics.IncRejection(reason)
	return []chat.Reply{chat.Alert(alert)}
}

func (b *Booking) draft(ctx context.Context, tag string, userID int64) (bookingDraft, error) {
	fields, err := b.states.GetFields(ctx, userID)
	if err != nil {
		return bookingDraft{}, err
	}
	return decodeBooking(tag, fields)
}

// advance сохраняет поля и переводит диалог на следующий шаг.
func (b *Booking) advance(ctx context.Context, userID int64, next string, fields map[string]string) error {
	if len(fields) > 0 {
		if err := b.states.UpdateFields(ctx, userID, fields); err != nil {
			return err
		}
	}
	return b.states.SetState(ctx, userID, next)
}

func (b *Booking) phone(ctx context.Context, ev chat.Event) ([]chat.Reply, error) {
	if ev.Phone == "" {
		b.metrics.IncRejection("phone_not_contact")
		return []chat.Reply{chat.WithMenu("Пожалуйста, нажмите кнопку «"+ButtonSendPhone+"» ниже 🙂", PhoneMenu())}, nil
	}

	user := models.User{TgID: ev.UserID, Username: ev.Username, FirstName: ev.FirstName(), Phone: ev.Phone}
	if err := b.repo.SaveUserPhone(ctx, user); err != nil {
		return nil, err
	}
	if err := b.advance(ctx, ev.UserID, BookingChoosingMode, nil); err != nil {
		return nil, err
	}
	return []chat.Reply{
		chat.WithMenu("Спасибо! Сохранил ваш номер телефона ✅", MainMenu()),
		chat.WithMenu("Теперь выберите, как будем подбирать заведение 👇", modeMenu()),
	}, nil
}

func (b *Booking) chooseMode(ctx context.Context, ev chat.Event) ([]chat.Reply, error) {
	switch ev.Data {
	case "mode:category":
		if err := b.advance(ctx, ev.UserID, BookingChoosingCategory, map[string]string{"mode": string(ModeCategory)}); err != nil {
			return nil, err
		}
		return []chat.Reply{{Text: "Выберите категорию / вид заведения 👇", Menu: b.categoriesMenu(), Edit: true}}, nil

	case "mode:district":
		districts, err := b.catalog.Districts()
		if err != nil {
			return nil, err
		}
		if len(districts) == 0 {
			if err := b.states.Clear(ctx, ev.UserID); err != nil {
				return nil, err
			}
			return []chat.Reply{
				{Text: "Районы пока не заполнены 😔", Edit: true},
				chat.WithMenu("Можете вернуться в меню 👇", MainMenu()),
			}, nil
		}
		if err := b.advance(ctx, ev.UserID, BookingChoosingDistrict, map[string]string{"mode": string(ModeDistrict)}); err != nil {
			return nil, err
		}
		return []chat.Reply{{Text: "Выберите район 👇", Menu: districtsMenu(districts), Edit: true}}, nil
	}
	return b.reject("unknown_payload", msgOutdated), nil
}

func (b *Booking) chooseCategory(ctx context.Context, tag string, ev chat.Event) ([]chat.Reply, error) {
	category, ok := payload(ev.Data, "cat:")
	if !ok || !slices.Contains(b.opts.Categories, category) {
		return b.reject("unknown_payload", msgOutdated), nil
	}
	if _, err := b.draft(ctx, tag, ev.UserID); err != nil {
		return nil, err
	}
	if err := b.advance(ctx, ev.UserID, BookingChoosingDate, map[string]string{"category": category}); err != nil {
		return nil, err
	}
	now := b.now()
	return []chat.Reply{{
		Text: fmt.Sprintf("Категория: <b>%s</b>\n\nВыберите дату:", html.EscapeString(category)),
		Menu: MonthCalendar(now.Year(), now.Month()),
		Edit: true,
	}}, nil
}

func (b *Booking) chooseDistrict(ctx context.Context, tag string, ev chat.Event) ([]chat.Reply, error) {
	district, ok := payload(ev.Data, districtPrefix)
	if !ok {
		return b.reject("unknown_payload", msgOutdated), nil
	}
	districts, err := b.catalog.Districts()
	if err != nil {
		return nil, err
	}
	if !slices.Contains(districts, district) {
		return b.reject("unknown_district", "Такого района больше нет в базе"), nil
	}
	if _, err := b.draft(ctx, tag, ev.UserID); err != nil {
		return nil, err
	}
	if err := b.advance(ctx, ev.UserID, BookingChoosingDate, map[string]string{"district": district}); err != nil {
		return nil, err
	}
	now := b.now()
	return []chat.Reply{{
		Text: fmt.Sprintf("Район: <b>%s</b>\n\nВыберите дату:", html.EscapeString(district)),
		Menu: MonthCalendar(now.Year(), now.Month()),
		Edit: true,
	}}, nil
}

func (b *Booking) chooseDate(ctx context.Context, tag string, ev chat.Event) ([]chat.Reply, error) {
	if ev.Data == calIgnore {
		return nil, nil
	}

	if ym, ok := payload(ev.Data, calPrev); ok {
		return b.navigate(ym, -1), nil
	}
	if ym, ok := payload(ev.Data, calNext); ok {
		return b.navigate(ym, 1), nil
	}

	raw, ok := payload(ev.Data, calDay)
	if !ok {
		return b.reject("unknown_payload", msgOutdated), nil
	}
	date, err := time.Parse(dateLayout, raw)
	if err != nil {
		return b.reject("unknown_payload", msgOutdated), nil
	}
	if isPast(date, b.now()) {
		return b.reject("past_date", "❌ Нельзя выбрать прошедшую дату"), nil
	}
	if _, err := b.draft(ctx, tag, ev.UserID); err != nil {
		return nil, err
	}
	if err := b.advance(ctx, ev.UserID, BookingChoosingTime, map[string]string{"date": raw}); err != nil {
		return nil, err
	}
	return []chat.Reply{{
		Text: fmt.Sprintf("Дата: <b>%s</b> ✅\n\nТеперь выберите время:", humanDate(date)),
		Menu: b.timeMenu(),
		Edit: true,
	}}, nil
}

// navigate листает календарь. Шаг диалога не меняется.
func (b *Booking) navigate(ym string, delta int) []chat.Reply {
	year, month, err := shiftMonth(ym, delta)
	if err != nil {
		return b.reject("unknown_payload", msgOutdated)
	}
	return []chat.Reply{{Text: "Выберите дату:", Menu: MonthCalendar(year, month), Edit: true}}
}

func (b *Booking) chooseTime(ctx context.Context, tag string, ev chat.Event) ([]chat.Reply, error) {
	t, ok := payload(ev.Data, "time:")
	if !ok || !slices.Contains(b.opts.Times, t) {
		return b.reject("unknown_payload", msgOutdated), nil
	}
	if _, err := b.draft(ctx, tag, ev.UserID); err != nil {
		return nil, err
	}
	if err := b.advance(ctx, ev.UserID, BookingChoosingPeople, map[string]string{"time": t}); err != nil {
		return nil, err
	}
	return []chat.Reply{{
		Text: fmt.Sprintf("Время: <b>%s</b> ✅\n\nСколько человек будет?", t),
		Menu: b.peopleMenu(),
		Edit: true,
	}}, nil
}

func (b *Booking) choosePeople(ctx context.Context, tag string, ev chat.Event) ([]chat.Reply, error) {
	raw, ok := payload(ev.Data, "people:")
	n, err := strconv.Atoi(raw)
	if !ok || err != nil || n < 1 || n > b.opts.PeopleMax {
		return b.reject("unknown_payload", msgOutdated), nil
	}
	if _, err := b.draft(ctx, tag, ev.UserID); err != nil {
		return nil, err
	}
	if err := b.advance(ctx, ev.UserID, BookingTypingComment, map[string]string{"people": strconv.Itoa(n)}); err != nil {
		return nil, err
	}
	return []chat.Reply{{
		Text: fmt.Sprintf("Количество человек: <b>%s</b> ✅\n\n"+
			"Напишите, пожалуйста, комментарий к брони (повод, бюджет, предпочтения). "+
			"Если без комментариев, напишите «нет».", b.peopleLabel(n)),
		Edit: true,
	}}, nil
}

func (b *Booking) comment(ctx context.Context, tag string, ev chat.Event) ([]chat.Reply, error) {
	d, err := b.draft(ctx, tag, ev.UserID)
	if err != nil {
		return nil, err
	}
	d.Comment = Optional(ev.Text)

	venues, err := b.candidates(d)
	if err != nil {
		return nil, err
	}
	if len(venues) == 0 {
		if err := b.states.Clear(ctx, ev.UserID); err != nil {
			return nil, err
		}
		return []chat.Reply{chat.WithMenu(
			"Пока нет заведений по выбранным параметрам 😔\n"+
				"Мы всё равно свяжемся с вами при появлении подходящих вариантов.",
			MainMenu(),
		)}, nil
	}

	if err := b.advance(ctx, ev.UserID, BookingChoosingVenue, map[string]string{"comment": d.Comment}); err != nil {
		return nil, err
	}

	buttons := make([][]chat.Button, 0, len(venues))
	for _, v := range venues {
		buttons = append(buttons, chat.Row(chat.Button{Text: v.Name, Data: "venue:" + strconv.FormatInt(v.ID, 10)}))
	}
	return []chat.Reply{chat.WithMenu(
		"Варианты заведений:\n\n"+VenueCards(venues)+"\n\nТеперь выберите, для какого заведения оформить бронь 👇",
		chat.Inline(buttons...),
	)}, nil
}

func (b *Booking) candidates(d bookingDraft) ([]models.Venue, error) {
	switch d.Mode {
	case ModeCategory:
		return b.catalog.ListByCategory(d.Category)
	case ModeDistrict:
		return b.catalog.ListByDistrict(d.District)
	}
	return nil, nil
}

func (b *Booking) chooseVenue(ctx context.Context, tag string, ev chat.Event) ([]chat.Reply, error) {
	raw, ok := payload(ev.Data, "venue:")
	id, err := strconv.ParseInt(raw, 10, 64)
	if !ok || err != nil {
		return b.reject("unknown_payload", msgOutdated), nil
	}

	d, err := b.draft(ctx, tag, ev.UserID)
	if err != nil {
		return nil, err
	}

	venue, err := b.catalog.Get(id)
	if errors.Is(err, catalog.ErrNotFound) {
		return b.reject("venue_not_found", "Не удалось найти заведение"), nil
	}
	if err != nil {
		return nil, err
	}
	if !d.matches(venue) {
		return b.reject("venue_mismatch", "Это заведение не подходит под выбранные параметры"), nil
	}

	bookingID, err := b.repo.CreateBooking(ctx, models.Booking{
		TgID:        ev.UserID,
		VenueID:     &venue.ID,
		Category:    d.label(),
		Date:        d.Date,
		Time:        d.Time,
		PeopleCount: d.People,
		Comment:     d.Comment,
	})
	if err != nil {
		return nil, err
	}
	b.metrics.IncBooking(string(d.Mode))

	if err := b.states.Clear(ctx, ev.UserID); err != nil {
		b.log.Error().Err(err).Int64("user_id", ev.UserID).Msg("Failed to clear state after booking")
	}

	b.log.Info().
		Int64("booking_id", bookingID).
		Int64("user_id", ev.UserID).
		Int64("venue_id", venue.ID).
		Str("date", d.Date).
		Str("time", d.Time).
		Msg("Booking created")

	b.notify(ctx, ev, d, venue, bookingID)

	return []chat.Reply{
		{Text: b.confirmation(d, venue), Edit: true},
		chat.WithMenu("Можете вернуться в меню 👇", MainMenu()),
	}, nil
}

func (b *Booking) confirmation(d bookingDraft, venue models.Venue) string {
	comment := d.Comment
	if comment == "" {
		comment = "без комментариев"
	}
	filter := strings.SplitN(d.filterLine(), ": ", 2)

	var sb strings.Builder
	sb.WriteString("✅ Ваша заявка на бронь принята!\n\n")
	fmt.Fprintf(&sb, "• %s: <b>%s</b>\n", filter[0], html.EscapeString(filter[1]))
	fmt.Fprintf(&sb, "• Заведение: <b>%s</b>\n", html.EscapeString(venue.Name))
	fmt.Fprintf(&sb, "• Дата: <b>%s</b>\n", notify.HumanDate(d.Date))
	fmt.Fprintf(&sb, "• Время: <b>%s</b>\n", d.Time)
	fmt.Fprintf(&sb, "• Количество человек: <b>%s</b>\n", b.peopleLabel(d.People))
	fmt.Fprintf(&sb, "• Комментарий: <b>%s</b>\n\n", html.EscapeString(comment))
	sb.WriteString("Мы свяжемся с заведением и сообщим вам о подтверждении.")
	return sb.String()
}

// notify отправляет уведомление оператору. Ошибки только логируются.
func (b *Booking) notify(ctx context.Context, ev chat.Event, d bookingDraft, venue models.Venue, bookingID int64) {
	if b.notifier == nil {
		return
	}

	phone, err := b.repo.GetUserPhone(ctx, ev.UserID)
	if err != nil {
		b.log.Warn().Err(err).Int64("user_id", ev.UserID).Msg("Failed to load phone for notification")
	}

	notice := notify.BookingNotice{
		BookingID:  bookingID,
		UserID:     ev.UserID,
		Username:   ev.Username,
		FullName:   ev.FullName,
		Phone:      phone,
		FilterLine: d.filterLine(),
		VenueID:    venue.ID,
		VenueName:  venue.Name,
		Date:       d.Date,
		Time:       d.Time,
		People:     b.peopleLabel(d.People),
		Comment:    d.Comment,
		CreatedAt:  b.now(),
	}
	ctx, cancel := context.WithTimeout(ctx, b.notifyTimeout)
	defer cancel()
	if err := b.notifier.NotifyBooking(ctx, notice); err != nil {
		b.metrics.IncNotifyFailure()
		b.log.Warn().Err(err).Int64("booking_id", bookingID).Msg("Failed to notify operator")
	}
}

func (b *Booking) peopleLabel(n int) string {
	if n >= b.opts.PeopleMax {
		return strconv.Itoa(b.opts.PeopleMax) + "+"
	}
	return strconv.Itoa(n)
}

func modeMenu() *chat.Menu {
	return chat.Inline(
		chat.Row(chat.Button{Text: "Выбрать категорию / вид заведения", Data: "mode:category"}),
		chat.Row(chat.Button{Text: "Выбрать заведение по району", Data: "mode:district"}),
	)
}

func (b *Booking) categoriesMenu() *chat.Menu {
	rows := make([][]chat.Button, 0, len(b.opts.Categories))
	for _, c := range b.opts.Categories {
		rows = append(rows, chat.Row(chat.Button{Text: c, Data: "cat:" + c}))
	}
	return chat.Inline(rows...)
}

// districtsMenu пропускает районы, которые не помещаются в payload кнопки:
// Telegram отклоняет всю клавиатуру целиком.
func districtsMenu(districts []string) *chat.Menu {
	buttons := make([]chat.Button, 0, len(districts))
	for _, d := range districts {
		if !fitsCallback(districtPrefix, d) {
			continue
		}
		buttons = append(buttons, chat.Button{Text: d, Data: districtPrefix + d})
	}
	return chat.Inline(chat.Chunk(buttons, 2)...)
}

func (b *Booking) timeMenu() *chat.Menu {
	buttons := make([]chat.Button, 0, len(b.opts.Times))
	for _, t := range b.opts.Times {
		buttons = append(buttons, chat.Button{Text: t, Data: "time:" + t})
	}
	return chat.Inline(chat.Chunk(buttons, 3)...)
}

func (b *Booking) peopleMenu() *chat.Menu {
	buttons := make([]chat.Button, 0, b.opts.PeopleMax)
	for n := 1; n <= b.opts.PeopleMax; n++ {
		buttons = append(buttons, chat.Button{Text: b.peopleLabel(n), Data: "people:" + strconv.Itoa(n)})
	}
	return chat.Inline(chat.Chunk(buttons, 3)...)
}
