package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"rezme/internal/admin"
	"rezme/internal/chat"
	"rezme/internal/config"
	"rezme/internal/flow"
	"rezme/internal/metrics"
	"rezme/internal/models"
	"rezme/internal/state"

	"github.com/rs/zerolog"
)

// Users - регистрация пользователя по /start.
type Users interface {
	UpsertUser(ctx context.Context, user models.User) error
}

// Venues - публичный список заведений.
type Venues interface {
	ListAll() ([]models.Venue, error)
}

// Router сопоставляет входящее событие с обработчиком.
//
// Порядок: команды и кнопки главного меню (сбрасывают активный диалог),
// callback-и админ-меню, обработчики активного диалога, запасной ответ.
type Router struct {
	states   state.Store
	users    Users
	venues   Venues
	booking  *flow.Booking
	review   *flow.Review
	venueAdd *flow.VenueAdd
	admin    *admin.Service
	info     config.InfoConfig
	engines  []flow.Engine
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

type RouterDeps struct {
	States   state.Store
	Users    Users
	Venues   Venues
	Booking  *flow.Booking
	Review   *flow.Review
	VenueAdd *flow.VenueAdd
	Admin    *admin.Service
	Info     config.InfoConfig
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
}

func NewRouter(d RouterDeps) *Router {
	return &Router{
		states:   d.States,
		users:    d.Users,
		venues:   d.Venues,
		booking:  d.Booking,
		review:   d.Review,
		venueAdd: d.VenueAdd,
		admin:    d.Admin,
		info:     d.Info,
		engines:  []flow.Engine{d.Booking, d.Review, d.VenueAdd},
		metrics:  d.Metrics,
		log:      d.Logger.With().Str("component", "router").Logger(),
	}
}

// Handle обрабатывает одно событие и возвращает ответы пользователю.
// Ошибки не всплывают: они логируются и превращаются в сообщение об ошибке.
func (r *Router) Handle(ctx context.Context, ev chat.Event) []chat.Reply {
	start := time.Now()
	defer func() { r.metrics.ObserveUpdate(time.Since(start).Seconds()) }()

	r.metrics.IncUpdate(ev.Kind.String())
	r.log.Debug().
		Int64("user_id", ev.UserID).
		Str("kind", ev.Kind.String()).
		Str("command", ev.Command).
		Str("data", ev.Data).
		Msg("Update received")

	replies, err := r.route(ctx, ev)
	if err != nil {
		return r.fail(ctx, ev, err)
	}
	return replies
}

func (r *Router) route(ctx context.Context, ev chat.Event) ([]chat.Reply, error) {
	switch ev.Kind {
	case chat.KindCommand:
		return r.command(ctx, ev)
	case chat.KindCallback:
		return r.callback(ctx, ev)
	default:
		return r.text(ctx, ev)
	}
}

func (r *Router) fail(ctx context.Context, ev chat.Event, err error) []chat.Reply {
	r.metrics.IncError()

	if errors.Is(err, flow.ErrInvalidState) {
		r.log.Warn().Err(err).Int64("user_id", ev.UserID).Msg("Dialog state reset")
		if clearErr := r.states.Clear(ctx, ev.UserID); clearErr != nil {
			r.log.Error().Err(clearErr).Int64("user_id", ev.UserID).Msg("Failed to clear state")
		}
		return []chat.Reply{chat.WithMenu("Диалог устарел, начните заново из меню 👇", flow.MainMenu())}
	}

	r.log.Error().Err(err).Int64("user_id", ev.UserID).Str("kind", ev.Kind.String()).Msg("Failed to handle update")
	return []chat.Reply{flow.ErrorReply()}
}

// supersede сбрасывает активный диалог перед действием верхнего уровня.
func (r *Router) supersede(ctx context.Context, userID int64) error {
	return r.states.Clear(ctx, userID)
}

func (r *Router) command(ctx context.Context, ev chat.Event) ([]chat.Reply, error) {
	handlers := map[string]func(context.Context, chat.Event) ([]chat.Reply, error){
		"start":  r.start,
		"help":   r.help,
		"myid":   r.myID,
		"cancel": r.cancel,
	}
	// операторские команды: отказ не трогает активный диалог
	operator := map[string]func(context.Context, chat.Event) ([]chat.Reply, error){
		"admin":          r.admin.Panel,
		"admin_users":    r.admin.Users,
		"admin_bookings": r.admin.Bookings,
		"admin_reviews":  r.admin.Reviews,
		"admin_venues":   r.admin.Venues,
		"admin_export":   r.admin.Export,
		"add_venue":      r.venueAdd.Begin,
	}

	handler, ok := handlers[ev.Command]
	if !ok {
		if handler, ok = operator[ev.Command]; ok && !r.admin.Allowed(ev.UserID) {
			return handler(ctx, ev)
		}
	}
	if !ok {
		return []chat.Reply{chat.Text("Неизвестная команда. Список команд: /help")}, nil
	}
	if err := r.supersede(ctx, ev.UserID); err != nil {
		return nil, err
	}
	return handler(ctx, ev)
}

func (r *Router) text(ctx context.Context, ev chat.Event) ([]chat.Reply, error) {
	switch ev.Text {
	case flow.ButtonBook:
		return r.booking.Start(ctx, ev)
	case flow.ButtonReview:
		return r.review.Start(ctx, ev)
	case flow.ButtonVenues:
		if err := r.supersede(ctx, ev.UserID); err != nil {
			return nil, err
		}
		return r.allVenues()
	}
	if text, ok := r.infoText(ev.Text); ok {
		if err := r.supersede(ctx, ev.UserID); err != nil {
			return nil, err
		}
		return []chat.Reply{chat.WithMenu(text, flow.MainMenu())}, nil
	}

	tag, err := r.states.GetState(ctx, ev.UserID)
	if err != nil {
		return nil, err
	}
	engine := r.engine(tag)
	if engine == nil {
		if tag != state.None {
			if err := r.states.Clear(ctx, ev.UserID); err != nil {
				return nil, err
			}
		}
		return []chat.Reply{chat.WithMenu("Выберите действие из меню 👇", flow.MainMenu())}, nil
	}
	return engine.HandleText(ctx, tag, ev)
}

func (r *Router) callback(ctx context.Context, ev chat.Event) ([]chat.Reply, error) {
	if admin.Handles(ev.Data) {
		if ev.Data == admin.CallbackAddVenue {
			return r.venueAdd.Begin(ctx, ev)
		}
		return r.admin.HandleCallback(ctx, ev)
	}

	tag, err := r.states.GetState(ctx, ev.UserID)
	if err != nil {
		return nil, err
	}
	engine := r.engine(tag)
	if engine == nil {
		r.metrics.IncRejection("stray_callback")
		return []chat.Reply{flow.OutdatedReply()}, nil
	}
	return engine.HandleCallback(ctx, tag, ev)
}

func (r *Router) engine(tag string) flow.Engine {
	if tag == state.None {
		return nil
	}
	for _, e := range r.engines {
		if e.Owns(tag) {
			return e
		}
	}
	return nil
}

func (r *Router) start(ctx context.Context, ev chat.Event) ([]chat.Reply, error) {
	user := models.User{TgID: ev.UserID, Username: ev.Username, FirstName: ev.FirstName()}
	if err := r.users.UpsertUser(ctx, user); err != nil {
		return nil, err
	}

	name := ev.FirstName()
	if name == "" {
		name = "гость"
	}
	text := fmt.Sprintf("Привет, %s! 👋\n\n"+
		"Я RezMe, твой персональный гид по бронированию заведений в один клик! 🤖\n"+
		"Здесь собраны лучшие заведения твоего города, бронируй без лишних звонков и сообщений! 🤍\n"+
		"💡 Просто выбери категорию: где хочешь провести сегодня вечер?", html.EscapeString(name))
	return []chat.Reply{chat.WithMenu(text, flow.MainMenu())}, nil
}

func (r *Router) help(_ context.Context, _ chat.Event) ([]chat.Reply, error) {
	text := "ℹ️ Я помогу забронировать заведение:\n" +
		"• Кафе/рестораны\n" +
		"• Караоке\n" +
		"• Боулинг\n\n" +
		"Используй кнопки внизу экрана, чтобы начать 👇\n\n" +
		"/myid: ваш Telegram ID\n" +
		"/cancel: отменить текущее действие"
	return []chat.Reply{chat.WithMenu(text, flow.MainMenu())}, nil
}

func (r *Router) myID(_ context.Context, ev chat.Event) ([]chat.Reply, error) {
	return []chat.Reply{chat.Text(fmt.Sprintf("Ваш Telegram ID: <code>%d</code>", ev.UserID))}, nil
}

func (r *Router) cancel(_ context.Context, _ chat.Event) ([]chat.Reply, error) {
	return []chat.Reply{chat.WithMenu("Действие отменено.", flow.MainMenu())}, nil
}

func (r *Router) allVenues() ([]chat.Reply, error) {
	venues, err := r.venues.ListAll()
	if err != nil {
		return nil, err
	}
	if len(venues) == 0 {
		return []chat.Reply{chat.Text("Пока нет заведений в базе 🙂")}, nil
	}
	return []chat.Reply{chat.Text("Список заведений в нашей базе:\n\n" + flow.VenueCards(venues))}, nil
}

func (r *Router) infoText(button string) (string, bool) {
	var text, fallback string
	switch button {
	case flow.ButtonBusiness:
		text, fallback = r.info.Business, "Чтобы добавить своё заведение в нашу базу, напишите нам, и мы свяжемся с вами 🤝"
	case flow.ButtonNews:
		text, fallback = r.info.News, "Скоро здесь появятся новости и обновления 📰"
	case flow.ButtonInstagram:
		text, fallback = r.info.Instagram, "Наш Instagram скоро появится 📸"
	case flow.ButtonAssistant:
		text, fallback = r.info.Assistant, "ИИ-помощник пока в разработке 🤖"
	default:
		return "", false
	}
	if strings.TrimSpace(text) == "" {
		text = fallback
	}
	return text, true
}
