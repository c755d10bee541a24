package admin

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"rezme/internal/catalog"
	"rezme/internal/chat"
	"rezme/internal/export"
	"rezme/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const operatorID = int64(1)

type countingRepo struct {
	reads    int
	users    []models.User
	bookings []models.Booking
	reviews  []models.Review
}

func (r *countingRepo) CountUsers(context.Context) (int, error) {
	r.reads++
	return len(r.users), nil
}

func (r *countingRepo) CountBookings(context.Context) (int, error) {
	r.reads++
	return len(r.bookings), nil
}

func (r *countingRepo) CountReviews(context.Context) (int, error) {
	r.reads++
	return len(r.reviews), nil
}

func (r *countingRepo) ListUsers(context.Context) ([]models.User, error) {
	r.reads++
	return r.users, nil
}

func (r *countingRepo) LastBookings(_ context.Context, limit int) ([]models.Booking, error) {
	r.reads++
	if len(r.bookings) > limit {
		return r.bookings[:limit], nil
	}
	return r.bookings, nil
}

func (r *countingRepo) LastReviews(_ context.Context, limit int) ([]models.Review, error) {
	r.reads++
	if len(r.reviews) > limit {
		return r.reviews[:limit], nil
	}
	return r.reviews, nil
}

type countingCatalog struct {
	calls  int
	venues []models.Venue
}

func (c *countingCatalog) ListAll() ([]models.Venue, error) {
	c.calls++
	return append([]models.Venue(nil), c.venues...), nil
}

func (c *countingCatalog) Get(id int64) (models.Venue, error) {
	c.calls++
	for _, v := range c.venues {
		if v.ID == id {
			return v, nil
		}
	}
	return models.Venue{}, catalog.ErrNotFound
}

func (c *countingCatalog) Remove(id int64) (bool, error) {
	c.calls++
	for i, v := range c.venues {
		if v.ID == id {
			c.venues = append(c.venues[:i], c.venues[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

type fakeExporter struct {
	rows []export.BookingRow
	err  error
}

func (e *fakeExporter) Bookings(rows []export.BookingRow) (string, error) {
	e.rows = rows
	return "/tmp/bookings.xlsx", e.err
}

type fixture struct {
	svc      *Service
	repo     *countingRepo
	catalog  *countingCatalog
	exporter *fakeExporter
}

func newFixture() *fixture {
	f := &fixture{
		repo:     &countingRepo{},
		catalog:  &countingCatalog{venues: append([]models.Venue(nil), catalog.DefaultVenues...)},
		exporter: &fakeExporter{},
	}
	f.svc = NewService(func(id int64) bool { return id == operatorID }, f.repo, f.catalog, f.exporter, 0, nil, zerolog.Nop())
	return f
}

func command(user int64, name string) chat.Event {
	return chat.Event{UserID: user, ChatID: user, Kind: chat.KindCommand, Command: name}
}

func callback(user int64, data string) chat.Event {
	return chat.Event{UserID: user, ChatID: user, Kind: chat.KindCallback, Data: data}
}

func ptr(id int64) *int64 { return &id }

func TestNonOperatorGetsRefusalAndNoReads(t *testing.T) {
	entries := map[string]func(*Service, context.Context, chat.Event) ([]chat.Reply, error){
		"stats":       (*Service).Stats,
		"users":       (*Service).Users,
		"bookings":    (*Service).Bookings,
		"reviews":     (*Service).Reviews,
		"venues":      (*Service).Venues,
		"delete menu": (*Service).DeleteMenu,
		"export":      (*Service).Export,
		"delete": func(s *Service, ctx context.Context, ev chat.Event) ([]chat.Reply, error) {
			return s.Delete(ctx, ev, "3")
		},
	}
	for name, call := range entries {
		t.Run(name, func(t *testing.T) {
			f := newFixture()

			replies, err := call(f.svc, context.Background(), command(2, name))
			require.NoError(t, err)
			assert.Equal(t, []chat.Reply{chat.Text(msgDenied)}, replies)

			replies, err = call(f.svc, context.Background(), callback(2, name))
			require.NoError(t, err)
			assert.Equal(t, []chat.Reply{chat.Alert(msgDenied)}, replies)

			assert.Zero(t, f.repo.reads)
			assert.Zero(t, f.catalog.calls)
			assert.Nil(t, f.exporter.rows)
		})
	}
}

func TestPanelRefusalText(t *testing.T) {
	f := newFixture()
	replies, err := f.svc.Panel(context.Background(), command(2, "admin"))
	require.NoError(t, err)
	assert.Equal(t, msgPanelDenied, replies[0].Text)
	assert.Zero(t, f.repo.reads)
}

func TestPanelShowsCounts(t *testing.T) {
	f := newFixture()
	f.repo.users = make([]models.User, 3)
	f.repo.bookings = make([]models.Booking, 2)

	replies, err := f.svc.Panel(context.Background(), command(operatorID, "admin"))
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "Пользователи: <b>3</b>")
	assert.Contains(t, replies[0].Text, "Брони: <b>2</b>")
	assert.Contains(t, replies[0].Text, "Отзывы: <b>0</b>")
	assert.Equal(t, Menu(), replies[0].Menu)
}

func TestUsersCappedAtFifty(t *testing.T) {
	f := newFixture()
	for i := 0; i < 60; i++ {
		f.repo.users = append(f.repo.users, models.User{TgID: int64(1000 - i), FirstName: fmt.Sprintf("u%d", i), CreatedAt: time.Now()})
	}

	replies, err := f.svc.Users(context.Background(), command(operatorID, "admin_users"))
	require.NoError(t, err)
	assert.Contains(t, replies[0].Text, "id=1000)")
	assert.Contains(t, replies[0].Text, "<b>u49</b>")
	assert.NotContains(t, replies[0].Text, "<b>u50</b>")
}

func TestBookingsRenderPlaceholderForDanglingVenue(t *testing.T) {
	f := newFixture()
	f.repo.bookings = []models.Booking{
		{TgID: 5, VenueID: ptr(99), Category: "Караоке", Date: "2026-10-20", Time: "18:00", PeopleCount: 2},
		{TgID: 6, VenueID: nil, Category: "Район: Центр", Date: "2026-10-21", Time: "19:00", PeopleCount: 1, Comment: "<b>"},
		{TgID: 7, VenueID: ptr(1), Category: "Кафе/Рестораны", Date: "2026-10-22", Time: "20:00", PeopleCount: 3},
	}

	replies, err := f.svc.Bookings(context.Background(), callback(operatorID, CallbackBookings))
	require.NoError(t, err)
	text := replies[0].Text
	assert.Contains(t, text, "Пользователь id=5\n  Заведение: —")
	assert.Contains(t, text, "Пользователь id=6\n  Заведение: —")
	assert.Contains(t, text, "Заведение: Cafe Central")
	assert.Contains(t, text, "Комментарий: &lt;b&gt;")
	assert.Equal(t, 1, f.catalog.calls, "catalog is read once per listing")
}

func TestRecentListingsAreBounded(t *testing.T) {
	f := newFixture()
	for i := 0; i < 40; i++ {
		f.repo.reviews = append(f.repo.reviews, models.Review{TgID: int64(i), VenueID: ptr(1), Rating: 5})
	}

	replies, err := f.svc.Reviews(context.Background(), command(operatorID, "admin_reviews"))
	require.NoError(t, err)
	assert.Contains(t, replies[0].Text, "Пользователь id=29\n")
	assert.NotContains(t, replies[0].Text, "Пользователь id=30\n")
}

func TestEmptyListings(t *testing.T) {
	f := newFixture()
	f.catalog.venues = nil
	ctx := context.Background()
	ev := command(operatorID, "x")

	for _, call := range []func(context.Context, chat.Event) ([]chat.Reply, error){
		f.svc.Users, f.svc.Bookings, f.svc.Reviews, f.svc.Venues, f.svc.DeleteMenu, f.svc.Export,
	} {
		replies, err := call(ctx, ev)
		require.NoError(t, err)
		require.Len(t, replies, 1)
		assert.Contains(t, replies[0].Text, "пока нет")
	}
}

func TestDeleteVenue(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	replies, err := f.svc.HandleCallback(ctx, callback(operatorID, CallbackDelVenue))
	require.NoError(t, err)
	assert.Len(t, replies[0].Menu.Rows, 4)
	assert.Equal(t, chat.Button{Text: "🗑 Karaoke Night (id=3)", Data: "admin_del_venue:3"}, replies[0].Menu.Rows[2][0])

	replies, err = f.svc.HandleCallback(ctx, callback(operatorID, "admin_del_venue:3"))
	require.NoError(t, err)
	assert.Contains(t, replies[0].Text, "Karaoke Night")

	all, err := f.catalog.ListAll()
	require.NoError(t, err)
	for _, v := range all {
		assert.NotEqual(t, int64(3), v.ID)
	}
	assert.Len(t, all, 3)

	replies, err = f.svc.HandleCallback(ctx, callback(operatorID, "admin_del_venue:3"))
	require.NoError(t, err)
	assert.Equal(t, "Заведение не найдено.", replies[0].Alert)
}

func TestExport(t *testing.T) {
	f := newFixture()
	f.repo.bookings = []models.Booking{{ID: 1, TgID: 5, VenueID: ptr(3)}, {ID: 2, TgID: 6, VenueID: ptr(42)}}

	replies, err := f.svc.Export(context.Background(), command(operatorID, "admin_export"))
	require.NoError(t, err)
	require.Len(t, replies, 1)
	require.NotNil(t, replies[0].Document)
	assert.Equal(t, "/tmp/bookings.xlsx", replies[0].Document.Path)

	require.Len(t, f.exporter.rows, 2)
	assert.Equal(t, "Karaoke Night", f.exporter.rows[0].VenueName)
	assert.Equal(t, "—", f.exporter.rows[1].VenueName)

	f.exporter.err = errors.New("disk full")
	_, err = f.svc.Export(context.Background(), command(operatorID, "admin_export"))
	assert.Error(t, err)
}

func TestHandles(t *testing.T) {
	assert.True(t, Handles(CallbackStats))
	assert.True(t, Handles("admin_del_venue:1"))
	assert.False(t, Handles("venue:1"))
}

func TestUnknownAdminCallback(t *testing.T) {
	f := newFixture()
	replies, err := f.svc.HandleCallback(context.Background(), callback(operatorID, "admin:nope"))
	require.NoError(t, err)
	assert.NotEmpty(t, replies[0].Alert)
}
