package flow

import (
	"context"
	"testing"

	"rezme/internal/catalog"
	"rezme/internal/models"
	"rezme/internal/state"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reviewFixture struct {
	flow    *Review
	states  *state.MemoryStore
	repo    *fakeRepo
	catalog *catalog.Store
}

func newReviewFixture(t *testing.T) *reviewFixture {
	t.Helper()
	f := &reviewFixture{states: state.NewMemoryStore(), repo: newFakeRepo(), catalog: newCatalog(t)}
	f.flow = NewReview(f.states, f.repo, f.catalog, nil, zerolog.Nop())
	return f
}

func (f *reviewFixture) book(venueID int64) {
	f.repo.bookings = append(f.repo.bookings, models.Booking{TgID: userID, VenueID: &venueID, Date: "2026-10-17", Time: "18:00", PeopleCount: 2})
}

func TestReviewWithoutBookingsDoesNotStart(t *testing.T) {
	f := newReviewFixture(t)

	replies, err := f.flow.Start(context.Background(), textEvent(ButtonReview))
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "нет броней")
	assert.Equal(t, state.None, currentState(t, f.states))
}

func TestReviewHappyPath(t *testing.T) {
	f := newReviewFixture(t)
	f.book(3)
	f.book(1)
	f.book(3)

	replies, err := f.flow.Start(context.Background(), textEvent(ButtonReview))
	require.NoError(t, err)
	assert.Equal(t, []string{"rev_venue:3", "rev_venue:1"}, buttonData(replies[0].Menu))
	assert.Equal(t, ReviewChoosingVenue, currentState(t, f.states))

	replies = dispatch(t, f.flow, f.states, callbackEvent("rev_venue:1"))
	assert.Contains(t, replies[0].Text, "Cafe Central")
	assert.Len(t, buttonData(replies[0].Menu), 5)
	assert.Equal(t, ReviewChoosingRating, currentState(t, f.states))

	dispatch(t, f.flow, f.states, callbackEvent("rev_rate:4"))
	assert.Equal(t, ReviewTypingText, currentState(t, f.states))

	replies = dispatch(t, f.flow, f.states, textEvent("  Отличный кофе "))
	assert.Contains(t, replies[0].Text, "Оценка: <b>4⭐️</b>")

	require.Len(t, f.repo.reviews, 1)
	r := f.repo.reviews[0]
	assert.Equal(t, int64(1), *r.VenueID)
	assert.Equal(t, 4, r.Rating)
	assert.Equal(t, "Отличный кофе", r.Text)
	assert.Equal(t, state.None, currentState(t, f.states))
}

func TestReviewCandidatesSkipDeletedVenues(t *testing.T) {
	f := newReviewFixture(t)
	f.book(3)
	f.book(1)
	_, err := f.catalog.Remove(3)
	require.NoError(t, err)

	replies, err := f.flow.Start(context.Background(), textEvent(ButtonReview))
	require.NoError(t, err)
	assert.Equal(t, []string{"rev_venue:1"}, buttonData(replies[0].Menu))
}

func TestReviewOnlyDeletedVenuesDoesNotStart(t *testing.T) {
	f := newReviewFixture(t)
	f.book(3)
	_, err := f.catalog.Remove(3)
	require.NoError(t, err)

	_, err = f.flow.Start(context.Background(), textEvent(ButtonReview))
	require.NoError(t, err)
	assert.Equal(t, state.None, currentState(t, f.states))
}

func TestReviewForDeletedVenueIsGatedByBooking(t *testing.T) {
	f := newReviewFixture(t)
	f.book(3)
	f.book(1)

	_, err := f.flow.Start(context.Background(), textEvent(ButtonReview))
	require.NoError(t, err)

	// оператор удалил заведение после того, как пользователь открыл список
	ok, err := f.catalog.Remove(3)
	require.NoError(t, err)
	require.True(t, ok)

	replies := dispatch(t, f.flow, f.states, callbackEvent("rev_venue:3"))
	require.False(t, isAlert(replies))
	assert.Contains(t, replies[0].Text, "Заведение: <b>—</b>")

	dispatch(t, f.flow, f.states, callbackEvent("rev_rate:2"))
	replies = dispatch(t, f.flow, f.states, textEvent("нет"))
	assert.Contains(t, replies[0].Text, "Заведение: <b>—</b>")
	assert.Contains(t, replies[0].Text, "Отзыв: <b>без текста</b>")

	require.Len(t, f.repo.reviews, 1)
	assert.Equal(t, int64(3), *f.repo.reviews[0].VenueID)
	assert.Equal(t, "", f.repo.reviews[0].Text)
}

func TestReviewVenueWithoutBookingRejected(t *testing.T) {
	f := newReviewFixture(t)
	f.book(1)

	_, err := f.flow.Start(context.Background(), textEvent(ButtonReview))
	require.NoError(t, err)

	replies := dispatch(t, f.flow, f.states, callbackEvent("rev_venue:2"))
	require.True(t, isAlert(replies))
	assert.Equal(t, ReviewChoosingVenue, currentState(t, f.states))

	fields, err := f.states.GetFields(context.Background(), userID)
	require.NoError(t, err)
	assert.Empty(t, fields)
}

func TestReviewRatingOutsideRangeRejected(t *testing.T) {
	f := newReviewFixture(t)
	f.book(1)
	_, err := f.flow.Start(context.Background(), textEvent(ButtonReview))
	require.NoError(t, err)
	dispatch(t, f.flow, f.states, callbackEvent("rev_venue:1"))

	for _, data := range []string{"rev_rate:0", "rev_rate:6", "rev_rate:x", "venue:1"} {
		replies := dispatch(t, f.flow, f.states, callbackEvent(data))
		assert.True(t, isAlert(replies), data)
		assert.Equal(t, ReviewChoosingRating, currentState(t, f.states))
	}

	replies := dispatch(t, f.flow, f.states, textEvent("5"))
	assert.Equal(t, msgUseMenu, replies[0].Text, "rating is not typed")
}

func TestDecodeReview(t *testing.T) {
	_, err := decodeReview(ReviewTypingText, map[string]string{"venue_id": "1"})
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = decodeReview(ReviewChoosingRating, map[string]string{"venue_id": "abc"})
	assert.ErrorIs(t, err, ErrInvalidState)

	d, err := decodeReview(ReviewTypingText, map[string]string{"venue_id": "7", "rating": "5"})
	require.NoError(t, err)
	assert.Equal(t, reviewDraft{VenueID: 7, Rating: 5}, d)
}
