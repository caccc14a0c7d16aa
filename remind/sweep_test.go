package remind

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expiry-server/calendar"
	"expiry-server/models"
)

type fakeSweepStore struct {
	products []models.Product
	listErr  error
	saved    map[int64]string
}

func (s *fakeSweepStore) ListProducts() ([]models.Product, error) {
	return s.products, s.listErr
}

func (s *fakeSweepStore) SetCalendarEventID(id int64, eventID string) error {
	if s.saved == nil {
		s.saved = make(map[int64]string)
	}
	s.saved[id] = eventID
	return nil
}

func sweepProducts() []models.Product {
	exp := time.Date(2026, 3, 10, 0, 0, 0, 0, time.Local).UnixMilli()
	return []models.Product{
		{ID: 1, ProductName: "Yogurt", ExpirationDate: exp, ReminderTime: "09:00", DaysToRemindBefore: 1, ReminderMethod: models.MethodNotification},
		{ID: 2, ProductName: "Cheese", ExpirationDate: exp, ReminderTime: "09:00", DaysToRemindBefore: 3, ReminderMethod: models.MethodNotification},
	}
}

func TestSweepContinuesPastFailures(t *testing.T) {
	mirror := &fakeMirror{
		result:  calendar.UpsertResult{EventID: "ev-new"},
		err:     errors.New("provider exploded"),
		failFor: "Yogurt",
	}
	c, notif, _ := newTestCoordinator(mirror)
	store := &fakeSweepStore{products: sweepProducts()}

	sweeper := NewSweeper(store, c)
	sweeper.Start(context.Background())
	sweeper.Wait()

	// Yogurt's calendar failure must not stop Cheese from being re-armed.
	require.Len(t, notif.scheduled, 1)
	assert.Equal(t, "Cheese", notif.scheduled[0].product.ProductName)
	assert.Equal(t, "ev-new", store.saved[2])
	_, savedYogurt := store.saved[1]
	assert.False(t, savedYogurt)
}

func TestSweepPersistsRefreshedEventIDs(t *testing.T) {
	mirror := &fakeMirror{result: calendar.UpsertResult{EventID: "ev-refreshed"}}
	c, notif, _ := newTestCoordinator(mirror)

	products := sweepProducts()
	products[0].CalendarEventID = "ev-refreshed" // unchanged, must not be re-saved
	store := &fakeSweepStore{products: products}

	sweeper := NewSweeper(store, c)
	sweeper.Start(context.Background())
	sweeper.Wait()

	assert.Len(t, notif.scheduled, 2)
	_, resavedUnchanged := store.saved[1]
	assert.False(t, resavedUnchanged, "unchanged event id should not be rewritten")
	assert.Equal(t, "ev-refreshed", store.saved[2])
}

func TestSweepAbandonedByContext(t *testing.T) {
	mirror := &fakeMirror{result: calendar.UpsertResult{EventID: "ev"}}
	c, notif, _ := newTestCoordinator(mirror)
	store := &fakeSweepStore{products: sweepProducts()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sweeper := NewSweeper(store, c)
	sweeper.Start(ctx)
	sweeper.Wait()

	assert.Empty(t, notif.scheduled)
}

func TestSweepListFailure(t *testing.T) {
	c, notif, _ := newTestCoordinator(&fakeMirror{})
	store := &fakeSweepStore{listErr: errors.New("db locked")}

	sweeper := NewSweeper(store, c)
	sweeper.Start(context.Background())
	require.NotPanics(t, sweeper.Wait)
	assert.Empty(t, notif.scheduled)
}
