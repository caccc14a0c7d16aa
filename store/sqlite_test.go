package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expiry-server/models"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func product(name string, exp time.Time) models.Product {
	return models.Product{
		ProductName:        name,
		ExpirationDate:     exp.UnixMilli(),
		ReminderTime:       "09:00",
		DaysToRemindBefore: 2,
		ReminderMethod:     models.MethodNotification,
	}
}

func TestProductCRUD(t *testing.T) {
	s := testStore(t)
	exp := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	id, err := s.CreateProduct(product("Milk", exp))
	require.NoError(t, err)
	require.Greater(t, id, int64(0), "the store assigns the id")

	got, err := s.GetProduct(id)
	require.NoError(t, err)
	assert.Equal(t, "Milk", got.ProductName)
	assert.Equal(t, exp.UnixMilli(), got.ExpirationDate)
	assert.Equal(t, models.MethodNotification, got.ReminderMethod)
	assert.Empty(t, got.CalendarEventID, "no mirror event before the coordinator runs")

	got.ProductName = "Whole Milk"
	got.ReminderMethod = models.MethodAlarm
	require.NoError(t, s.UpdateProduct(*got))

	updated, err := s.GetProduct(id)
	require.NoError(t, err)
	assert.Equal(t, "Whole Milk", updated.ProductName)
	assert.Equal(t, models.MethodAlarm, updated.ReminderMethod)

	require.NoError(t, s.DeleteProduct(id))
	_, err = s.GetProduct(id)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestProductNotFound(t *testing.T) {
	s := testStore(t)

	_, err := s.GetProduct(42)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.UpdateProduct(models.Product{ID: 42, ProductName: "x", ReminderMethod: models.MethodNotification}), ErrNotFound)
	require.ErrorIs(t, s.DeleteProduct(42), ErrNotFound)
	require.ErrorIs(t, s.SetCalendarEventID(42, "ev"), ErrNotFound)
}

func TestListProductsOrderedByExpiration(t *testing.T) {
	s := testStore(t)
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	_, err := s.CreateProduct(product("Later", base.AddDate(0, 0, 5)))
	require.NoError(t, err)
	_, err = s.CreateProduct(product("Sooner", base))
	require.NoError(t, err)
	_, err = s.CreateProduct(product("Middle", base.AddDate(0, 0, 2)))
	require.NoError(t, err)

	products, err := s.ListProducts()
	require.NoError(t, err)
	require.Len(t, products, 3)
	assert.Equal(t, "Sooner", products[0].ProductName)
	assert.Equal(t, "Middle", products[1].ProductName)
	assert.Equal(t, "Later", products[2].ProductName)
}

func TestSetCalendarEventID(t *testing.T) {
	s := testStore(t)
	id, err := s.CreateProduct(product("Milk", time.Now()))
	require.NoError(t, err)

	require.NoError(t, s.SetCalendarEventID(id, "ev-1"))
	got, err := s.GetProduct(id)
	require.NoError(t, err)
	assert.Equal(t, "ev-1", got.CalendarEventID)

	// Clearing stores NULL and round-trips as empty.
	require.NoError(t, s.SetCalendarEventID(id, ""))
	got, err = s.GetProduct(id)
	require.NoError(t, err)
	assert.Empty(t, got.CalendarEventID)
}

func TestWatchEmitsSnapshots(t *testing.T) {
	s := testStore(t)
	snapshots, cancel := s.Watch()
	defer cancel()

	_, err := s.CreateProduct(product("Milk", time.Now()))
	require.NoError(t, err)

	select {
	case list := <-snapshots:
		require.Len(t, list, 1)
		assert.Equal(t, "Milk", list[0].ProductName)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot after create")
	}

	// A slow subscriber coalesces to the latest snapshot.
	_, err = s.CreateProduct(product("Cheese", time.Now()))
	require.NoError(t, err)
	_, err = s.CreateProduct(product("Yogurt", time.Now()))
	require.NoError(t, err)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case list := <-snapshots:
			if len(list) == 3 {
				return
			}
		case <-deadline:
			t.Fatal("never observed a snapshot reflecting all writes")
		}
	}
}

func TestWatchCancelStopsDelivery(t *testing.T) {
	s := testStore(t)
	snapshots, cancel := s.Watch()
	cancel()

	_, err := s.CreateProduct(product("Milk", time.Now()))
	require.NoError(t, err)

	_, open := <-snapshots
	assert.False(t, open, "cancelled subscription must be closed")
}

func TestUsers(t *testing.T) {
	s := testStore(t)

	user, err := s.CreateUser("kitchen", "secret-pass")
	require.NoError(t, err)
	require.NotEmpty(t, user.ID)

	byName, err := s.GetUserByUsername("kitchen")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byName.ID)

	byID, err := s.GetUserByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, "kitchen", byID.Username)

	assert.True(t, s.ValidatePassword(byName, "secret-pass"))
	assert.False(t, s.ValidatePassword(byName, "wrong"))

	_, err = s.GetUserByUsername("nobody")
	require.ErrorIs(t, err, ErrNotFound)
}
