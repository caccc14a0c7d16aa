package remind

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expiry-server/calendar"
	"expiry-server/models"
)

type fakeMirror struct {
	upserts   []calendar.UpsertRequest
	result    calendar.UpsertResult
	err       error
	failFor   string // substring of the title that triggers err
	deletes   []string
	deleteErr error
}

func (m *fakeMirror) Upsert(req calendar.UpsertRequest) (*calendar.UpsertResult, error) {
	m.upserts = append(m.upserts, req)
	if m.err != nil && (m.failFor == "" || strings.Contains(req.Title, m.failFor)) {
		return nil, m.err
	}
	res := m.result
	return &res, nil
}

func (m *fakeMirror) Delete(eventID string) error {
	m.deletes = append(m.deletes, eventID)
	return m.deleteErr
}

type backendCall struct {
	product models.Product
	at      time.Time
}

type fakeBackend struct {
	scheduled []backendCall
	cancels   []int64
	err       error
}

func (b *fakeBackend) Schedule(p models.Product, at time.Time) error {
	if b.err != nil {
		return b.err
	}
	b.scheduled = append(b.scheduled, backendCall{product: p, at: at})
	return nil
}

func (b *fakeBackend) Cancel(productID int64) {
	b.cancels = append(b.cancels, productID)
}

func milk(method models.ReminderMethod) models.Product {
	return models.Product{
		ID:                 1,
		ProductName:        "Milk",
		ExpirationDate:     time.Date(2026, 3, 10, 0, 0, 0, 0, time.Local).UnixMilli(),
		ReminderTime:       "09:00",
		DaysToRemindBefore: 2,
		ReminderMethod:     method,
	}
}

func newTestCoordinator(mirror *fakeMirror) (*Coordinator, *fakeBackend, *fakeBackend) {
	notif := &fakeBackend{}
	alarm := &fakeBackend{}
	return NewCoordinator(mirror, notif, alarm), notif, alarm
}

func TestCreateOrUpdateNotification(t *testing.T) {
	mirror := &fakeMirror{result: calendar.UpsertResult{EventID: "ev-1"}}
	c, notif, alarm := newTestCoordinator(mirror)

	res := c.CreateOrUpdate(milk(models.MethodNotification))

	assert.True(t, res.Success)
	assert.False(t, res.UsedFallback)
	assert.Equal(t, "ev-1", res.CalendarEventID)
	assert.Empty(t, res.ErrorMessage)

	wantAt := time.Date(2026, 3, 8, 9, 0, 0, 0, time.Local)
	require.Len(t, mirror.upserts, 1)
	req := mirror.upserts[0]
	assert.True(t, req.Start.Equal(wantAt), "calendar block starts at the trigger instant")
	assert.True(t, req.End.Equal(wantAt.Add(time.Hour)), "one-hour calendar block")
	assert.Equal(t, 0, req.ReminderLeadMinutes)
	assert.False(t, req.WantsNativeReminder)
	assert.Contains(t, req.Title, "Milk")

	require.Len(t, notif.scheduled, 1)
	assert.True(t, notif.scheduled[0].at.Equal(wantAt))
	assert.Empty(t, alarm.scheduled)
}

func TestCreateOrUpdateMirrorFailureLeavesTriggersAlone(t *testing.T) {
	mirror := &fakeMirror{err: calendar.ErrNoCalendar}
	c, notif, alarm := newTestCoordinator(mirror)

	p := milk(models.MethodNotification)
	p.CalendarEventID = "prior-event"

	res := c.CreateOrUpdate(p)

	assert.False(t, res.Success)
	assert.Equal(t, "prior-event", res.CalendarEventID, "prior event id must be preserved")
	assert.NotEmpty(t, res.ErrorMessage)

	// The calendar state is unresolved, so no trigger is touched.
	assert.Empty(t, notif.scheduled)
	assert.Empty(t, notif.cancels)
	assert.Empty(t, alarm.scheduled)
	assert.Empty(t, alarm.cancels)
}

func TestCreateOrUpdateAlarmRequestsNativeReminder(t *testing.T) {
	mirror := &fakeMirror{result: calendar.UpsertResult{EventID: "ev-2", NativeReminderConfirmed: true}}
	c, notif, alarm := newTestCoordinator(mirror)

	res := c.CreateOrUpdate(milk(models.MethodAlarm))

	require.Len(t, mirror.upserts, 1)
	assert.True(t, mirror.upserts[0].WantsNativeReminder)

	// The calendar's native reminder is confirmed; no app-level alarm.
	assert.True(t, res.Success)
	assert.False(t, res.UsedFallback)
	assert.Empty(t, alarm.scheduled)
	assert.Empty(t, notif.scheduled)
}

func TestCreateOrUpdateAlarmFallsBackWhenUnconfirmed(t *testing.T) {
	mirror := &fakeMirror{result: calendar.UpsertResult{EventID: "ev-3"}}
	c, _, alarm := newTestCoordinator(mirror)

	res := c.CreateOrUpdate(milk(models.MethodAlarm))

	assert.True(t, res.Success)
	assert.True(t, res.UsedFallback)
	require.Len(t, alarm.scheduled, 1)
}

func TestCreateOrUpdateCancelsBeforeRescheduling(t *testing.T) {
	mirror := &fakeMirror{result: calendar.UpsertResult{EventID: "ev-4"}}
	c, notif, alarm := newTestCoordinator(mirror)

	c.CreateOrUpdate(milk(models.MethodNotification))
	c.CreateOrUpdate(milk(models.MethodAlarm))

	// Both saves cancelled both backends, covering method switches.
	assert.Equal(t, []int64{1, 1}, notif.cancels)
	assert.Equal(t, []int64{1, 1}, alarm.cancels)
}

func TestCreateOrUpdatePartialFailureKeepsCalendarID(t *testing.T) {
	mirror := &fakeMirror{result: calendar.UpsertResult{EventID: "ev-5"}}
	notif := &fakeBackend{err: errors.New("exact wakes not permitted")}
	alarm := &fakeBackend{}
	c := NewCoordinator(mirror, notif, alarm)

	res := c.CreateOrUpdate(milk(models.MethodNotification))

	assert.False(t, res.Success)
	assert.Equal(t, "exact wakes not permitted", res.ErrorMessage)
	// Calendar succeeded; the caller must still persist the new event id.
	assert.Equal(t, "ev-5", res.CalendarEventID)
}

func TestDeleteWithoutCalendarEvent(t *testing.T) {
	mirror := &fakeMirror{}
	c, notif, alarm := newTestCoordinator(mirror)

	c.Delete(milk(models.MethodNotification))

	assert.Empty(t, mirror.deletes, "no mirror event, no calendar delete")
	assert.Equal(t, []int64{1}, notif.cancels)
	assert.Equal(t, []int64{1}, alarm.cancels)
}

func TestDeleteSwallowsMirrorFailure(t *testing.T) {
	mirror := &fakeMirror{deleteErr: errors.New("calendar unavailable")}
	c, notif, alarm := newTestCoordinator(mirror)

	p := milk(models.MethodAlarm)
	p.CalendarEventID = "ev-6"

	require.NotPanics(t, func() { c.Delete(p) })

	assert.Equal(t, []string{"ev-6"}, mirror.deletes)
	assert.Equal(t, []int64{1}, notif.cancels)
	assert.Equal(t, []int64{1}, alarm.cancels)
}
