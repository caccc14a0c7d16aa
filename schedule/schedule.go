// Package schedule arms and cancels the on-device trigger for a product: an
// exact wall-clock wake that, when it fires, hands a payload to the
// presentation stage. Two backends share one wake source; a product owns at
// most one pending trigger across both.
package schedule

import (
	"time"

	"expiry-server/models"
)

// Firing is the payload carried by a fired trigger. ExpirationDate and
// ReminderTime are only populated for alarm firings.
type Firing struct {
	ProductID      int64
	ProductName    string
	DaysBefore     int
	ExpirationDate int64 // epoch milliseconds
	ReminderTime   string
}

// Presenter consumes fired triggers. Implemented by the websocket alert
// layer; swapped for a recorder in tests.
type Presenter interface {
	PresentNotification(f Firing)
	PresentAlarm(f Firing)
}

// WakeSource is the OS primitive: fire a callback at an exact instant,
// keyed by an integer slot, surviving idle. Setting a slot replaces any
// pending wake on it; Cancel on an empty slot is a no-op.
type WakeSource interface {
	SetExact(slot int64, at time.Time, fire func()) error
	Cancel(slot int64)
}

// Backend schedules and cancels the trigger for a product. Scheduling
// supersedes any prior trigger for the same product under either backend.
type Backend interface {
	Schedule(p models.Product, at time.Time) error
	Cancel(productID int64)
}

// Each product uses two wake slots, one per backend, so a notification
// trigger and an alarm trigger for the same product never share a key.
func notificationSlot(id int64) int64 { return 2 * id }
func alarmSlot(id int64) int64        { return 2*id + 1 }

func cancelBoth(w WakeSource, productID int64) {
	w.Cancel(notificationSlot(productID))
	w.Cancel(alarmSlot(productID))
}

type NotificationBackend struct {
	wake      WakeSource
	presenter Presenter
	now       func() time.Time
}

func NewNotificationBackend(w WakeSource, p Presenter) *NotificationBackend {
	return &NotificationBackend{wake: w, presenter: p, now: time.Now}
}

func (b *NotificationBackend) Schedule(p models.Product, at time.Time) error {
	// Past triggers are never fired retroactively.
	if !at.After(b.now()) {
		return nil
	}
	cancelBoth(b.wake, p.ID)
	f := Firing{
		ProductID:   p.ID,
		ProductName: p.ProductName,
		DaysBefore:  p.DaysToRemindBefore,
	}
	return b.wake.SetExact(notificationSlot(p.ID), at, func() {
		b.presenter.PresentNotification(f)
	})
}

func (b *NotificationBackend) Cancel(productID int64) {
	cancelBoth(b.wake, productID)
}

type AlarmBackend struct {
	wake      WakeSource
	presenter Presenter
	now       func() time.Time
}

func NewAlarmBackend(w WakeSource, p Presenter) *AlarmBackend {
	return &AlarmBackend{wake: w, presenter: p, now: time.Now}
}

func (b *AlarmBackend) Schedule(p models.Product, at time.Time) error {
	if !at.After(b.now()) {
		return nil
	}
	cancelBoth(b.wake, p.ID)
	f := Firing{
		ProductID:      p.ID,
		ProductName:    p.ProductName,
		DaysBefore:     p.DaysToRemindBefore,
		ExpirationDate: p.ExpirationDate,
		ReminderTime:   p.ReminderTime,
	}
	return b.wake.SetExact(alarmSlot(p.ID), at, func() {
		b.presenter.PresentAlarm(f)
	})
}

func (b *AlarmBackend) Cancel(productID int64) {
	cancelBoth(b.wake, productID)
}
