// Package remind owns reminder coordination: computing trigger instants,
// keeping the calendar mirror and the on-device trigger consistent with a
// product's current state, and re-arming everything after a restart.
package remind

import (
	"fmt"
	"log"
	"sync"
	"time"

	"expiry-server/calendar"
	"expiry-server/models"
	"expiry-server/schedule"
)

// Result is the outcome of one save. Three states are possible: the calendar
// failed (nothing was scheduled, nothing changed), everything worked, or the
// calendar succeeded but the trigger could not be armed — in that last case
// CalendarEventID still carries the new id so the caller can persist the
// partial progress.
type Result struct {
	Success         bool   `json:"success"`
	CalendarEventID string `json:"calendar_event_id,omitempty"`
	UsedFallback    bool   `json:"used_fallback"`
	ErrorMessage    string `json:"error_message,omitempty"`
}

// Coordinator turns one product mutation into one consistent pair of side
// effects. Collaborators are passed at construction; there is no ambient
// wiring.
type Coordinator struct {
	mirror        calendar.Mirror
	notifications schedule.Backend
	alarms        schedule.Backend
	locks         lockTable
}

func NewCoordinator(mirror calendar.Mirror, notifications, alarms schedule.Backend) *Coordinator {
	return &Coordinator{
		mirror:        mirror,
		notifications: notifications,
		alarms:        alarms,
	}
}

// CreateOrUpdate recomputes the product's trigger instant, upserts the
// mirror event, then re-arms the trigger. The mirror goes first: if it
// fails, no trigger is touched, since the product's calendar state is
// unresolved.
func (c *Coordinator) CreateOrUpdate(p models.Product) Result {
	unlock := c.locks.lock(p.ID)
	defer unlock()

	triggerAt := TriggerTime(p.ExpirationDate, p.DaysToRemindBefore, p.ReminderTime)
	title := fmt.Sprintf("%s expires in %d days", p.ProductName, p.DaysToRemindBefore)
	description := fmt.Sprintf("Expiry reminder for %s", p.ProductName)

	upserted, err := c.mirror.Upsert(calendar.UpsertRequest{
		EventID:             p.CalendarEventID,
		Title:               title,
		Description:         description,
		Start:               triggerAt,
		End:                 triggerAt.Add(time.Hour),
		ReminderLeadMinutes: 0,
		WantsNativeReminder: p.ReminderMethod == models.MethodAlarm,
	})
	if err != nil {
		log.Printf("[REMIND] calendar upsert failed for product %d (%s): %v", p.ID, p.ProductName, err)
		return Result{
			Success:         false,
			CalendarEventID: p.CalendarEventID,
			ErrorMessage:    "could not create or update calendar event: " + err.Error(),
		}
	}

	// The calendar state is settled; whatever trigger was armed before is
	// stale now (the time may have moved, the method may have switched).
	c.notifications.Cancel(p.ID)
	c.alarms.Cancel(p.ID)

	out := Result{Success: true, CalendarEventID: upserted.EventID}

	switch {
	case p.ReminderMethod == models.MethodAlarm && upserted.NativeReminderConfirmed:
		// The calendar's own reminder covers the alarm; no app trigger.
	case p.ReminderMethod == models.MethodAlarm:
		out.UsedFallback = true
		if err := c.alarms.Schedule(p, triggerAt); err != nil {
			log.Printf("[REMIND] alarm scheduling failed for product %d (%s): %v", p.ID, p.ProductName, err)
			out.Success = false
			out.ErrorMessage = err.Error()
		}
	default:
		if err := c.notifications.Schedule(p, triggerAt); err != nil {
			log.Printf("[REMIND] notification scheduling failed for product %d (%s): %v", p.ID, p.ProductName, err)
			out.Success = false
			out.ErrorMessage = err.Error()
		}
	}

	return out
}

// Delete tears down the product's side effects. Mirror failures are logged
// and swallowed; the trigger is cancelled unconditionally. Deletion never
// fails from the caller's perspective.
func (c *Coordinator) Delete(p models.Product) {
	unlock := c.locks.lock(p.ID)
	defer unlock()

	if p.CalendarEventID != "" {
		if err := c.mirror.Delete(p.CalendarEventID); err != nil {
			log.Printf("[REMIND] calendar delete failed for product %d (%s): %v", p.ID, p.ProductName, err)
		}
	}
	c.notifications.Cancel(p.ID)
	c.alarms.Cancel(p.ID)
}

// lockTable serializes mutating operations per product id so that
// cancel-then-reschedule never interleaves with a concurrent save for the
// same product.
type lockTable struct {
	mu      sync.Mutex
	entries map[int64]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func (t *lockTable) lock(id int64) (unlock func()) {
	t.mu.Lock()
	if t.entries == nil {
		t.entries = make(map[int64]*lockEntry)
	}
	e := t.entries[id]
	if e == nil {
		e = &lockEntry{}
		t.entries[id] = e
	}
	e.refs++
	t.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		t.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(t.entries, id)
		}
		t.mu.Unlock()
	}
}
