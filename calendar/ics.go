// Package calendar mirrors reminders into ICS calendar files. Every failure
// is returned as a value; nothing here panics or propagates provider
// internals to the coordinator.
package calendar

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"sync"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/google/uuid"
)

// ErrNoCalendar is returned when no writable calendar is configured.
var ErrNoCalendar = errors.New("calendar: no writable calendar")

// File is one calendar the mirror knows about.
type File struct {
	Name     string
	Path     string
	Primary  bool
	ReadOnly bool
}

type UpsertRequest struct {
	// EventID is the UID of an existing mirror event, empty to create one.
	EventID     string
	Title       string
	Description string
	Start       time.Time
	End         time.Time
	// ReminderLeadMinutes attaches one native reminder that many minutes
	// before Start. Negative means no native reminder.
	ReminderLeadMinutes int
	// WantsNativeReminder asks for confirmation that the native reminder is
	// in place; confirmation is only ever reported when this is set.
	WantsNativeReminder bool
}

type UpsertResult struct {
	EventID                 string
	NativeReminderConfirmed bool
}

// Mirror is the calendar side channel. Upsert reports failure as an error
// value; Delete is best-effort and callers are expected to log-and-continue.
type Mirror interface {
	Upsert(req UpsertRequest) (*UpsertResult, error)
	Delete(eventID string) error
}

// ICSMirror keeps mirror events in ICS files on disk.
type ICSMirror struct {
	mu        sync.Mutex
	calendars []File
}

func NewICSMirror(calendars []File) *ICSMirror {
	return &ICSMirror{calendars: calendars}
}

func (m *ICSMirror) Upsert(req UpsertRequest) (*UpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	target, err := m.targetCalendar()
	if err != nil {
		return nil, err
	}

	cal, err := loadCalendar(target.Path)
	if err != nil {
		return nil, fmt.Errorf("calendar %q: %w", target.Name, err)
	}

	var event *ics.VEvent
	if req.EventID != "" {
		event = findEvent(cal, req.EventID)
	}

	eventID := req.EventID
	if event == nil {
		// Create, or fall back to a fresh insert when the event the caller
		// remembers has vanished from the file. Either way the caller gets
		// the surviving UID back as a normal success.
		eventID = uuid.New().String()
		event = cal.AddEvent(eventID)
		event.SetCreatedTime(time.Now())
	}

	event.SetDtStampTime(time.Now())
	event.SetSummary(req.Title)
	event.SetDescription(req.Description)
	event.SetStartAt(req.Start)
	event.SetEndAt(req.End)

	// Drop every previously attached alarm first so repeated saves never
	// stack duplicate alerts on the event.
	clearAlarms(event)

	attached := false
	if req.ReminderLeadMinutes >= 0 {
		attached = attachAlarm(event, req.Title, req.ReminderLeadMinutes)
	}

	if err := writeCalendar(target.Path, cal); err != nil {
		return nil, fmt.Errorf("calendar %q: %w", target.Name, err)
	}

	return &UpsertResult{
		EventID:                 eventID,
		NativeReminderConfirmed: attached && req.WantsNativeReminder,
	}, nil
}

// Delete removes the event from whichever writable calendar holds it. An
// event that is nowhere to be found is not an error.
func (m *ICSMirror) Delete(eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for _, c := range m.calendars {
		if c.ReadOnly {
			continue
		}
		if err := deleteFromFile(c.Path, eventID); err != nil {
			log.Printf("[CALENDAR] delete %s from %q failed: %v", eventID, c.Name, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// targetCalendar prefers the primary writable calendar, then the first
// writable one.
func (m *ICSMirror) targetCalendar() (*File, error) {
	var fallback *File
	for i := range m.calendars {
		c := &m.calendars[i]
		if c.ReadOnly {
			continue
		}
		if c.Primary {
			return c, nil
		}
		if fallback == nil {
			fallback = c
		}
	}
	if fallback != nil {
		return fallback, nil
	}
	return nil, ErrNoCalendar
}

func loadCalendar(path string) (*ics.Calendar, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		cal := ics.NewCalendar()
		cal.SetMethod(ics.MethodPublish)
		return cal, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cal, err := ics.ParseCalendar(f)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return cal, nil
}

func writeCalendar(path string, cal *ics.Calendar) error {
	return os.WriteFile(path, []byte(cal.Serialize()), 0o644)
}

func findEvent(cal *ics.Calendar, uid string) *ics.VEvent {
	for _, ev := range cal.Events() {
		if ev.Id() == uid {
			return ev
		}
	}
	return nil
}

// clearAlarms strips VALARM subcomponents, keeping anything else.
func clearAlarms(event *ics.VEvent) {
	kept := event.Components[:0]
	for _, comp := range event.Components {
		if _, ok := comp.(*ics.VAlarm); ok {
			continue
		}
		kept = append(kept, comp)
	}
	event.Components = kept
}

func attachAlarm(event *ics.VEvent, description string, leadMinutes int) bool {
	alarm := event.AddAlarm()
	if alarm == nil {
		return false
	}
	alarm.SetProperty(ics.ComponentProperty(ics.PropertyAction), string(ics.ActionDisplay))
	alarm.SetProperty(ics.ComponentProperty(ics.PropertyTrigger), fmt.Sprintf("-PT%dM", leadMinutes))
	alarm.SetProperty(ics.ComponentProperty(ics.PropertyDescription), description)
	return true
}

func deleteFromFile(path, uid string) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	cal, err := ics.ParseCalendar(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	kept := cal.Components[:0]
	removed := false
	for _, comp := range cal.Components {
		if ev, ok := comp.(*ics.VEvent); ok && ev.Id() == uid {
			removed = true
			continue
		}
		kept = append(kept, comp)
	}
	if !removed {
		return nil
	}
	cal.Components = kept
	return writeCalendar(path, cal)
}
