package models

import "time"

// ReminderMethod selects how a product's reminder is delivered: a one-shot
// notification or a full-screen alarm that repeats until dismissed.
type ReminderMethod string

const (
	MethodNotification ReminderMethod = "NOTIFICATION"
	MethodAlarm        ReminderMethod = "ALARM"
)

// Valid reports whether m is one of the known methods.
func (m ReminderMethod) Valid() bool {
	return m == MethodNotification || m == MethodAlarm
}

type Product struct {
	ID                 int64          `json:"id"`
	ProductName        string         `json:"product_name"`
	ExpirationDate     int64          `json:"expiration_date"` // epoch milliseconds
	ReminderTime       string         `json:"reminder_time"`   // "HH:MM", 24-hour
	DaysToRemindBefore int            `json:"days_to_remind_before"`
	ReminderMethod     ReminderMethod `json:"reminder_method"`
	CalendarEventID    string         `json:"calendar_event_id,omitempty"` // empty until a mirror event exists
	CreatedAt          time.Time      `json:"created_at"`
}

type SaveProductRequest struct {
	ProductName        string `json:"product_name"`
	ExpirationDate     int64  `json:"expiration_date"`
	ReminderTime       string `json:"reminder_time"`
	DaysToRemindBefore int    `json:"days_to_remind_before"`
	ReminderMethod     string `json:"reminder_method"`
}

type PreviewRequest struct {
	ExpirationDate     int64  `json:"expiration_date"`
	ReminderTime       string `json:"reminder_time"`
	DaysToRemindBefore int    `json:"days_to_remind_before"`
}

type PreviewResponse struct {
	TriggerAt    int64  `json:"trigger_at"` // epoch milliseconds
	TriggerAtISO string `json:"trigger_at_iso"`
}
