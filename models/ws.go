package models

type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

const (
	WSTypeProductList    = "product_list"
	WSTypeNotification   = "notification"
	WSTypeAlarm          = "alarm"
	WSTypeAlarmDismissed = "alarm_dismissed"
)

// NotificationAlert is the payload for a fired notification trigger.
type NotificationAlert struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	DaysBefore  int    `json:"days_before"`
}

// AlarmAlert is the payload for a fired alarm trigger. It carries the
// expiration instant and the reminder time string so the client can render
// the full-screen alarm without a round trip.
type AlarmAlert struct {
	ProductID      int64  `json:"product_id"`
	ProductName    string `json:"product_name"`
	DaysBefore     int    `json:"days_before"`
	ExpirationDate int64  `json:"expiration_date"`
	ReminderTime   string `json:"reminder_time"`
}
