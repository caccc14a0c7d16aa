package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"expiry-server/models"
	"expiry-server/schedule"
)

// broadcaster is what the presenter needs from the Hub.
type broadcaster interface {
	BroadcastAll(msg models.WSMessage)
}

// AlertPresenter is the presentation stage for fired triggers. A
// notification is a single push. An alarm repeats until the user explicitly
// dismisses it — the websocket equivalent of the full-screen, dismiss-only
// alarm with the looping sound.
type AlertPresenter struct {
	hub         broadcaster
	repeatEvery time.Duration

	mu     sync.Mutex
	active map[int64]chan struct{}
}

func NewAlertPresenter(hub broadcaster) *AlertPresenter {
	return &AlertPresenter{
		hub:         hub,
		repeatEvery: 5 * time.Second,
		active:      make(map[int64]chan struct{}),
	}
}

func (p *AlertPresenter) PresentNotification(f schedule.Firing) {
	log.Printf("[ALERT] notification fired for product %d (%s)", f.ProductID, f.ProductName)
	p.hub.BroadcastAll(models.WSMessage{
		Type: models.WSTypeNotification,
		Payload: models.NotificationAlert{
			ProductID:   f.ProductID,
			ProductName: f.ProductName,
			DaysBefore:  f.DaysBefore,
		},
	})
}

func (p *AlertPresenter) PresentAlarm(f schedule.Firing) {
	p.mu.Lock()
	if _, ringing := p.active[f.ProductID]; ringing {
		p.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	p.active[f.ProductID] = stop
	p.mu.Unlock()

	log.Printf("[ALERT] alarm fired for product %d (%s)", f.ProductID, f.ProductName)
	go p.ring(f, stop)
}

func (p *AlertPresenter) ring(f schedule.Firing, stop <-chan struct{}) {
	msg := models.WSMessage{
		Type: models.WSTypeAlarm,
		Payload: models.AlarmAlert{
			ProductID:      f.ProductID,
			ProductName:    f.ProductName,
			DaysBefore:     f.DaysBefore,
			ExpirationDate: f.ExpirationDate,
			ReminderTime:   f.ReminderTime,
		},
	}

	ticker := time.NewTicker(p.repeatEvery)
	defer ticker.Stop()

	p.hub.BroadcastAll(msg)
	for {
		select {
		case <-stop:
			p.hub.BroadcastAll(models.WSMessage{
				Type:    models.WSTypeAlarmDismissed,
				Payload: models.NotificationAlert{ProductID: f.ProductID, ProductName: f.ProductName, DaysBefore: f.DaysBefore},
			})
			return
		case <-ticker.C:
			p.hub.BroadcastAll(msg)
		}
	}
}

// Dismiss stops a ringing alarm. Dismissing an alarm that is not ringing is
// a no-op.
func (p *AlertPresenter) Dismiss(productID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if stop, ok := p.active[productID]; ok {
		close(stop)
		delete(p.active, productID)
	}
}

func (p *AlertPresenter) HandleDismiss(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid product id", http.StatusBadRequest)
		return
	}

	p.Dismiss(id)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "dismissed"})
}
