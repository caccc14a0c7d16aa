package remind

import (
	"context"
	"log"
	"sync"

	"expiry-server/models"
)

// SweepStore is the slice of the product store the sweep needs.
type SweepStore interface {
	ListProducts() ([]models.Product, error)
	SetCalendarEventID(id int64, eventID string) error
}

// Sweeper re-establishes every product's trigger after a restart. Process
// timers are volatile; this is the only recovery path.
type Sweeper struct {
	store       SweepStore
	coordinator *Coordinator
	wg          sync.WaitGroup
}

func NewSweeper(store SweepStore, coordinator *Coordinator) *Sweeper {
	return &Sweeper{store: store, coordinator: coordinator}
}

// Start runs the sweep in the background. The ctx lets a teardown abandon
// it mid-list; per-product consistency holds at every step.
func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Wait blocks until a started sweep has finished. Shutdown calls this so the
// process is not torn down mid-sweep.
func (s *Sweeper) Wait() {
	s.wg.Wait()
}

func (s *Sweeper) run(ctx context.Context) {
	products, err := s.store.ListProducts()
	if err != nil {
		log.Printf("[SWEEP] could not list products: %v", err)
		return
	}

	log.Printf("[SWEEP] rescheduling %d products", len(products))
	for _, p := range products {
		if ctx.Err() != nil {
			log.Printf("[SWEEP] abandoned: %v", ctx.Err())
			return
		}

		// One product's failure never aborts the sweep for the rest.
		res := s.coordinator.CreateOrUpdate(p)
		if res.CalendarEventID != "" && res.CalendarEventID != p.CalendarEventID {
			if err := s.store.SetCalendarEventID(p.ID, res.CalendarEventID); err != nil {
				log.Printf("[SWEEP] could not persist calendar event id for %q: %v", p.ProductName, err)
			}
		}
		if !res.Success {
			log.Printf("[SWEEP] reschedule failed for %q: %s", p.ProductName, res.ErrorMessage)
			continue
		}
		log.Printf("[SWEEP] rescheduled reminder for %q", p.ProductName)
	}
}
