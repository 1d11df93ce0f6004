package services

import (
	"context"
	"errors"
	"log"
	"time"

	"bookshare/internal/adapters/persistence/models"
	"bookshare/internal/adapters/persistence/repositories"
	"bookshare/internal/core/domain"
	"bookshare/internal/core/lending"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// ============================================================
// Projection repair: books.status is recomputed from active requests
// ============================================================

// ReconcileService periodically repairs book statuses that drifted from
// their active request
type ReconcileService struct {
	store    *repositories.Store
	notifier Notifier
	schedule string
	cron     *cron.Cron

	// beforeRepair runs ahead of each candidate's re-read (tests)
	beforeRepair func(bookID string)
}

// NewReconcileService creates a reconcile service running on a cron schedule
func NewReconcileService(store *repositories.Store, notifier Notifier, schedule string) *ReconcileService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &ReconcileService{
		store:    store,
		notifier: notifier,
		schedule: schedule,
		cron:     cron.New(),
	}
}

// Start registers the job and starts the scheduler
func (s *ReconcileService) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if _, err := s.RunOnce(ctx); err != nil {
			log.Printf("❌ Reconcile run failed: %v", err)
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	log.Printf("🚀 ReconcileService started [%s]", s.schedule)
	return nil
}

// Stop stops the scheduler and waits for a running job
func (s *ReconcileService) Stop() {
	<-s.cron.Stop().Done()
	log.Println("🛑 ReconcileService stopped")
}

// RunOnce repairs every drifted book and returns how many were fixed.
// The scan only nominates candidates; each one is re-read and written with
// a guard on its active request, so a transition landing in between wins.
func (s *ReconcileService) RunOnce(ctx context.Context) (int, error) {
	candidates, err := s.scan(ctx)
	if err != nil {
		return 0, err
	}

	fixed := 0
	for _, bookID := range candidates {
		if s.beforeRepair != nil {
			s.beforeRepair(bookID)
		}

		ok, err := s.repair(ctx, bookID)
		if err != nil {
			return fixed, err
		}
		if ok {
			fixed++
		}
	}

	if fixed > 0 {
		log.Printf("🔧 Reconciled %d book statuses", fixed)
	}
	return fixed, nil
}

// scan lists books whose status disagrees with their active request
func (s *ReconcileService) scan(ctx context.Context) ([]string, error) {
	books, err := s.store.Books.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	active, err := s.store.Requests.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	byBook := make(map[string]*models.LendingRequest, len(active))
	for _, req := range active {
		current, seen := byBook[req.BookID]
		if seen {
			log.Printf("⚠️ Book %s has more than one active request (%s, %s)", req.BookID, current.ID, req.ID)
			// An accepted loan outranks a pending one.
			if current.Status == string(domain.RequestAccepted) {
				continue
			}
		}
		byBook[req.BookID] = req
	}

	var candidates []string
	for _, book := range books {
		var activeReq *domain.LendingRequest
		if row, ok := byBook[book.ID]; ok {
			req := row.ToDomain()
			activeReq = &req
		}
		current := domain.BookStatus(book.Status)
		if lending.ProjectBookStatus(current, activeReq) != current {
			candidates = append(candidates, book.ID)
		}
	}
	return candidates, nil
}

// repair re-derives one book's status from fresh reads and writes it only
// while the book status and its active request are still the ones read
func (s *ReconcileService) repair(ctx context.Context, bookID string) (bool, error) {
	book, err := s.store.Books.GetByID(ctx, bookID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	row, err := s.store.Requests.ActiveByBook(ctx, bookID)
	if err != nil {
		return false, err
	}

	var activeReq *domain.LendingRequest
	if row != nil {
		req := row.ToDomain()
		activeReq = &req
	}

	current := domain.BookStatus(book.Status)
	want := lending.ProjectBookStatus(current, activeReq)
	if want == current {
		return false, nil
	}

	ok, err := s.store.Books.RepairStatus(ctx, bookID, current, want, activeReq)
	if err != nil || !ok {
		// A live transition changed the book or its request; it is authoritative.
		return false, err
	}

	log.Printf("🔧 Book %s status repaired: %s -> %s", bookID, current, want)
	s.notifier.BookStatusChanged(bookID, want)
	return true, nil
}
