package syncbus

import (
	"sync"
	"testing"

	"bookshare/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu  sync.Mutex
	got []Update
	on  func(Update)
}

func (r *recorder) Deliver(u Update) {
	r.mu.Lock()
	r.got = append(r.got, u)
	r.mu.Unlock()
	if r.on != nil {
		r.on(u)
	}
}

func (r *recorder) updates() []Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Update(nil), r.got...)
}

func book(id string, status domain.BookStatus) domain.Book {
	return domain.Book{ID: id, OwnerID: "owner", Status: status}
}

func TestPublishReachesEverySubscriberOfKey(t *testing.T) {
	bus := New()
	a, b, other := &recorder{}, &recorder{}, &recorder{}

	bus.Subscribe(a, BookKey("b1"))
	bus.Subscribe(b, BookKey("b1"), BookKey("b2"))
	bus.Subscribe(other, BookKey("b2"))

	bus.Publish(BookUpdate(book("b1", domain.BookPending)))

	require.Len(t, a.updates(), 1)
	require.Len(t, b.updates(), 1)
	assert.Empty(t, other.updates())
	assert.Equal(t, domain.BookPending, a.updates()[0].Book.Status)
	assert.Equal(t, 2, bus.Subscribers(BookKey("b1")))
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := New()
	a := &recorder{}
	bus.Subscribe(a, BookKey("b1"), RequestKey("r1"))

	bus.Unsubscribe(a, BookKey("b1"))
	bus.Publish(BookUpdate(book("b1", domain.BookPending)))
	assert.Empty(t, a.updates())

	bus.Publish(RequestUpdate(domain.LendingRequest{ID: "r1", Status: domain.RequestAccepted}))
	assert.Len(t, a.updates(), 1)

	bus.UnsubscribeAll(a)
	bus.Publish(RequestUpdate(domain.LendingRequest{ID: "r1", Status: domain.RequestReturned}))
	assert.Len(t, a.updates(), 1)
	assert.Zero(t, bus.Subscribers(RequestKey("r1")))
}

func TestCreatedGoesToNewSubscribersOnce(t *testing.T) {
	bus := New()
	watcher, keyed := &recorder{}, &recorder{}
	bus.SubscribeNew(watcher)
	bus.SubscribeNew(keyed)
	bus.Subscribe(keyed, RequestKey("r1"))

	u := RequestUpdate(domain.LendingRequest{ID: "r1", Status: domain.RequestPending})
	u.Created = true
	bus.Publish(u)

	assert.Len(t, watcher.updates(), 1)
	assert.Len(t, keyed.updates(), 1)

	// Plain updates are not broadcast to new-entity watchers.
	bus.Publish(RequestUpdate(domain.LendingRequest{ID: "r2", Status: domain.RequestPending}))
	assert.Len(t, watcher.updates(), 1)
}

func TestDeliverMaySubscribeWithoutDeadlock(t *testing.T) {
	bus := New()
	var sub *recorder
	sub = &recorder{on: func(u Update) {
		if u.Created {
			bus.Subscribe(sub, u.Key)
		}
	}}
	bus.SubscribeNew(sub)

	created := RequestUpdate(domain.LendingRequest{ID: "r9", Status: domain.RequestPending})
	created.Created = true
	bus.Publish(created, RequestUpdate(domain.LendingRequest{ID: "r9", Status: domain.RequestAccepted}))

	got := sub.updates()
	require.Len(t, got, 2)
	assert.Equal(t, domain.RequestAccepted, got[1].Request.Status)
}

func TestOnBookStatusChanged(t *testing.T) {
	bus := New()

	var seen []domain.BookStatus
	cancel := bus.OnBookStatusChanged(func(bookID string, status domain.BookStatus) {
		assert.Equal(t, "b1", bookID)
		seen = append(seen, status)
	})

	bus.Publish(BookUpdate(book("b1", domain.BookPending)))
	bus.Publish(RequestUpdate(domain.LendingRequest{ID: "r1"}))

	removed := BookUpdate(book("b1", domain.BookAvailable))
	removed.Removed = true
	bus.Publish(removed)

	cancel()
	cancel()
	bus.Publish(BookUpdate(book("b1", domain.BookAvailable)))

	assert.Equal(t, []domain.BookStatus{domain.BookPending}, seen)
}

func TestBookStatusHookSkipsRepeats(t *testing.T) {
	bus := New()

	var seen []domain.BookStatus
	defer bus.OnBookStatusChanged(func(_ string, status domain.BookStatus) {
		seen = append(seen, status)
	})()

	retitled := book("b1", domain.BookAvailable)
	retitled.Title = "Dune Messiah"

	bus.Publish(BookUpdate(book("b1", domain.BookAvailable)))
	bus.Publish(BookUpdate(book("b1", domain.BookAvailable)))
	bus.Publish(BookUpdate(retitled))
	bus.Publish(BookUpdate(book("b1", domain.BookPending)))
	bus.Publish(BookUpdate(book("b2", domain.BookPending)))

	gone := BookUpdate(book("b1", domain.BookPending))
	gone.Removed = true
	bus.Publish(gone)
	bus.Publish(BookUpdate(book("b1", domain.BookPending)))

	assert.Equal(t, []domain.BookStatus{
		domain.BookAvailable,
		domain.BookPending,
		domain.BookPending,
		domain.BookPending,
	}, seen, "only first appearances and real changes fire")
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	bus := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := &recorder{}
			for j := 0; j < 100; j++ {
				bus.Subscribe(r, BookKey("b1"))
				bus.Publish(BookUpdate(book("b1", domain.BookPending)))
				bus.UnsubscribeAll(r)
			}
		}()
	}
	wg.Wait()
	assert.Zero(t, bus.Subscribers(BookKey("b1")))
}
