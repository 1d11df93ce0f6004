// Package surface implements the display contexts that each keep their own
// cached copy of books and requests. A surface only writes its cache when the
// bus delivers an update; it never mutates an entity on its own.
package surface

import (
	"strings"
	"sync"

	"bookshare/internal/client"
	"bookshare/internal/client/syncbus"
	"bookshare/internal/core/domain"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Kind selects what a surface displays
type Kind string

const (
	// Listing shows every book
	Listing Kind = "listing"
	// Search shows books matching a free-text query and genre
	Search Kind = "search"
	// MyBooks shows the books the viewer owns
	MyBooks Kind = "my-books"
	// Borrowed shows the viewer's accepted requests
	Borrowed Kind = "borrowed"
	// Inbox shows requests the viewer received and sent
	Inbox Kind = "inbox"
)

// Surface is one display context with its own cache
type Surface struct {
	kind   Kind
	viewer string
	query  string
	genre  string

	mu        sync.RWMutex
	bus       *syncbus.Bus
	mounted   bool
	books     map[string]domain.Book
	bookOrder []string
	reqs      map[string]domain.LendingRequest
	reqOrder  []string
}

// Option configures a surface
type Option func(*Surface)

// WithQuery sets the free-text query of a Search surface
func WithQuery(q string) Option {
	return func(s *Surface) { s.query = fold(q) }
}

// WithGenre restricts a Search surface to one genre
func WithGenre(g string) Option {
	return func(s *Surface) { s.genre = fold(g) }
}

// New creates an unmounted surface for viewer
func New(kind Kind, viewer string, opts ...Option) *Surface {
	s := &Surface{
		kind:   kind,
		viewer: viewer,
		books:  make(map[string]domain.Book),
		reqs:   make(map[string]domain.LendingRequest),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Kind returns the surface kind
func (s *Surface) Kind() Kind { return s.kind }

// Mount seeds the cache from snap and subscribes to every displayed entity
func (s *Surface) Mount(bus *syncbus.Bus, snap client.Snapshot) {
	s.mu.Lock()
	if s.mounted {
		s.mu.Unlock()
		return
	}
	s.bus = bus
	s.mounted = true
	s.books = make(map[string]domain.Book)
	s.reqs = make(map[string]domain.LendingRequest)
	s.bookOrder, s.reqOrder = nil, nil

	keys := make([]syncbus.Key, 0, len(snap.Books)+len(snap.Requests))
	for _, b := range snap.Books {
		if s.wantsBook(b) {
			s.books[b.ID] = b
			s.bookOrder = append(s.bookOrder, b.ID)
			keys = append(keys, syncbus.BookKey(b.ID))
		}
	}
	for _, r := range snap.Requests {
		if s.wantsRequest(r) {
			s.reqs[r.ID] = r
			s.reqOrder = append(s.reqOrder, r.ID)
			keys = append(keys, syncbus.RequestKey(r.ID))
		}
	}
	s.mu.Unlock()

	bus.Subscribe(s, keys...)
	bus.SubscribeNew(s)
}

// Unmount drops every subscription. Deliveries racing with Unmount are ignored.
func (s *Surface) Unmount() {
	s.mu.Lock()
	bus := s.bus
	s.mounted = false
	s.bus = nil
	s.mu.Unlock()

	if bus != nil {
		bus.UnsubscribeAll(s)
	}
}

// Mounted reports whether the surface is live
func (s *Surface) Mounted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mounted
}

// Deliver applies a bus update to the cache
func (s *Surface) Deliver(u syncbus.Update) {
	s.mu.Lock()
	if !s.mounted {
		s.mu.Unlock()
		return
	}
	bus := s.bus
	var sub, unsub []syncbus.Key

	switch {
	case u.Book != nil:
		sub, unsub = s.deliverBook(u)
	case u.Request != nil:
		sub, unsub = s.deliverRequest(u)
	}
	s.mu.Unlock()

	if len(sub) > 0 {
		bus.Subscribe(s, sub...)
		if !s.Mounted() {
			// Unmounted while subscribing.
			bus.UnsubscribeAll(s)
		}
	}
	if len(unsub) > 0 {
		bus.Unsubscribe(s, unsub...)
	}
}

func (s *Surface) deliverBook(u syncbus.Update) (sub, unsub []syncbus.Key) {
	b := *u.Book
	_, cached := s.books[b.ID]
	switch {
	case u.Removed:
		if cached {
			delete(s.books, b.ID)
			s.bookOrder = remove(s.bookOrder, b.ID)
			unsub = append(unsub, u.Key)
		}
	case cached:
		s.books[b.ID] = b
	case u.Created && s.wantsBook(b):
		s.books[b.ID] = b
		s.bookOrder = append([]string{b.ID}, s.bookOrder...)
		sub = append(sub, u.Key)
	}
	return sub, unsub
}

func (s *Surface) deliverRequest(u syncbus.Update) (sub, unsub []syncbus.Key) {
	r := *u.Request
	_, cached := s.reqs[r.ID]
	switch {
	case u.Removed:
		if cached {
			delete(s.reqs, r.ID)
			s.reqOrder = remove(s.reqOrder, r.ID)
			unsub = append(unsub, u.Key)
		}
	case cached:
		s.reqs[r.ID] = r
	case u.Created && s.wantsRequest(r):
		s.reqs[r.ID] = r
		s.reqOrder = append([]string{r.ID}, s.reqOrder...)
		sub = append(sub, u.Key)
	}
	return sub, unsub
}

// wantsBook decides cache membership; status is not part of it so that a
// displayed book never disappears on a status change
func (s *Surface) wantsBook(b domain.Book) bool {
	switch s.kind {
	case Listing:
		return true
	case Search:
		if s.genre != "" && fold(b.Genre) != s.genre {
			return false
		}
		return s.query == "" || strings.Contains(fold(b.Title+" "+b.Author), s.query)
	case MyBooks:
		return b.OwnerID == s.viewer
	}
	return false
}

func (s *Surface) wantsRequest(r domain.LendingRequest) bool {
	switch s.kind {
	case Borrowed:
		return r.RequesterID == s.viewer
	case Inbox:
		return r.RequesterID == s.viewer || r.OwnerID == s.viewer
	}
	return false
}

// Books returns the displayed books in display order
func (s *Surface) Books() []domain.Book {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Book, 0, len(s.bookOrder))
	for _, id := range s.bookOrder {
		out = append(out, s.books[id])
	}
	return out
}

// Book returns one cached book
func (s *Surface) Book(id string) (domain.Book, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[id]
	return b, ok
}

// Request returns one cached request
func (s *Surface) Request(id string) (domain.LendingRequest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reqs[id]
	return r, ok
}

// Requests returns the displayed requests. A Borrowed surface only shows
// requests currently Accepted.
func (s *Surface) Requests() []domain.LendingRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.LendingRequest, 0, len(s.reqOrder))
	for _, id := range s.reqOrder {
		r := s.reqs[id]
		if s.kind == Borrowed && r.Status != domain.RequestAccepted {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Received returns the inbox requests addressed to the viewer as owner
func (s *Surface) Received() []domain.LendingRequest {
	return s.filterRequests(func(r domain.LendingRequest) bool { return r.OwnerID == s.viewer })
}

// Sent returns the inbox requests the viewer made
func (s *Surface) Sent() []domain.LendingRequest {
	return s.filterRequests(func(r domain.LendingRequest) bool { return r.RequesterID == s.viewer })
}

func (s *Surface) filterRequests(keep func(domain.LendingRequest) bool) []domain.LendingRequest {
	var out []domain.LendingRequest
	for _, r := range s.Requests() {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func remove(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}

// fold normalizes text for case-insensitive matching
func fold(s string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}
