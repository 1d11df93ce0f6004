// Package syncbus is a keyed broadcast between display surfaces. A surface
// subscribes to the entity keys it currently shows; every update for a key is
// delivered synchronously to every subscriber of that key, so no two surfaces
// hold divergent values for one entity once Publish returns.
package syncbus

import (
	"sync"

	"bookshare/internal/core/domain"
)

// Kind is the entity type of a key
type Kind uint8

const (
	KindBook Kind = iota + 1
	KindRequest
)

func (k Kind) String() string {
	switch k {
	case KindBook:
		return "book"
	case KindRequest:
		return "request"
	}
	return "unknown"
}

// Key identifies one entity
type Key struct {
	Kind Kind
	ID   string
}

// BookKey returns the key of a book
func BookKey(id string) Key { return Key{Kind: KindBook, ID: id} }

// RequestKey returns the key of a request
func RequestKey(id string) Key { return Key{Kind: KindRequest, ID: id} }

// Update carries the new value of one entity. Exactly one of Book and
// Request is set, matching Key.Kind.
type Update struct {
	Key     Key
	Book    *domain.Book
	Request *domain.LendingRequest

	// Created marks the first appearance of the entity; it is also
	// delivered to SubscribeNew subscribers.
	Created bool
	// Removed marks the entity as gone; Book/Request hold its last value.
	Removed bool
}

// BookUpdate builds an update for a book value
func BookUpdate(b domain.Book) Update {
	return Update{Key: BookKey(b.ID), Book: &b}
}

// RequestUpdate builds an update for a request value
func RequestUpdate(r domain.LendingRequest) Update {
	return Update{Key: RequestKey(r.ID), Request: &r}
}

// Subscriber receives updates. Deliver is called without any bus lock held,
// so it may subscribe or unsubscribe.
type Subscriber interface {
	Deliver(u Update)
}

// BookStatusFunc is notified when a published book status differs from the
// last one published for that book
type BookStatusFunc func(bookID string, status domain.BookStatus)

// Bus routes updates by key
type Bus struct {
	mu       sync.RWMutex
	byKey    map[Key]map[Subscriber]struct{}
	keysOf   map[Subscriber]map[Key]struct{}
	newSubs  map[Subscriber]struct{}
	hooks    map[int]BookStatusFunc
	nextHook int

	// lastStatus is the last published status per book; removal forgets it
	lastStatus map[string]domain.BookStatus
}

// New creates an empty bus
func New() *Bus {
	return &Bus{
		byKey:   make(map[Key]map[Subscriber]struct{}),
		keysOf:  make(map[Subscriber]map[Key]struct{}),
		newSubs: make(map[Subscriber]struct{}),
		hooks:   make(map[int]BookStatusFunc),

		lastStatus: make(map[string]domain.BookStatus),
	}
}

// Subscribe registers sub for updates on keys
func (b *Bus) Subscribe(sub Subscriber, keys ...Key) {
	b.mu.Lock()
	defer b.mu.Unlock()

	own, ok := b.keysOf[sub]
	if !ok {
		own = make(map[Key]struct{}, len(keys))
		b.keysOf[sub] = own
	}
	for _, key := range keys {
		subs, ok := b.byKey[key]
		if !ok {
			subs = make(map[Subscriber]struct{})
			b.byKey[key] = subs
		}
		subs[sub] = struct{}{}
		own[key] = struct{}{}
	}
}

// Unsubscribe removes sub from keys
func (b *Bus) Unsubscribe(sub Subscriber, keys ...Key) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, key := range keys {
		b.dropLocked(sub, key)
	}
}

// SubscribeNew registers sub for every Created update regardless of key
func (b *Bus) SubscribeNew(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.newSubs[sub] = struct{}{}
}

// UnsubscribeAll removes every registration of sub
func (b *Bus) UnsubscribeAll(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key := range b.keysOf[sub] {
		b.dropLocked(sub, key)
	}
	delete(b.keysOf, sub)
	delete(b.newSubs, sub)
}

func (b *Bus) dropLocked(sub Subscriber, key Key) {
	if subs, ok := b.byKey[key]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.byKey, key)
		}
	}
	if own, ok := b.keysOf[sub]; ok {
		delete(own, key)
	}
}

// Subscribers returns how many subscribers hold key
func (b *Bus) Subscribers(key Key) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byKey[key])
}

// OnBookStatusChanged registers fn for book status changes and returns a
// function that removes it. The first value published for a book counts as
// a change; republishing the same status does not.
func (b *Bus) OnBookStatusChanged(fn BookStatusFunc) (cancel func()) {
	b.mu.Lock()
	id := b.nextHook
	b.nextHook++
	b.hooks[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.hooks, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers updates in order. Targets are resolved per update under
// the lock and delivered after it is released.
func (b *Bus) Publish(updates ...Update) {
	for _, u := range updates {
		targets, hooks := b.targets(u)
		for _, sub := range targets {
			sub.Deliver(u)
		}
		for _, fn := range hooks {
			fn(u.Book.ID, u.Book.Status)
		}
	}
}

// targets resolves the subscribers of u and, when u changes a book status,
// the hooks to notify
func (b *Bus) targets(u Update) ([]Subscriber, []BookStatusFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()

	targets := make([]Subscriber, 0, len(b.byKey[u.Key])+len(b.newSubs))
	seen := make(map[Subscriber]struct{}, cap(targets))
	for sub := range b.byKey[u.Key] {
		targets = append(targets, sub)
		seen[sub] = struct{}{}
	}
	if u.Created {
		for sub := range b.newSubs {
			if _, dup := seen[sub]; !dup {
				targets = append(targets, sub)
			}
		}
	}

	var hooks []BookStatusFunc
	if b.statusChangedLocked(u) && len(b.hooks) > 0 {
		hooks = make([]BookStatusFunc, 0, len(b.hooks))
		for _, fn := range b.hooks {
			hooks = append(hooks, fn)
		}
	}
	return targets, hooks
}

func (b *Bus) statusChangedLocked(u Update) bool {
	if u.Key.Kind != KindBook || u.Book == nil {
		return false
	}
	if u.Removed {
		delete(b.lastStatus, u.Key.ID)
		return false
	}
	if prev, ok := b.lastStatus[u.Key.ID]; ok && prev == u.Book.Status {
		return false
	}
	b.lastStatus[u.Key.ID] = u.Book.Status
	return true
}
