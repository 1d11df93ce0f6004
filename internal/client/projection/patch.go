package projection

import (
	"bookshare/internal/client/syncbus"
	"bookshare/internal/core/domain"
)

// Patch is the predicted post-state of one mutation
type Patch struct {
	Books    []domain.Book
	Requests []domain.LendingRequest
}

// Applied is a patch whose overlays are live. It keeps the values it
// replaced until Commit or Rollback resolves it.
type Applied struct {
	patch       Patch
	beforeBooks map[string]domain.Book
	beforeReqs  map[string]domain.LendingRequest
	seq         uint64
	resolved    bool
}

// Apply installs the patch as overlays and publishes the predicted values
func (p *Projection) Apply(patch Patch) *Applied {
	p.pub.Lock()
	defer p.pub.Unlock()
	p.mu.Lock()

	a := &Applied{
		patch:       patch,
		beforeBooks: make(map[string]domain.Book, len(patch.Books)),
		beforeReqs:  make(map[string]domain.LendingRequest, len(patch.Requests)),
		seq:         p.seq,
	}

	updates := make([]syncbus.Update, 0, len(patch.Books)+len(patch.Requests))
	for _, b := range patch.Books {
		if before, ok := p.books[b.ID]; ok {
			a.beforeBooks[b.ID] = p.effectiveBookLocked(b.ID, before)
		}
		p.bookOverlay[b.ID] = b
		updates = append(updates, syncbus.BookUpdate(b))
	}
	for _, r := range patch.Requests {
		_, known := p.reqs[r.ID]
		if known {
			a.beforeReqs[r.ID] = p.effectiveRequestLocked(r.ID, p.reqs[r.ID])
		}
		p.reqOverlay[r.ID] = r
		u := syncbus.RequestUpdate(r)
		u.Created = !known
		updates = append(updates, u)
	}
	p.mu.Unlock()

	p.bus.Publish(updates...)
	return a
}

// Commit resolves a patch with the server-confirmed values. Provisional
// requests of the patch are removed; confirmed values become the new
// baseline and are published.
func (p *Projection) Commit(a *Applied, books []domain.Book, reqs []domain.LendingRequest) {
	p.pub.Lock()
	defer p.pub.Unlock()
	p.mu.Lock()

	if a == nil || a.resolved {
		p.mu.Unlock()
		return
	}
	a.resolved = true

	var updates []syncbus.Update
	for _, r := range a.patch.Requests {
		delete(p.reqOverlay, r.ID)
		if r.Provisional {
			u := syncbus.RequestUpdate(r)
			u.Removed = true
			updates = append(updates, u)
		}
	}
	for _, b := range a.patch.Books {
		delete(p.bookOverlay, b.ID)
	}

	p.seq++
	for _, b := range books {
		if _, ok := p.books[b.ID]; !ok {
			p.bookOrder = append(p.bookOrder, b.ID)
		}
		p.books[b.ID] = b
		p.confirmedAt[syncbus.BookKey(b.ID)] = p.seq
		updates = append(updates, syncbus.BookUpdate(p.effectiveBookLocked(b.ID, b)))
	}
	for _, r := range reqs {
		_, known := p.reqs[r.ID]
		if !known {
			p.reqOrder = append([]string{r.ID}, p.reqOrder...)
		}
		p.reqs[r.ID] = r
		p.confirmedAt[syncbus.RequestKey(r.ID)] = p.seq
		u := syncbus.RequestUpdate(p.effectiveRequestLocked(r.ID, r))
		u.Created = !known
		updates = append(updates, u)
	}
	p.mu.Unlock()

	p.bus.Publish(updates...)
}

// Rollback drops the patch overlays and restores every affected entity to
// its pre-patch value. When a refresh or another commit replaced the
// baseline meanwhile, the newer confirmed value is restored instead.
func (p *Projection) Rollback(a *Applied) {
	p.pub.Lock()
	defer p.pub.Unlock()
	p.mu.Lock()

	if a == nil || a.resolved {
		p.mu.Unlock()
		return
	}
	a.resolved = true

	var updates []syncbus.Update
	for _, b := range a.patch.Books {
		delete(p.bookOverlay, b.ID)

		restored, ok := a.beforeBooks[b.ID]
		if confirmed, has := p.books[b.ID]; has && (!ok || p.seq != a.seq) {
			restored, ok = confirmed, true
		}
		if !ok {
			u := syncbus.BookUpdate(b)
			u.Removed = true
			updates = append(updates, u)
			continue
		}
		updates = append(updates, syncbus.BookUpdate(restored))
	}
	for _, r := range a.patch.Requests {
		delete(p.reqOverlay, r.ID)

		restored, ok := a.beforeReqs[r.ID]
		if confirmed, has := p.reqs[r.ID]; has && (!ok || p.seq != a.seq) {
			restored, ok = confirmed, true
		}
		if !ok || r.Provisional {
			u := syncbus.RequestUpdate(r)
			u.Removed = true
			updates = append(updates, u)
			continue
		}
		updates = append(updates, syncbus.RequestUpdate(restored))
	}
	p.mu.Unlock()

	p.bus.Publish(updates...)
}
