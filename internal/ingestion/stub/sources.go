// Package stub provides scripted ledger sources for ingestion tests.
package stub

import (
	"context"
	"sync"

	"solana-signal-engine/internal/domain"
)

// Session is one scripted subscription: its events are sent, then the
// session ends with Err, or blocks until cancelled when Block is set.
type Session struct {
	Events []domain.AssetCreated
	Err    error
	Block  bool
}

// Subscriber replays scripted sessions, one per SubscribeAssetCreation call.
// Once the script is exhausted every call blocks until cancelled.
type Subscriber struct {
	mu       sync.Mutex
	sessions []Session
	calls    int
}

// NewSubscriber creates a Subscriber with the given sessions.
func NewSubscriber(sessions ...Session) *Subscriber {
	return &Subscriber{sessions: sessions}
}

// SubscribeAssetCreation implements ingestion.Subscriber.
func (s *Subscriber) SubscribeAssetCreation(ctx context.Context, out chan<- domain.AssetCreated) error {
	s.mu.Lock()
	s.calls++
	var session Session
	if len(s.sessions) == 0 {
		session.Block = true
	} else {
		session = s.sessions[0]
		s.sessions = s.sessions[1:]
	}
	s.mu.Unlock()

	for _, ev := range session.Events {
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if session.Block {
		<-ctx.Done()
		return ctx.Err()
	}
	return session.Err
}

// Calls returns how many subscriptions were opened.
func (s *Subscriber) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Page is one scripted poll result.
type Page struct {
	Events []domain.AssetCreated
	Cursor string
	Err    error
}

// Poller replays scripted pages. Once the script is exhausted it returns no
// events and the cursor it was given.
type Poller struct {
	mu      sync.Mutex
	pages   []Page
	cursors []string
}

// NewPoller creates a Poller with the given pages.
func NewPoller(pages ...Page) *Poller {
	return &Poller{pages: pages}
}

// PollAssetCreation implements ingestion.Poller.
func (p *Poller) PollAssetCreation(_ context.Context, cursor string) ([]domain.AssetCreated, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cursors = append(p.cursors, cursor)
	if len(p.pages) == 0 {
		return nil, cursor, nil
	}
	page := p.pages[0]
	p.pages = p.pages[1:]
	if page.Err != nil {
		return nil, cursor, page.Err
	}
	return page.Events, page.Cursor, nil
}

// Cursors returns the cursors passed to each poll.
func (p *Poller) Cursors() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.cursors...)
}
