package claims

import (
	"context"
	"sync"
	"time"

	"github.com/stanstork/claimflow/internal/models"
	"github.com/stanstork/claimflow/internal/repository/repotest"
)

var fixedNow = time.Date(2026, 4, 6, 9, 30, 0, 0, time.UTC)

type recordingPublisher struct {
	mu      sync.Mutex
	updates []models.StatusUpdate
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, u models.StatusUpdate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, u)
	return p.err
}

func (p *recordingPublisher) transitions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.updates))
	for i, u := range p.updates {
		out[i] = string(u.Previous) + "->" + string(u.New)
	}
	return out
}

func newStore() *repotest.Store {
	s := repotest.New()
	s.Now = func() time.Time { return fixedNow }
	return s
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
