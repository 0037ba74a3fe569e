package flow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"docketline/internal/config"
	"docketline/internal/docket"
)

// PoolJudge is one assignable judge: a chat id to propose to and a
// display name written to the docket on acceptance.
type PoolJudge struct {
	ID   string
	Name string
}

// JudgePool supplies assignment candidates in proposal order.
type JudgePool interface {
	Candidates(ctx context.Context) ([]PoolJudge, error)
}

// StaticPool serves the judge list from configuration.
type StaticPool struct {
	cfg *config.Config
}

func NewStaticPool(cfg *config.Config) *StaticPool { return &StaticPool{cfg: cfg} }

func (p *StaticPool) Candidates(ctx context.Context) ([]PoolJudge, error) {
	out := make([]PoolJudge, 0, len(p.cfg.Judges.Pool))
	for _, id := range p.cfg.Judges.Pool {
		out = append(out, PoolJudge{ID: id, Name: p.cfg.JudgeName(id)})
	}
	return out, nil
}

// RosterPool reads candidates from the store's judge roster, caching
// the result so every proposal does not re-read the sheet. Only judges
// marked Active are assignable.
type RosterPool struct {
	store   *docket.Store
	clock   Clock
	refresh time.Duration

	mu      sync.Mutex
	cached  []PoolJudge
	fetched time.Time
}

func NewRosterPool(store *docket.Store, clock Clock, refresh time.Duration) *RosterPool {
	return &RosterPool{store: store, clock: clock, refresh: refresh}
}

func (p *RosterPool) Candidates(ctx context.Context) ([]PoolJudge, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.clock.Now()
	if p.cached != nil && now.Sub(p.fetched) < p.refresh {
		return p.cached, nil
	}
	judges, res := p.store.Judges(ctx)
	if !res.Success {
		// serve stale rather than stall assignment
		if p.cached != nil {
			return p.cached, nil
		}
		return nil, fmt.Errorf("judge roster: %s", res.Message)
	}
	var out []PoolJudge
	for _, j := range judges {
		if j.Availability != "Active" || j.ChatID == "" {
			continue
		}
		out = append(out, PoolJudge{ID: j.ChatID, Name: j.Name})
	}
	p.cached = out
	p.fetched = now
	return out, nil
}
