package api

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/solatis/healthcert/internal/core/db"
	"github.com/solatis/healthcert/internal/rules"
	"github.com/solatis/healthcert/internal/types"
)

// TrustLists supplies the trust list used to verify against a country's rules.
type TrustLists interface {
	TrustList(ctx context.Context, country string) (*types.TrustList, error)
}

// StaticTrustLists serves trust lists loaded once, keyed by country code.
type StaticTrustLists map[string]*types.TrustList

func (s StaticTrustLists) TrustList(_ context.Context, country string) (*types.TrustList, error) {
	tl, ok := s[strings.ToUpper(country)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", country, types.ErrNoRuleSet)
	}
	return tl, nil
}

// DefaultRefreshInterval bounds how long an imported trust list may go unseen.
const DefaultRefreshInterval = time.Minute

type cachedTrustList struct {
	list      *types.TrustList
	fetchedAt time.Time
}

// StoreTrustLists reads trust lists from the database and caches them per
// country for the refresh interval. Concurrent misses share one query. When a
// reload brings in a different rule set, or the cache is invalidated, the
// compiled-logic cache of the engine is reset as well.
type StoreTrustLists struct {
	store    *db.Store
	revoked  types.RevocationStore
	engine   *rules.Engine
	interval time.Duration
	now      func() time.Time

	group  singleflight.Group
	mu     sync.RWMutex
	cached map[string]cachedTrustList
}

// NewStoreTrustLists creates a cached database source. revoked overrides the
// SQL revocation list when non-nil. engine, when non-nil, is the engine the
// verifier compiles rule logic with.
func NewStoreTrustLists(store *db.Store, revoked types.RevocationStore, engine *rules.Engine, interval time.Duration) *StoreTrustLists {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &StoreTrustLists{
		store:    store,
		revoked:  revoked,
		engine:   engine,
		interval: interval,
		now:      time.Now,
		cached:   make(map[string]cachedTrustList),
	}
}

func (s *StoreTrustLists) TrustList(ctx context.Context, country string) (*types.TrustList, error) {
	country = strings.ToUpper(country)

	s.mu.RLock()
	entry, ok := s.cached[country]
	s.mu.RUnlock()
	if ok && s.now().Sub(entry.fetchedAt) < s.interval {
		return entry.list, nil
	}

	v, err, _ := s.group.Do(country, func() (any, error) {
		tl, err := s.store.TrustList(ctx, country, s.revoked)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		prev, seen := s.cached[country]
		s.cached[country] = cachedTrustList{list: tl, fetchedAt: s.now()}
		s.mu.Unlock()
		if seen && prev.list.RuleSetID != tl.RuleSetID {
			s.resetEngine()
		}
		return tl, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.TrustList), nil
}

// Invalidate drops every cached trust list and compiled expression.
func (s *StoreTrustLists) Invalidate() {
	s.mu.Lock()
	clear(s.cached)
	s.mu.Unlock()
	s.resetEngine()
}

func (s *StoreTrustLists) resetEngine() {
	if s.engine != nil {
		s.engine.Reset()
	}
}
