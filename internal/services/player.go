package services

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"dice-prediction-backend/internal/logging"
	"dice-prediction-backend/internal/models"
)

const refreshTimeout = 30 * time.Second

// PlayerHistory holds the latest reconciled history of one player together
// with the panel state used to render it.
type PlayerHistory struct {
	address    string
	reconciler *Reconciler
	notifier   HistoryNotifier
	loc        *time.Location
	logger     zerolog.Logger

	mu          sync.Mutex
	snapshot    []models.GameRecord
	state       *HistoryState
	loaded      bool
	issued      uint64
	installed   uint64
	refreshedAt time.Time
}

func NewPlayerHistory(address string, reconciler *Reconciler, notifier HistoryNotifier, pageSize int, loc *time.Location, logger zerolog.Logger) *PlayerHistory {
	return &PlayerHistory{
		address:    address,
		reconciler: reconciler,
		notifier:   notifier,
		loc:        loc,
		logger:     logging.Component(logger, "history").With().Str("player", address).Logger(),
		snapshot:   []models.GameRecord{},
		state:      NewHistoryState(pageSize),
	}
}

func (h *PlayerHistory) Address() string {
	return h.address
}

// Refresh re-derives the history from the ledger. Concurrent refreshes may
// finish in any order; a result is installed only if no later refresh has
// been installed already. It reports whether this call's result was kept.
func (h *PlayerHistory) Refresh(ctx context.Context) bool {
	h.mu.Lock()
	h.issued++
	token := h.issued
	h.mu.Unlock()

	records, err := h.reconciler.Reconcile(ctx, h.address)
	if err != nil {
		h.logger.Warn().Err(err).Msg("refresh degraded to empty history")
	}

	h.mu.Lock()
	if token < h.installed {
		h.mu.Unlock()
		h.logger.Debug().Uint64("token", token).Msg("discarding stale refresh")
		return false
	}
	h.installed = token
	h.snapshot = records
	h.loaded = true
	h.refreshedAt = time.Now()
	h.state.Reset()
	total := len(records)
	h.mu.Unlock()

	if h.notifier != nil {
		h.notifier.HistoryRefreshed(h.address, total)
	}
	return true
}

// EnsureLoaded refreshes once if no snapshot has been installed yet.
func (h *PlayerHistory) EnsureLoaded(ctx context.Context) {
	h.mu.Lock()
	loaded := h.loaded
	h.mu.Unlock()

	if !loaded {
		h.Refresh(ctx)
	}
}

func (h *PlayerHistory) Snapshot() []models.GameRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.snapshot)
}

func (h *PlayerHistory) RefreshedAt() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.refreshedAt
}

func (h *PlayerHistory) Page() HistoryPage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state.Apply(h.snapshot, h.loc)
}

// SetQuery validates and applies q, then renders the first page.
func (h *PlayerHistory) SetQuery(q models.HistoryQuery) (HistoryPage, error) {
	q = q.Normalize()
	if err := q.Validate(); err != nil {
		return HistoryPage{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.state.SetQuery(q)
	return h.state.Apply(h.snapshot, h.loc), nil
}

func (h *PlayerHistory) LoadMore() HistoryPage {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state.LoadMore()
	return h.state.Apply(h.snapshot, h.loc)
}

func (h *PlayerHistory) ClearFilters() HistoryPage {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state.ClearFilters()
	return h.state.Apply(h.snapshot, h.loc)
}

// Stats covers the full snapshot, independent of the panel filters.
func (h *PlayerHistory) Stats() models.PlayerStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return AggregateStats(h.snapshot)
}

// Recent returns the newest n records.
func (h *PlayerHistory) Recent(n int) []models.GameRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n > len(h.snapshot) {
		n = len(h.snapshot)
	}
	if n < 0 {
		n = 0
	}
	return slices.Clone(h.snapshot[:n])
}

// PlayerHistories keys histories by player address and refreshes them on
// request.
type PlayerHistories struct {
	reconciler *Reconciler
	notifier   HistoryNotifier
	pageSize   int
	loc        *time.Location
	logger     zerolog.Logger

	mu        sync.Mutex
	histories map[string]*PlayerHistory
	wg        sync.WaitGroup
}

func NewPlayerHistories(reconciler *Reconciler, notifier HistoryNotifier, pageSize int, loc *time.Location, logger zerolog.Logger) *PlayerHistories {
	return &PlayerHistories{
		reconciler: reconciler,
		notifier:   notifier,
		pageSize:   pageSize,
		loc:        loc,
		logger:     logger,
		histories:  make(map[string]*PlayerHistory),
	}
}

func (p *PlayerHistories) Get(address string) *PlayerHistory {
	key := strings.ToLower(address)

	p.mu.Lock()
	defer p.mu.Unlock()

	h, ok := p.histories[key]
	if !ok {
		h = NewPlayerHistory(address, p.reconciler, p.notifier, p.pageSize, p.loc, p.logger)
		p.histories[key] = h
	}
	return h
}

// RequestRefresh starts a background refresh and returns immediately.
func (p *PlayerHistories) RequestRefresh(address string) {
	h := p.Get(address)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		h.Refresh(ctx)
	}()
}

func (p *PlayerHistories) Forget(address string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.histories, strings.ToLower(address))
}

// Wait blocks until background refreshes have finished.
func (p *PlayerHistories) Wait() {
	p.wg.Wait()
}
