// Package lifecycle owns live training sessions: the in-memory registry,
// per-session timers, and the side effects that follow every transition.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sharpmind/trainer-hub/internal/domain/assessment"
	"github.com/sharpmind/trainer-hub/internal/domain/promotion"
	"github.com/sharpmind/trainer-hub/internal/domain/shared"
	"github.com/sharpmind/trainer-hub/internal/domain/training"
	"github.com/sharpmind/trainer-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Optional behaviors gated per student.
const (
	FeatureAdaptiveFeed       = "training.adaptive_feed"
	FeatureAdaptiveGeneration = "training.adaptive_generation"
	FeatureAutoApproval       = "promotion.auto_approval"
)

// FeatureGate reports whether an optional behavior is enabled for a student.
type FeatureGate interface {
	Enabled(feature, studentID string) bool
}

type allFeatures struct{}

func (allFeatures) Enabled(string, string) bool { return true }

// Config contains tunables for the Manager.
type Config struct {
	// AutoSaveInterval is the period of the auto-save timer.
	AutoSaveInterval time.Duration

	// DefaultDuration overrides the per-curriculum budget when non-zero.
	DefaultDuration time.Duration

	// CompletedRetention is how long completion results stay available
	// for idempotent Complete calls and status queries.
	CompletedRetention time.Duration

	// EffectTimeout bounds persistence and notification calls.
	EffectTimeout time.Duration

	// MaxExercises caps the batch size a caller may request.
	MaxExercises int
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		AutoSaveInterval:   30 * time.Second,
		CompletedRetention: 10 * time.Minute,
		EffectTimeout:      10 * time.Second,
		MaxExercises:       100,
	}
}

// Dependencies are the collaborators of the Manager. Adaptive, Decisions,
// Executor, Publisher, Features, Clock, NewID and Logger are optional.
type Dependencies struct {
	Generator training.ExerciseGenerator
	Sessions  training.SessionRepository
	Directory training.UserDirectory
	Adaptive  training.AdaptiveProfileStore
	Decisions promotion.DecisionRepository
	Executor  promotion.LevelExecutor
	Publisher shared.EventPublisher
	Scorer    *assessment.Scorer
	Evaluator *promotion.Evaluator
	Features  FeatureGate
	Clock     timeutil.Clock
	NewID     func() string
	Logger    *slog.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// MANAGER
// ══════════════════════════════════════════════════════════════════════════════

// liveSession is one registry entry. Every field except saves is guarded by mu.
type liveSession struct {
	mu       sync.Mutex
	session  *training.Session
	autoSave timeutil.Timer
	timeout  timeutil.Timer
	// gen invalidates callbacks of timers that were stopped or re-armed.
	gen        uint64
	completion *completion

	// seq numbers snapshots in mutation order.
	seq   uint64
	saves *saveGate
}

func newLiveSession(s *training.Session) *liveSession {
	return &liveSession{session: s, saves: &saveGate{}}
}

// snapshot copies the session for persistence. Caller holds ls.mu.
func (ls *liveSession) snapshot() *pendingSave {
	ls.seq++
	return &pendingSave{session: ls.session.Clone(), seq: ls.seq, gate: ls.saves}
}

// saveGate serializes the writes of one session. A snapshot older than the
// last one written is dropped.
type saveGate struct {
	mu   sync.Mutex
	last uint64
}

// pendingSave is a snapshot waiting to be written.
type pendingSave struct {
	session *training.Session
	seq     uint64
	gate    *saveGate
}

// completion is shared by every caller of Complete for one session.
type completion struct {
	session    *training.Session
	save       *pendingSave
	done       chan struct{}
	result     *CompletionResult
	finishedAt time.Time
}

func (c *completion) isDone() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Manager is the Session Lifecycle Manager.
type Manager struct {
	deps   Dependencies
	cfg    Config
	clock  timeutil.Clock
	logger *slog.Logger

	mu       sync.RWMutex
	live     map[string]*liveSession
	finished map[string]*completion
}

// NewManager creates a Manager.
func NewManager(deps Dependencies, cfg Config) *Manager {
	def := DefaultConfig()
	if cfg.AutoSaveInterval <= 0 {
		cfg.AutoSaveInterval = def.AutoSaveInterval
	}
	if cfg.CompletedRetention <= 0 {
		cfg.CompletedRetention = def.CompletedRetention
	}
	if cfg.EffectTimeout <= 0 {
		cfg.EffectTimeout = def.EffectTimeout
	}
	if cfg.MaxExercises <= 0 {
		cfg.MaxExercises = def.MaxExercises
	}
	if deps.Clock == nil {
		deps.Clock = timeutil.Real()
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	if deps.Features == nil {
		deps.Features = allFeatures{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Scorer == nil {
		deps.Scorer, _ = assessment.NewScorer(assessment.DefaultConfig())
	}
	if deps.Evaluator == nil {
		deps.Evaluator = promotion.NewEvaluator(
			promotion.NewRegistry(promotion.DefaultTable()),
			promotion.DefaultEvaluatorConfig(),
		)
	}

	return &Manager{
		deps:     deps,
		cfg:      cfg,
		clock:    deps.Clock,
		logger:   deps.Logger.With("component", "lifecycle"),
		live:     make(map[string]*liveSession),
		finished: make(map[string]*completion),
	}
}

// lookup returns the live entry for id.
func (m *Manager) lookup(id string) (*liveSession, error) {
	m.mu.RLock()
	ls, ok := m.live[id]
	m.mu.RUnlock()
	if !ok {
		return nil, shared.ErrSessionNotFound
	}
	return ls, nil
}

// withSession runs fn under the session lock. Sessions that are already
// completing are reported as not found, since they left the registry.
func (m *Manager) withSession(id string, fn func(ls *liveSession, now time.Time) error) error {
	ls, err := m.lookup(id)
	if err != nil {
		return err
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()

	if ls.completion != nil {
		return shared.ErrSessionNotFound
	}
	return fn(ls, m.clock.Now())
}

// finishedEntry returns the retained completion for id.
func (m *Manager) finishedEntry(id string) (*completion, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.finished[id]
	return c, ok
}

func (m *Manager) register(ls *liveSession) {
	m.mu.Lock()
	m.live[ls.session.ID] = ls
	m.mu.Unlock()
}

// snapshotLive copies the registry entries.
func (m *Manager) snapshotLive() []*liveSession {
	m.mu.RLock()
	out := make([]*liveSession, 0, len(m.live))
	for _, ls := range m.live {
		out = append(out, ls)
	}
	m.mu.RUnlock()
	return out
}

// ActiveCount returns the number of tracked sessions.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.live)
}

// Close stops every timer. Unfinished sessions stay persisted for Restore.
func (m *Manager) Close() {
	for _, ls := range m.snapshotLive() {
		ls.mu.Lock()
		ls.stopTimers()
		ls.mu.Unlock()
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// TIMERS
// ══════════════════════════════════════════════════════════════════════════════

// stopTimers cancels both timers. Callbacks already in flight see a new gen.
func (ls *liveSession) stopTimers() {
	ls.gen++
	if ls.autoSave != nil {
		ls.autoSave.Stop()
		ls.autoSave = nil
	}
	if ls.timeout != nil {
		ls.timeout.Stop()
		ls.timeout = nil
	}
}

// armTimers (re)starts both timers from the session's remaining time.
// Caller holds ls.mu.
func (m *Manager) armTimers(ls *liveSession, now time.Time) {
	ls.stopTimers()
	gen := ls.gen
	id := ls.session.ID

	if ls.session.Settings.AutoSave {
		m.armAutoSave(ls, id, gen)
	}
	ls.timeout = m.clock.AfterFunc(ls.session.Remaining(now), func() {
		m.onTimeout(id, gen)
	})
}

func (m *Manager) armAutoSave(ls *liveSession, id string, gen uint64) {
	ls.autoSave = m.clock.AfterFunc(m.cfg.AutoSaveInterval, func() {
		m.onAutoSave(id, gen)
	})
}

// current reports whether a timer callback still belongs to the live session.
func (ls *liveSession) current(gen uint64) bool {
	return ls.gen == gen && ls.completion == nil && ls.session.Status == training.StatusActive
}

func (m *Manager) onAutoSave(id string, gen uint64) {
	ls, err := m.lookup(id)
	if err != nil {
		return
	}

	ls.mu.Lock()
	if !ls.current(gen) {
		ls.mu.Unlock()
		return
	}
	snapshot := ls.snapshot()
	m.armAutoSave(ls, id, gen)
	ls.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.EffectTimeout)
	defer cancel()
	m.persist(ctx, snapshot)
}

func (m *Manager) onTimeout(id string, gen uint64) {
	ls, err := m.lookup(id)
	if err != nil {
		return
	}

	ls.mu.Lock()
	if !ls.current(gen) {
		ls.mu.Unlock()
		return
	}
	c := m.beginCompletionLocked(ls, training.ReasonTimeout, m.clock.Now())
	ls.mu.Unlock()

	m.logger.Info("session timed out", "session_id", id)
	m.finish(context.Background(), c)
}

// ══════════════════════════════════════════════════════════════════════════════
// EFFECTS
// ══════════════════════════════════════════════════════════════════════════════

// effects are collected under the session lock and applied after release.
type effects struct {
	persist  *pendingSave
	events   []shared.Event
	outcomes []training.ExerciseOutcome
}

func (e *effects) emit(ev shared.Event) {
	e.events = append(e.events, ev)
}

// apply runs side effects. Failures are logged and never undo the transition.
func (m *Manager) apply(ctx context.Context, eff effects) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.EffectTimeout)
	defer cancel()

	if eff.persist != nil {
		m.persist(ctx, eff.persist)
	}
	for _, o := range eff.outcomes {
		m.recordOutcome(ctx, o)
	}
	for _, ev := range eff.events {
		m.publish(ev)
	}
}

// persist writes p unless a newer snapshot of the session was already
// written. Writes of one session never overlap.
func (m *Manager) persist(ctx context.Context, p *pendingSave) {
	p.gate.mu.Lock()
	defer p.gate.mu.Unlock()

	if p.seq <= p.gate.last {
		m.logger.Debug("dropping stale session snapshot",
			"session_id", p.session.ID,
			"seq", p.seq,
			"written", p.gate.last,
		)
		return
	}
	p.gate.last = p.seq
	m.save(ctx, p.session)
}

func (m *Manager) save(ctx context.Context, s *training.Session) {
	if m.deps.Sessions == nil {
		return
	}
	err := m.deps.Sessions.Save(ctx, s)
	switch {
	case err == nil:
	case errors.Is(err, shared.ErrStaleSession):
		m.logger.Debug("store kept a newer session row", "session_id", s.ID, "status", s.Status)
	default:
		m.logger.Error("failed to persist session",
			"session_id", s.ID,
			"status", s.Status,
			"error", err,
		)
	}
}

func (m *Manager) recordOutcome(ctx context.Context, o training.ExerciseOutcome) {
	if m.deps.Adaptive == nil || !m.deps.Features.Enabled(FeatureAdaptiveFeed, o.StudentID) {
		return
	}
	if err := m.deps.Adaptive.RecordOutcome(ctx, o); err != nil {
		m.logger.Warn("failed to record adaptive outcome",
			"student_id", o.StudentID,
			"exercise_type", o.ExerciseType,
			"error", err,
		)
	}
}

func (m *Manager) publish(ev shared.Event) {
	if m.deps.Publisher == nil {
		return
	}
	if err := m.deps.Publisher.Publish(ev); err != nil {
		m.logger.Warn("failed to publish event",
			"event_type", ev.EventType(),
			"aggregate_id", ev.AggregateID(),
			"error", err,
		)
	}
}

// persistOnMutation returns a snapshot to save when the session auto-saves.
// Caller holds ls.mu.
func persistOnMutation(ls *liveSession) *pendingSave {
	if !ls.session.Settings.AutoSave {
		return nil
	}
	return ls.snapshot()
}

func sortByStart(views []StatusView) {
	sort.Slice(views, func(i, j int) bool {
		if views[i].StartedAt.Equal(views[j].StartedAt) {
			return views[i].SessionID < views[j].SessionID
		}
		return views[i].StartedAt.Before(views[j].StartedAt)
	})
}
