package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sharpmind/trainer-hub/internal/domain/promotion"
	"github.com/sharpmind/trainer-hub/internal/domain/shared"
	"github.com/sharpmind/trainer-hub/internal/domain/training"
)

// ─────────────────────────────────────────────────────────────────────────────
// Generator
// ─────────────────────────────────────────────────────────────────────────────

type fakeGenerator struct {
	mu       sync.Mutex
	requests []training.GenerateRequest
	err      error
}

func (g *fakeGenerator) Generate(_ context.Context, req training.GenerateRequest) (*training.GeneratedBatch, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}

	exercises := make([]*training.Exercise, req.Count)
	for i := range exercises {
		typ := "addition"
		if i%2 == 1 {
			typ = "subtraction"
		}
		exercises[i] = &training.Exercise{
			ID:            fmt.Sprintf("ex-%d", i),
			Type:          typ,
			Question:      fmt.Sprintf("%d + 1 - %d", i, i),
			CorrectAnswer: "1",
			AnswerType:    training.AnswerNumeric,
			Hints:         []string{"look at the last digit"},
		}
	}
	return &training.GeneratedBatch{Exercises: exercises, Difficulty: training.Difficulty{Level: req.Level}}, nil
}

func (g *fakeGenerator) lastRequest() training.GenerateRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests[len(g.requests)-1]
}

// ─────────────────────────────────────────────────────────────────────────────
// Session repository
// ─────────────────────────────────────────────────────────────────────────────

type fakeSessions struct {
	mu         sync.Mutex
	saved      map[string]*training.Session
	saves      int
	history    []*training.Session
	unfinished []*training.Session
	saveErr    error

	// beforeSave runs outside the lock ahead of every write.
	beforeSave func(s *training.Session)
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{saved: make(map[string]*training.Session)}
}

func (r *fakeSessions) Save(_ context.Context, s *training.Session) error {
	if r.beforeSave != nil {
		r.beforeSave(s)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saved[s.ID] = s.Clone()
	return nil
}

func (r *fakeSessions) Annotate(_ context.Context, id, notes string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.saved[id]
	if !ok {
		return shared.ErrSessionNotFound
	}
	if s.Status != training.StatusCompleted {
		return shared.ErrSessionNotCompleted
	}
	s.TrainerNotes = notes
	s.AnnotatedAt = &at
	return nil
}

func (r *fakeSessions) GetByID(_ context.Context, id string) (*training.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.saved[id]
	if !ok {
		return nil, shared.ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (r *fakeSessions) FindRecent(_ context.Context, q training.RecentQuery) ([]*training.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*training.Session
	for _, s := range r.history {
		if s.StudentID == q.StudentID && s.ID != q.ExcludeID && len(out) < q.Limit {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeSessions) FindUnfinished(context.Context) ([]*training.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unfinished, nil
}

func (r *fakeSessions) get(id string) *training.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saved[id]
}

func (r *fakeSessions) saveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

// ─────────────────────────────────────────────────────────────────────────────
// Directory
// ─────────────────────────────────────────────────────────────────────────────

type fakeDirectory struct {
	students map[string]*training.Person
	trainers map[string]*training.Person
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		students: map[string]*training.Person{
			"student-1": {
				ID:       "student-1",
				Code:     "ST-001",
				Name:     "Aru",
				AgeGroup: shared.AgeGroupJunior,
				CurrentLevels: map[shared.Curriculum]string{
					shared.CurriculumAbacus: "level-1",
				},
			},
			"student-2": {ID: "student-2", Name: "Dana", AgeGroup: shared.AgeGroupTeen},
		},
		trainers: map[string]*training.Person{
			"trainer-1": {ID: "trainer-1", Name: "Coach"},
		},
	}
}

func (d *fakeDirectory) GetStudent(_ context.Context, id string) (*training.Person, error) {
	if p, ok := d.students[id]; ok {
		return p, nil
	}
	return nil, shared.ErrStudentNotFound
}

func (d *fakeDirectory) GetTrainer(_ context.Context, id string) (*training.Person, error) {
	if p, ok := d.trainers[id]; ok {
		return p, nil
	}
	return nil, shared.ErrTrainerNotFound
}

// ─────────────────────────────────────────────────────────────────────────────
// Adaptive store, decisions, executor, publisher
// ─────────────────────────────────────────────────────────────────────────────

type fakeAdaptive struct {
	mu       sync.Mutex
	outcomes []training.ExerciseOutcome
	hint     *training.AdaptiveHint
}

func (a *fakeAdaptive) RecordOutcome(_ context.Context, o training.ExerciseOutcome) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.outcomes = append(a.outcomes, o)
	return nil
}

func (a *fakeAdaptive) Hint(context.Context, string, shared.Curriculum) (*training.AdaptiveHint, error) {
	return a.hint, nil
}

type fakeDecisions struct {
	mu    sync.Mutex
	saved []*promotion.Decision
}

func (r *fakeDecisions) Save(_ context.Context, d *promotion.Decision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, d.Clone())
	return nil
}

func (r *fakeDecisions) Transition(_ context.Context, d *promotion.Decision, from promotion.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, stored := range r.saved {
		if stored.ID == d.ID && stored.Status == from {
			r.saved[i] = d.Clone()
			return nil
		}
	}
	return shared.ErrDecisionNotPending
}

func (r *fakeDecisions) GetByID(_ context.Context, id string) (*promotion.Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.saved {
		if d.ID == id {
			return d.Clone(), nil
		}
	}
	return nil, shared.ErrDecisionNotFound
}

func (r *fakeDecisions) ListPending(context.Context, string, int) ([]*promotion.Decision, error) {
	return nil, nil
}

func (r *fakeDecisions) ListByStudent(context.Context, string, int) ([]*promotion.Decision, error) {
	return nil, nil
}

type fakeExecutor struct {
	mu       sync.Mutex
	executed []promotion.Promotion
}

func (e *fakeExecutor) ExecutePromotion(_ context.Context, p promotion.Promotion) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.executed = append(e.executed, p)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
	err    error
}

func (p *recordingPublisher) Publish(ev shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) ofType(t shared.EventType) []shared.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []shared.Event
	for _, ev := range p.events {
		if ev.EventType() == t {
			out = append(out, ev)
		}
	}
	return out
}

type featureOff map[string]bool

func (f featureOff) Enabled(feature, _ string) bool { return !f[feature] }

var errBoom = errors.New("boom")
