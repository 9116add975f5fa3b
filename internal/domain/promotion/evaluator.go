package promotion

import (
	"fmt"
	"math"
	"time"

	"github.com/sharpmind/trainer-hub/internal/domain/assessment"
	"github.com/sharpmind/trainer-hub/internal/domain/shared"
)

// Веса слагаемых уверенности.
const (
	weightAccuracy     = 0.35
	weightSpeed        = 0.25
	weightConsistency  = 0.20
	weightImprovement  = 0.15
	weightSessionCount = 0.05

	// ratioCap ограничивает вклад перевыполнения.
	ratioCap = 1.2

	// improvementScale - разница точности (п.п.) между половинами окна, дающая полный балл.
	improvementScale = 10.0
)

// SessionSample - сводка одной завершённой сессии для оценки.
type SessionSample struct {
	SessionID   string
	Accuracy    float64
	AverageTime float64
	CompletedAt time.Time
}

// EvaluatorConfig - настройки Evaluator.
type EvaluatorConfig struct {
	// Window - сколько последних сессий учитывать.
	Window int
	// AutoApproveConfidence - порог уверенности для автоматического перевода.
	AutoApproveConfidence float64
}

// DefaultEvaluatorConfig возвращает окно 10 и порог 85.
func DefaultEvaluatorConfig() EvaluatorConfig {
	return EvaluatorConfig{Window: 10, AutoApproveConfidence: 85}
}

// Request - входные данные оценки.
type Request struct {
	DecisionID string
	StudentID  string
	TrainerID  string
	SessionID  string
	Curriculum shared.Curriculum
	Level      string
	// Sessions - завершённые сессии на этом уровне, новые первыми.
	Sessions []SessionSample
	Now      time.Time
}

// Evaluator принимает решения о переводе.
type Evaluator struct {
	registry *Registry
	cfg      EvaluatorConfig
}

// NewEvaluator создаёт Evaluator.
func NewEvaluator(registry *Registry, cfg EvaluatorConfig) *Evaluator {
	def := DefaultEvaluatorConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.AutoApproveConfidence <= 0 {
		cfg.AutoApproveConfidence = def.AutoApproveConfidence
	}
	return &Evaluator{registry: registry, cfg: cfg}
}

// Window возвращает размер окна сессий.
func (e *Evaluator) Window() int {
	return e.cfg.Window
}

// Evaluate оценивает готовность к переводу.
// Возвращает shared.ErrCriteriaNotFound, если для уровня нет критериев.
func (e *Evaluator) Evaluate(req Request) (*Decision, error) {
	table := e.registry.Current()
	criteria, err := table.Lookup(req.Curriculum, req.Level)
	if err != nil {
		return nil, err
	}

	sessions := req.Sessions
	if len(sessions) > e.cfg.Window {
		sessions = sessions[:e.cfg.Window]
	}

	d := &Decision{
		ID:         req.DecisionID,
		StudentID:  req.StudentID,
		TrainerID:  req.TrainerID,
		SessionID:  req.SessionID,
		Curriculum: req.Curriculum,
		FromLevel:  req.Level,
		Criteria:   criteria,
		Status:     StatusNotEligible,
		CreatedAt:  req.Now,
	}
	d.Metrics.SessionsConsidered = len(sessions)

	// Шаг 1: без минимума сессий дальше не считаем.
	if len(sessions) < criteria.MinimumSessionsAtLevel {
		d.Results = []CriterionResult{{
			Name:     CriterionSessionCount,
			Met:      false,
			Measured: float64(len(sessions)),
			Required: float64(criteria.MinimumSessionsAtLevel),
		}}
		d.Reason = fmt.Sprintf("needs %d more session(s) at %s",
			criteria.MinimumSessionsAtLevel-len(sessions), req.Level)
		return d, nil
	}

	// Шаг 2: агрегаты.
	m := aggregate(sessions, criteria)
	d.Metrics = m

	// Шаг 3: критерии.
	d.Results = []CriterionResult{
		{CriterionSessionCount, true, float64(len(sessions)), float64(criteria.MinimumSessionsAtLevel)},
		{CriterionAccuracy, m.AverageAccuracy >= criteria.MinimumAccuracy, m.AverageAccuracy, criteria.MinimumAccuracy},
		{CriterionAverageTime, m.AverageTime <= criteria.MaximumAverageTime, m.AverageTime, criteria.MaximumAverageTime},
		{CriterionConsistency, m.Consistency >= criteria.ConsistencyThreshold, m.Consistency, criteria.ConsistencyThreshold},
		{CriterionStreak, m.SuccessfulStreak >= criteria.RequiredSuccessfulSessions, float64(m.SuccessfulStreak), float64(criteria.RequiredSuccessfulSessions)},
	}
	eligible := true
	var unmet []string
	for _, r := range d.Results {
		if !r.Met {
			eligible = false
			unmet = append(unmet, r.Name)
		}
	}

	// Шаг 4: уверенность.
	d.Confidence = Confidence(m, criteria)

	// Шаг 5: следующий уровень.
	next, err := table.NextLevel(req.Curriculum, req.Level)
	switch {
	case !eligible:
		d.Reason = fmt.Sprintf("criteria not met: %v", unmet)
	case err != nil:
		d.Reason = "already at the top level"
	default:
		d.Eligible = true
		d.ToLevel = next
		if d.Confidence >= e.cfg.AutoApproveConfidence {
			d.Status = StatusAutoApproved
			d.Reason = "all criteria met with high confidence"
		} else {
			d.Status = StatusPending
			d.Reason = "all criteria met, awaiting trainer review"
		}
	}
	return d, nil
}

func aggregate(sessions []SessionSample, c Criteria) Metrics {
	m := Metrics{SessionsConsidered: len(sessions)}

	accs := make([]float64, len(sessions))
	var accSum, timeSum float64
	for i, s := range sessions {
		accs[i] = s.Accuracy
		accSum += s.Accuracy
		timeSum += s.AverageTime

		if passes(s, c) {
			m.SuccessfulSessions++
		}
	}
	n := float64(len(sessions))
	m.AverageAccuracy = accSum / n
	m.AverageTime = timeSum / n

	_, sd := assessment.MeanStdDev(accs)
	m.Consistency = math.Max(0, 100-2*sd)

	for _, s := range sessions {
		if !passes(s, c) {
			break
		}
		m.SuccessfulStreak++
	}

	chronological := make([]float64, len(accs))
	for i, a := range accs {
		chronological[len(accs)-1-i] = a
	}
	m.ImprovementDelta = assessment.HalfDelta(chronological)
	return m
}

func passes(s SessionSample, c Criteria) bool {
	return s.Accuracy >= c.MinimumAccuracy && s.AverageTime <= c.MaximumAverageTime
}

// Confidence считает уверенность 0-100. Каждое отношение ограничено 1.2,
// слагаемое улучшения нормировано в [-1, 1] и не бывает отрицательным.
func Confidence(m Metrics, c Criteria) float64 {
	accuracy := capRatio(m.AverageAccuracy, c.MinimumAccuracy)
	speed := ratioCap
	if m.AverageTime > 0 {
		speed = capRatio(c.MaximumAverageTime, m.AverageTime)
	}
	consistency := capRatio(m.Consistency, c.ConsistencyThreshold)
	improvement := math.Max(0, shared.Clamp(m.ImprovementDelta/improvementScale, -1, 1))
	count := capRatio(float64(m.SessionsConsidered), float64(c.MinimumSessionsAtLevel))

	raw := weightAccuracy*accuracy +
		weightSpeed*speed +
		weightConsistency*consistency +
		weightImprovement*improvement +
		weightSessionCount*count

	return shared.Clamp(math.Round(raw*100), 0, 100)
}

func capRatio(num, den float64) float64 {
	if den <= 0 {
		return ratioCap
	}
	return math.Min(num/den, ratioCap)
}
