package assessment

import (
	"math"
	"sort"

	"github.com/sharpmind/trainer-hub/internal/domain/shared"
	"github.com/sharpmind/trainer-hub/internal/domain/training"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESULT
// ══════════════════════════════════════════════════════════════════════════════

// Trend - направление изменения.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
	TrendMixed     Trend = "mixed"
)

// Rates - базовые проценты сессии.
type Rates struct {
	Accuracy   float64 `json:"accuracy"`
	Completion float64 `json:"completion"`
	Error      float64 `json:"error"`
}

// Scores - баллы по осям и итог.
type Scores struct {
	Accuracy   float64 `json:"accuracy"`
	Speed      float64 `json:"speed"`
	Completion float64 `json:"completion"`
	// Consistency равен nil, если истории нет.
	Consistency *float64 `json:"consistency,omitempty"`
	Overall     float64  `json:"overall"`
}

// TimeAnalysis - распределение времени на упражнение.
type TimeAnalysis struct {
	Mean       float64 `json:"mean"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	StdDev     float64 `json:"std_dev"`
	Consistent bool    `json:"consistent"`
	HalfDelta  float64 `json:"half_delta"`
	Trend      Trend   `json:"trend"`
}

// TypeErrors - ошибки одного типа упражнений.
type TypeErrors struct {
	Type  string  `json:"type"`
	Count int     `json:"count"`
	Share float64 `json:"share"`
}

// ErrorAnalysis - кластеры ошибок по типам.
type ErrorAnalysis struct {
	Total           int          `json:"total"`
	ByType          []TypeErrors `json:"by_type"`
	MostProblematic string       `json:"most_problematic,omitempty"`
}

// Comparison - сравнение с предыдущими сессиями.
type Comparison struct {
	SessionsCompared int     `json:"sessions_compared"`
	AccuracyDelta    float64 `json:"accuracy_delta"`
	// TimeDelta положителен, если студент стал быстрее.
	TimeDelta float64 `json:"time_delta"`
	Trend     Trend   `json:"trend"`
}

// Result - полный разбор сессии.
type Result struct {
	SessionID  string        `json:"session_id"`
	Curriculum string        `json:"curriculum"`
	Level      string        `json:"level"`
	Rates      Rates         `json:"rates"`
	Scores     Scores        `json:"scores"`
	Grade      string        `json:"grade"`
	Strengths  []string      `json:"strengths"`
	Weaknesses []string      `json:"weaknesses"`
	Time       TimeAnalysis  `json:"time"`
	Errors     ErrorAnalysis `json:"errors"`
	Comparison *Comparison   `json:"comparison,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// SCORER
// ══════════════════════════════════════════════════════════════════════════════

// Scorer строит Result по сессии.
type Scorer struct {
	cfg Config
}

// NewScorer проверяет веса и создаёт Scorer.
func NewScorer(cfg Config) (*Scorer, error) {
	if err := cfg.Weights.Validate(); err != nil {
		return nil, err
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 5
	}
	if cfg.Tables == nil {
		cfg.Tables = DefaultTables()
	}
	return &Scorer{cfg: cfg}, nil
}

// Weights возвращает действующие веса.
func (s *Scorer) Weights() Weights {
	return s.cfg.Weights
}

// HistoryWindow возвращает число предыдущих сессий, которые учитывает Analyze.
func (s *Scorer) HistoryWindow() int {
	return s.cfg.HistoryWindow
}

func (s *Scorer) tables(c shared.Curriculum) AxisTables {
	if t, ok := s.cfg.Tables[c]; ok {
		return t
	}
	return s.cfg.Fallback
}

// Analyze разбирает сессию. history - предыдущие сессии, новые первыми;
// учитываются только завершённые сессии того же трека и уровня.
func (s *Scorer) Analyze(session *training.Session, history []*training.Session) *Result {
	tables := s.tables(session.Curriculum)
	prior := s.selectHistory(session, history)

	answered := session.Answered()
	res := &Result{
		SessionID:  session.ID,
		Curriculum: session.Curriculum.String(),
		Level:      session.Level,
		Rates: Rates{
			Accuracy:   shared.Percent(session.CorrectAnswers, answered),
			Completion: shared.Percent(answered, session.Total()),
			Error:      shared.Percent(session.IncorrectAnswers, answered),
		},
		Strengths:  []string{},
		Weaknesses: []string{},
	}

	res.Scores.Accuracy = ScoreDescending(res.Rates.Accuracy, tables.Accuracy)
	res.Scores.Completion = ScoreDescending(res.Rates.Completion, tables.Completion)
	if answered > 0 {
		res.Scores.Speed = ScoreSpeed(session.AverageTimePerQuestion, tables.Speed)
	}

	if len(prior) > 0 {
		accs := make([]float64, 0, len(prior)+1)
		accs = append(accs, res.Rates.Accuracy)
		for _, p := range prior {
			accs = append(accs, p.Accuracy)
		}
		c := ConsistencyScore(accs)
		res.Scores.Consistency = &c
	}

	res.Scores.Overall = shared.Round2(s.overall(res.Scores))
	res.Grade = Grade(res.Scores.Overall)
	res.Time = AnalyzeTimes(answeredTimes(session))
	res.Errors = AnalyzeErrors(session)
	if len(prior) > 0 {
		res.Comparison = Compare(session, prior)
	}

	s.describe(res)
	return res
}

func (s *Scorer) selectHistory(session *training.Session, history []*training.Session) []*training.Session {
	out := make([]*training.Session, 0, s.cfg.HistoryWindow)
	for _, h := range history {
		if len(out) == s.cfg.HistoryWindow {
			break
		}
		if h == nil || h.ID == session.ID || h.Status != training.StatusCompleted {
			continue
		}
		if h.Curriculum != session.Curriculum || h.Level != session.Level {
			continue
		}
		out = append(out, h)
	}
	return out
}

func (s *Scorer) overall(sc Scores) float64 {
	w := s.cfg.Weights
	if sc.Consistency == nil {
		w = w.withoutConsistency()
		return w.Accuracy*sc.Accuracy + w.Speed*sc.Speed + w.Completion*sc.Completion
	}
	return w.Accuracy*sc.Accuracy + w.Speed*sc.Speed + w.Completion*sc.Completion + w.Consistency**sc.Consistency
}

func (s *Scorer) describe(res *Result) {
	axes := []struct {
		name  string
		score float64
	}{
		{"accuracy", res.Scores.Accuracy},
		{"speed", res.Scores.Speed},
		{"completion", res.Scores.Completion},
	}
	for _, a := range axes {
		switch {
		case a.score >= BandGood:
			res.Strengths = append(res.Strengths, a.name)
		case a.score < BandSatisfactory:
			res.Weaknesses = append(res.Weaknesses, a.name)
		}
	}

	if res.Time.Consistent && res.Time.Mean > 0 {
		res.Strengths = append(res.Strengths, "consistent pace")
	}
	if res.Time.Trend == TrendDeclining {
		res.Weaknesses = append(res.Weaknesses, "slowing down")
	}
	if res.Errors.MostProblematic != "" && res.Errors.Total >= 2 {
		res.Weaknesses = append(res.Weaknesses, "type:"+res.Errors.MostProblematic)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// AXIS SCORING
// ══════════════════════════════════════════════════════════════════════════════

// ScoreDescending оценивает ось, где больше - лучше (точность, завершённость).
// Ниже последней ступени возвращается сырое значение в [0, 100].
func ScoreDescending(v float64, t Thresholds) float64 {
	switch {
	case v >= t.Excellent:
		return BandExcellent
	case v >= t.Good:
		return BandGood
	case v >= t.Satisfactory:
		return BandSatisfactory
	case v >= t.NeedsImprovement:
		return BandNeedsImprovement
	default:
		return shared.Clamp(v, 0, 100)
	}
}

// ScoreSpeed оценивает среднее время в секундах, где меньше - лучше.
// Медленнее худшего порога балл падает на 2 за секунду от 50 до нуля.
func ScoreSpeed(seconds float64, t Thresholds) float64 {
	switch {
	case seconds <= t.Excellent:
		return BandExcellent
	case seconds <= t.Good:
		return BandGood
	case seconds <= t.Satisfactory:
		return BandSatisfactory
	case seconds <= t.NeedsImprovement:
		return BandNeedsImprovement
	default:
		return math.Max(BandNeedsImprovement-2*(seconds-t.NeedsImprovement), 0)
	}
}

// ConsistencyScore = max(0, 100 - 2*stddev(accuracies)).
func ConsistencyScore(accuracies []float64) float64 {
	_, sd := MeanStdDev(accuracies)
	return math.Max(0, 100-2*sd)
}

var gradeScale = []struct {
	min   float64
	grade string
}{
	{95, "A+"}, {90, "A"}, {85, "B+"}, {80, "B"},
	{75, "C+"}, {70, "C"}, {65, "D+"}, {60, "D"},
}

// Grade переводит итоговый балл в буквенную отметку.
func Grade(score float64) string {
	for _, g := range gradeScale {
		if score >= g.min {
			return g.grade
		}
	}
	return "F"
}

// ══════════════════════════════════════════════════════════════════════════════
// TIME, ERRORS, HISTORY
// ══════════════════════════════════════════════════════════════════════════════

func answeredTimes(s *training.Session) []float64 {
	out := make([]float64, 0, s.Answered())
	for _, ex := range s.Exercises {
		if ex.IsAnswered {
			out = append(out, ex.TimeSpent)
		}
	}
	return out
}

// AnalyzeTimes считает статистику времени в порядке ответов.
func AnalyzeTimes(times []float64) TimeAnalysis {
	ta := TimeAnalysis{Trend: TrendStable}
	if len(times) == 0 {
		return ta
	}

	ta.Mean, ta.StdDev = MeanStdDev(times)
	ta.Min, ta.Max = times[0], times[0]
	for _, v := range times[1:] {
		ta.Min = math.Min(ta.Min, v)
		ta.Max = math.Max(ta.Max, v)
	}
	ta.Consistent = ta.StdDev < 0.3*ta.Mean

	ta.HalfDelta = HalfDelta(times)
	ta.Trend = timeTrend(ta.HalfDelta)
	return ta
}

// HalfDelta = среднее второй половины - среднее первой.
func HalfDelta(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mid := len(values) / 2
	first, _ := MeanStdDev(values[:mid])
	second, _ := MeanStdDev(values[mid:])
	return second - first
}

func timeTrend(delta float64) Trend {
	switch {
	case delta < -1:
		return TrendImproving
	case delta > 1:
		return TrendDeclining
	default:
		return TrendStable
	}
}

// AnalyzeErrors группирует неверные ответы по типу упражнения.
// При равенстве самым проблемным считается тип, первый по алфавиту.
func AnalyzeErrors(s *training.Session) ErrorAnalysis {
	counts := make(map[string]int)
	total := 0
	for _, ex := range s.Exercises {
		if !ex.IsAnswered || ex.Correct() {
			continue
		}
		typ := ex.Type
		if typ == "" {
			typ = "general"
		}
		counts[typ]++
		total++
	}

	ea := ErrorAnalysis{Total: total, ByType: make([]TypeErrors, 0, len(counts))}
	for typ, n := range counts {
		ea.ByType = append(ea.ByType, TypeErrors{Type: typ, Count: n, Share: shared.Percent(n, total)})
	}
	sort.Slice(ea.ByType, func(i, j int) bool {
		if ea.ByType[i].Count != ea.ByType[j].Count {
			return ea.ByType[i].Count > ea.ByType[j].Count
		}
		return ea.ByType[i].Type < ea.ByType[j].Type
	})
	if len(ea.ByType) > 0 {
		ea.MostProblematic = ea.ByType[0].Type
	}
	return ea
}

// Compare сравнивает сессию со средними по истории.
func Compare(s *training.Session, prior []*training.Session) *Comparison {
	var acc, tm float64
	for _, p := range prior {
		acc += p.Accuracy
		tm += p.AverageTimePerQuestion
	}
	n := float64(len(prior))

	c := &Comparison{
		SessionsCompared: len(prior),
		AccuracyDelta:    shared.Round2(s.Accuracy - acc/n),
		TimeDelta:        shared.Round2(tm/n - s.AverageTimePerQuestion),
	}
	c.Trend = combinedTrend(c.AccuracyDelta, c.TimeDelta)
	return c
}

func combinedTrend(accDelta, timeDelta float64) Trend {
	a, t := sign(accDelta), sign(timeDelta)
	switch {
	case a == 0 && t == 0:
		return TrendStable
	case a >= 0 && t >= 0:
		return TrendImproving
	case a <= 0 && t <= 0:
		return TrendDeclining
	default:
		return TrendMixed
	}
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// MeanStdDev возвращает среднее и стандартное отклонение генеральной совокупности.
func MeanStdDev(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}
