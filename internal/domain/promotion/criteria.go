// Package promotion решает, готов ли студент перейти на следующий уровень.
//
// Таблица критериев неизменяема: администратор заменяет её целиком через
// Registry, а каждое решение хранит копию критериев, по которым оно принято.
package promotion

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
	"sync/atomic"

	"github.com/sharpmind/trainer-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CRITERIA
// ══════════════════════════════════════════════════════════════════════════════

// Criteria - требования для перехода с уровня.
type Criteria struct {
	MinimumAccuracy            float64 `json:"minimum_accuracy"`
	MaximumAverageTime         float64 `json:"maximum_average_time"`
	RequiredSuccessfulSessions int     `json:"required_successful_sessions"`
	MinimumSessionsAtLevel     int     `json:"minimum_sessions_at_level"`
	ConsistencyThreshold       float64 `json:"consistency_threshold"`
}

// Validate проверяет, что критерии имеют смысл.
func (c Criteria) Validate() error {
	switch {
	case c.MinimumAccuracy <= 0 || c.MinimumAccuracy > 100:
		return fmt.Errorf("minimum accuracy %v out of (0, 100]", c.MinimumAccuracy)
	case c.MaximumAverageTime <= 0:
		return fmt.Errorf("maximum average time must be positive")
	case c.RequiredSuccessfulSessions < 1:
		return fmt.Errorf("required successful sessions must be at least 1")
	case c.MinimumSessionsAtLevel < 1:
		return fmt.Errorf("minimum sessions at level must be at least 1")
	case c.ConsistencyThreshold < 0 || c.ConsistencyThreshold > 100:
		return fmt.Errorf("consistency threshold %v out of [0, 100]", c.ConsistencyThreshold)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CRITERIA TABLE
// ══════════════════════════════════════════════════════════════════════════════

// CriteriaTable - неизменяемая таблица трек → уровень → критерии
// вместе с упорядоченными лестницами уровней.
type CriteriaTable struct {
	progressions map[shared.Curriculum][]string
	criteria     map[shared.Curriculum]map[string]Criteria
}

// TableSpec - сериализуемое описание таблицы.
type TableSpec struct {
	Progressions map[shared.Curriculum][]string            `json:"progressions"`
	Criteria     map[shared.Curriculum]map[string]Criteria `json:"criteria"`
}

// NewCriteriaTable копирует spec и проверяет его.
// Каждый уровень с критериями должен присутствовать в лестнице своего трека.
func NewCriteriaTable(spec TableSpec) (*CriteriaTable, error) {
	t := &CriteriaTable{
		progressions: make(map[shared.Curriculum][]string, len(spec.Progressions)),
		criteria:     make(map[shared.Curriculum]map[string]Criteria, len(spec.Criteria)),
	}

	var problems []string
	for c, levels := range spec.Progressions {
		if !c.IsValid() {
			problems = append(problems, fmt.Sprintf("unknown curriculum %q", c))
			continue
		}
		seen := make(map[string]bool, len(levels))
		for _, l := range levels {
			if seen[l] {
				problems = append(problems, fmt.Sprintf("%s: duplicate level %q", c, l))
			}
			seen[l] = true
		}
		t.progressions[c] = append([]string(nil), levels...)
	}

	for c, byLevel := range spec.Criteria {
		levels, ok := t.progressions[c]
		if !ok {
			problems = append(problems, fmt.Sprintf("%s: criteria without progression", c))
			continue
		}
		copied := make(map[string]Criteria, len(byLevel))
		for level, cr := range byLevel {
			if indexOf(levels, level) < 0 {
				problems = append(problems, fmt.Sprintf("%s/%s: level not in progression", c, level))
				continue
			}
			if err := cr.Validate(); err != nil {
				problems = append(problems, fmt.Sprintf("%s/%s: %v", c, level, err))
				continue
			}
			copied[level] = cr
		}
		t.criteria[c] = copied
	}

	if len(problems) > 0 {
		return nil, shared.Errorf("promotion", "NewCriteriaTable", shared.ErrValidation,
			"invalid criteria table: %s", strings.Join(problems, "; "))
	}
	return t, nil
}

// LoadCriteriaJSON читает таблицу из JSON.
func LoadCriteriaJSON(r io.Reader) (*CriteriaTable, error) {
	var spec TableSpec
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, shared.WrapError("promotion", "LoadCriteria", shared.ErrValidation, "decode criteria", err)
	}
	return NewCriteriaTable(spec)
}

// Lookup возвращает критерии уровня.
func (t *CriteriaTable) Lookup(c shared.Curriculum, level string) (Criteria, error) {
	if cr, ok := t.criteria[c][level]; ok {
		return cr, nil
	}
	return Criteria{}, shared.WrapError("promotion", "Lookup", shared.ErrNotFound,
		fmt.Sprintf("no criteria for %s/%s", c, level), shared.ErrCriteriaNotFound)
}

// NextLevel возвращает следующий уровень лестницы.
// Для верхнего или неизвестного уровня возвращает shared.ErrNoNextLevel.
func (t *CriteriaTable) NextLevel(c shared.Curriculum, level string) (string, error) {
	levels := t.progressions[c]
	i := indexOf(levels, level)
	if i < 0 || i == len(levels)-1 {
		return "", shared.ErrNoNextLevel
	}
	return levels[i+1], nil
}

// Levels возвращает число уровней, для которых заданы критерии.
func (t *CriteriaTable) Levels() int {
	n := 0
	for _, byLevel := range t.criteria {
		n += len(byLevel)
	}
	return n
}

// Progression возвращает копию лестницы уровней трека.
func (t *CriteriaTable) Progression(c shared.Curriculum) []string {
	return append([]string(nil), t.progressions[c]...)
}

func indexOf(levels []string, level string) int {
	for i, l := range levels {
		if l == level {
			return i
		}
	}
	return -1
}

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRY
// ══════════════════════════════════════════════════════════════════════════════

// Registry хранит текущую таблицу. Замена не затрагивает уже принятые решения.
type Registry struct {
	current atomic.Pointer[CriteriaTable]
}

// NewRegistry создаёт реестр с начальной таблицей.
func NewRegistry(t *CriteriaTable) *Registry {
	r := &Registry{}
	r.current.Store(t)
	return r
}

// Current возвращает действующую таблицу.
func (r *Registry) Current() *CriteriaTable {
	return r.current.Load()
}

// Replace атомарно подменяет таблицу.
func (r *Registry) Replace(t *CriteriaTable) {
	if t != nil {
		r.current.Store(t)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DEFAULTS
// ══════════════════════════════════════════════════════════════════════════════

// DefaultProgressions возвращает лестницы уровней всех треков.
func DefaultProgressions() map[shared.Curriculum][]string {
	abacus := []string{"foundation"}
	for i := 1; i <= 10; i++ {
		abacus = append(abacus, fmt.Sprintf("level-%d", i))
	}
	abacus = append(abacus, "grand-master")

	vedic := make([]string, 0, 8)
	for i := 1; i <= 8; i++ {
		vedic = append(vedic, fmt.Sprintf("level-%d", i))
	}

	return map[shared.Curriculum][]string{
		shared.CurriculumAbacus:  abacus,
		shared.CurriculumVedic:   vedic,
		shared.CurriculumLogic:   {"beginner", "intermediate", "advanced", "expert"},
		shared.CurriculumIQGames: {"bronze", "silver", "gold", "platinum", "diamond"},
	}
}

type curve struct {
	accuracy, accuracyStep        float64
	maxTime, maxTimeStep, minTime float64
	required, minSessions         int
	consistency                   float64
}

var defaultCurves = map[shared.Curriculum]curve{
	shared.CurriculumAbacus:  {80, 1, 10, 0.5, 4, 3, 5, 70},
	shared.CurriculumVedic:   {80, 1.5, 12, 0.75, 5, 3, 5, 70},
	shared.CurriculumLogic:   {75, 5, 60, 10, 30, 3, 4, 65},
	shared.CurriculumIQGames: {75, 5, 45, 5, 25, 3, 4, 65},
}

// DefaultTable строит таблицу по умолчанию: требования плавно растут по лестнице.
func DefaultTable() *CriteriaTable {
	spec := TableSpec{
		Progressions: DefaultProgressions(),
		Criteria:     make(map[shared.Curriculum]map[string]Criteria),
	}
	for c, levels := range spec.Progressions {
		cv := defaultCurves[c]
		byLevel := make(map[string]Criteria, len(levels))
		for i, level := range levels {
			step := float64(i)
			byLevel[level] = Criteria{
				MinimumAccuracy:            math.Min(cv.accuracy+cv.accuracyStep*step, 95),
				MaximumAverageTime:         math.Max(cv.maxTime-cv.maxTimeStep*step, cv.minTime),
				RequiredSuccessfulSessions: cv.required + i/4,
				MinimumSessionsAtLevel:     cv.minSessions,
				ConsistencyThreshold:       math.Min(cv.consistency+step, 85),
			}
		}
		spec.Criteria[c] = byLevel
	}

	t, err := NewCriteriaTable(spec)
	if err != nil {
		panic(err)
	}
	return t
}
