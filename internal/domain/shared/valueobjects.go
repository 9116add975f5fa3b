package shared

import (
	"math"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// CURRICULUM
// ══════════════════════════════════════════════════════════════════════════════

// Curriculum - учебный трек со своей лестницей уровней и таблицами критериев.
type Curriculum string

const (
	CurriculumAbacus  Curriculum = "abacus"
	CurriculumVedic   Curriculum = "vedic"
	CurriculumLogic   Curriculum = "logic"
	CurriculumIQGames Curriculum = "iq-games"
)

// Curricula возвращает все известные треки в стабильном порядке.
func Curricula() []Curriculum {
	return []Curriculum{CurriculumAbacus, CurriculumVedic, CurriculumLogic, CurriculumIQGames}
}

// IsValid проверяет, что трек известен системе.
func (c Curriculum) IsValid() bool {
	switch c {
	case CurriculumAbacus, CurriculumVedic, CurriculumLogic, CurriculumIQGames:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление трека.
func (c Curriculum) String() string {
	return string(c)
}

// ParseCurriculum нормализует ввод ("Abacus ", "IQ_GAMES") в Curriculum.
func ParseCurriculum(s string) (Curriculum, bool) {
	c := Curriculum(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-"))
	return c, c.IsValid()
}

// ══════════════════════════════════════════════════════════════════════════════
// AGE GROUP & SESSION TYPE
// ══════════════════════════════════════════════════════════════════════════════

// AgeGroup влияет на размер пакета упражнений.
type AgeGroup string

const (
	AgeGroupKids   AgeGroup = "kids"   // 5-8
	AgeGroupJunior AgeGroup = "junior" // 9-12
	AgeGroupTeen   AgeGroup = "teen"   // 13-17
	AgeGroupAdult  AgeGroup = "adult"
)

// IsValid проверяет возрастную группу.
func (a AgeGroup) IsValid() bool {
	switch a {
	case AgeGroupKids, AgeGroupJunior, AgeGroupTeen, AgeGroupAdult:
		return true
	default:
		return false
	}
}

// SessionType - вид тренировки.
type SessionType string

const (
	SessionTypePractice   SessionType = "practice"
	SessionTypeAssessment SessionType = "assessment"
	SessionTypeWarmup     SessionType = "warmup"
)

// IsValid проверяет вид тренировки.
func (t SessionType) IsValid() bool {
	switch t {
	case SessionTypePractice, SessionTypeAssessment, SessionTypeWarmup:
		return true
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// NUMERIC HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// Percent возвращает part/whole*100 или 0, если whole == 0.
func Percent(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

// Clamp ограничивает v диапазоном [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Round2 округляет до двух знаков после запятой.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
