// Package assessment превращает счётчики сессии в оценки, буквенную
// отметку и аналитику по времени, ошибкам и истории.
//
// Пакет не имеет побочных эффектов: Scorer - чистая функция сессии
// и короткой истории предыдущих сессий.
package assessment

import (
	"fmt"
	"math"

	"github.com/sharpmind/trainer-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// THRESHOLD TABLES
// ══════════════════════════════════════════════════════════════════════════════

// Thresholds - четырёхступенчатая таблица порогов одной оси.
// Для точности и завершённости значения убывают, для скорости (секунды) растут.
type Thresholds struct {
	Excellent        float64 `json:"excellent"`
	Good             float64 `json:"good"`
	Satisfactory     float64 `json:"satisfactory"`
	NeedsImprovement float64 `json:"needs_improvement"`
}

// AxisTables объединяет таблицы всех трёх осей.
type AxisTables struct {
	Accuracy   Thresholds `json:"accuracy"`
	Speed      Thresholds `json:"speed"`
	Completion Thresholds `json:"completion"`
}

// Баллы ступеней.
const (
	BandExcellent        = 100.0
	BandGood             = 85.0
	BandSatisfactory     = 70.0
	BandNeedsImprovement = 50.0
)

var standardCompletion = Thresholds{Excellent: 100, Good: 90, Satisfactory: 80, NeedsImprovement: 70}

// DefaultTables - таблицы по умолчанию для каждого трека.
func DefaultTables() map[shared.Curriculum]AxisTables {
	return map[shared.Curriculum]AxisTables{
		shared.CurriculumAbacus: {
			Accuracy:   Thresholds{95, 85, 75, 60},
			Speed:      Thresholds{3, 5, 8, 12},
			Completion: standardCompletion,
		},
		shared.CurriculumVedic: {
			Accuracy:   Thresholds{95, 85, 75, 60},
			Speed:      Thresholds{4, 6, 10, 15},
			Completion: standardCompletion,
		},
		shared.CurriculumLogic: {
			Accuracy:   Thresholds{90, 80, 70, 55},
			Speed:      Thresholds{15, 25, 40, 60},
			Completion: standardCompletion,
		},
		shared.CurriculumIQGames: {
			Accuracy:   Thresholds{90, 80, 70, 55},
			Speed:      Thresholds{10, 20, 30, 45},
			Completion: standardCompletion,
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// WEIGHTS
// ══════════════════════════════════════════════════════════════════════════════

// Weights - веса итогового балла. Сумма всегда равна 1.
type Weights struct {
	Accuracy    float64 `json:"accuracy"`
	Speed       float64 `json:"speed"`
	Completion  float64 `json:"completion"`
	Consistency float64 `json:"consistency"`
}

// DefaultWeights возвращает {0.4, 0.3, 0.2, 0.1}.
func DefaultWeights() Weights {
	return Weights{Accuracy: 0.4, Speed: 0.3, Completion: 0.2, Consistency: 0.1}
}

const weightEpsilon = 1e-9

// Validate проверяет, что веса неотрицательны и дают в сумме 1.
func (w Weights) Validate() error {
	for _, v := range []float64{w.Accuracy, w.Speed, w.Completion, w.Consistency} {
		if v < 0 || math.IsNaN(v) {
			return shared.WrapError("assessment", "Weights", shared.ErrValidation,
				fmt.Sprintf("negative weight %v", v), shared.ErrInvalidWeights)
		}
	}
	if sum := w.Accuracy + w.Speed + w.Completion + w.Consistency; math.Abs(sum-1) > weightEpsilon {
		return shared.WrapError("assessment", "Weights", shared.ErrValidation,
			fmt.Sprintf("weights sum to %v", sum), shared.ErrInvalidWeights)
	}
	return nil
}

// withoutConsistency переносит вес согласованности на остальные оси пропорционально.
func (w Weights) withoutConsistency() Weights {
	rest := w.Accuracy + w.Speed + w.Completion
	if rest == 0 {
		return Weights{Accuracy: 1}
	}
	return Weights{
		Accuracy:   w.Accuracy / rest,
		Speed:      w.Speed / rest,
		Completion: w.Completion / rest,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CONFIG
// ══════════════════════════════════════════════════════════════════════════════

// Config - настройки Scorer.
type Config struct {
	Tables        map[shared.Curriculum]AxisTables
	Fallback      AxisTables
	Weights       Weights
	HistoryWindow int
}

// DefaultConfig возвращает конфигурацию по умолчанию.
func DefaultConfig() Config {
	tables := DefaultTables()
	return Config{
		Tables:        tables,
		Fallback:      tables[shared.CurriculumAbacus],
		Weights:       DefaultWeights(),
		HistoryWindow: 5,
	}
}
