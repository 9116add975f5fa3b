package training

import (
	"time"

	"github.com/sharpmind/trainer-hub/internal/domain/shared"
)

// baseExerciseCount - размер пакета practice-сессии по треку и возрасту.
var baseExerciseCount = map[shared.Curriculum]map[shared.AgeGroup]int{
	shared.CurriculumAbacus: {
		shared.AgeGroupKids:   10,
		shared.AgeGroupJunior: 15,
		shared.AgeGroupTeen:   20,
		shared.AgeGroupAdult:  20,
	},
	shared.CurriculumVedic: {
		shared.AgeGroupKids:   8,
		shared.AgeGroupJunior: 12,
		shared.AgeGroupTeen:   15,
		shared.AgeGroupAdult:  20,
	},
	shared.CurriculumLogic: {
		shared.AgeGroupKids:   6,
		shared.AgeGroupJunior: 8,
		shared.AgeGroupTeen:   10,
		shared.AgeGroupAdult:  12,
	},
	shared.CurriculumIQGames: {
		shared.AgeGroupKids:   6,
		shared.AgeGroupJunior: 10,
		shared.AgeGroupTeen:   12,
		shared.AgeGroupAdult:  15,
	},
}

// secondsPerExercise - норматив времени на упражнение для расчёта бюджета.
var secondsPerExercise = map[shared.Curriculum]int{
	shared.CurriculumAbacus:  20,
	shared.CurriculumVedic:   25,
	shared.CurriculumLogic:   60,
	shared.CurriculumIQGames: 45,
}

const defaultExerciseCount = 10

// ExerciseCount возвращает размер пакета для трека, возраста и вида сессии.
// Уровень grand-master абакуса получает +20% упражнений.
func ExerciseCount(c shared.Curriculum, age shared.AgeGroup, kind shared.SessionType, level string) int {
	n := defaultExerciseCount
	if byAge, ok := baseExerciseCount[c]; ok {
		if v, ok := byAge[age]; ok {
			n = v
		} else if v, ok := byAge[shared.AgeGroupJunior]; ok {
			n = v
		}
	}

	switch kind {
	case shared.SessionTypeAssessment:
		n += n / 2
	case shared.SessionTypeWarmup:
		n = (n + 1) / 2
	}

	if c == shared.CurriculumAbacus && level == "grand-master" {
		n += n / 5
	}
	return n
}

// DefaultBudget возвращает бюджет времени для пакета из n упражнений.
func DefaultBudget(c shared.Curriculum, n int) time.Duration {
	per, ok := secondsPerExercise[c]
	if !ok {
		per = 30
	}
	return time.Duration(n*per) * time.Second
}
