package training

import (
	"math"
	"strconv"
	"strings"
)

// NumericTolerance - допуск сравнения числовых ответов (строго меньше).
const NumericTolerance = 1e-3

// Validate проверяет ответ студента по типу ответа упражнения.
// Функция без побочных эффектов. Для numeric любая ошибка разбора даёт false.
func Validate(ex *Exercise, answer string) bool {
	if ex == nil {
		return false
	}

	switch ex.AnswerType {
	case AnswerMultipleChoice:
		return answer == ex.CorrectAnswer

	case AnswerNumeric:
		expected, err := strconv.ParseFloat(strings.TrimSpace(ex.CorrectAnswer), 64)
		if err != nil {
			return false
		}
		got, err := strconv.ParseFloat(strings.TrimSpace(answer), 64)
		if err != nil {
			return false
		}
		if math.IsNaN(expected) || math.IsNaN(got) {
			return false
		}
		return math.Abs(got-expected) < NumericTolerance

	case AnswerText:
		return strings.EqualFold(strings.TrimSpace(answer), strings.TrimSpace(ex.CorrectAnswer))

	default:
		return answer == ex.CorrectAnswer
	}
}
