// Package training содержит доменную модель тренировочной сессии.
//
// Пакет определяет:
//
//   - Сущности: Session, Exercise
//   - Value Objects: Status, ResultClass, AnswerType, Settings
//   - Проверку ответов: Validate
//   - Порты к внешним системам: ExerciseGenerator, SessionRepository,
//     UserDirectory, AdaptiveProfileStore
//
// Сессия - это конечный автомат active → paused → active → completed.
// Из completed выхода нет. Все методы Session принимают текущее время
// параметром, поэтому пакет не зависит от часов и легко тестируется.
//
// Инвариант счётчиков:
//
//	CorrectAnswers + IncorrectAnswers + SkippedQuestions == CurrentIndex
//
// Точность всегда пересчитывается из счётчиков и не хранится отдельно.
package training
