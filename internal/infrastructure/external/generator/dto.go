package generator

import (
	"fmt"
	"strings"

	"github.com/sharpmind/trainer-hub/internal/domain/training"
)

// ══════════════════════════════════════════════════════════════════════════════
// WIRE FORMAT
// ══════════════════════════════════════════════════════════════════════════════

// BatchRequestDTO is the body of POST /v1/exercises/batch.
type BatchRequestDTO struct {
	Curriculum     string            `json:"curriculum"`
	Level          string            `json:"level"`
	AgeGroup       string            `json:"age_group"`
	SessionType    string            `json:"session_type"`
	Count          int               `json:"count"`
	Adaptive       *AdaptiveDTO      `json:"adaptive,omitempty"`
	CustomSettings map[string]string `json:"custom_settings,omitempty"`
}

// AdaptiveDTO carries the student model to the generator.
type AdaptiveDTO struct {
	RecentAccuracy  float64  `json:"recent_accuracy"`
	AverageTime     float64  `json:"average_time"`
	WeakTypes       []string `json:"weak_types,omitempty"`
	SuggestedOffset int      `json:"suggested_offset"`
}

// BatchResponseDTO is the generator's answer.
type BatchResponseDTO struct {
	Exercises  []ExerciseDTO `json:"exercises"`
	Difficulty DifficultyDTO `json:"difficulty"`
}

// ExerciseDTO is one generated exercise.
type ExerciseDTO struct {
	ID            string   `json:"id"`
	Type          string   `json:"type"`
	Question      string   `json:"question"`
	Options       []string `json:"options,omitempty"`
	CorrectAnswer string   `json:"correct_answer"`
	AnswerType    string   `json:"answer_type,omitempty"`
	Hints         []string `json:"hints,omitempty"`
	Difficulty    int      `json:"difficulty"`
}

// DifficultyDTO describes the difficulty the batch was generated for.
type DifficultyDTO struct {
	Level    string  `json:"level"`
	Score    float64 `json:"score"`
	Adaptive bool    `json:"adaptive"`
}

// APIErrorDTO is the error body returned with 4xx/5xx.
type APIErrorDTO struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

// Error implements error.
func (e *APIErrorDTO) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("generator: %s (%d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("generator: status %d: %s", e.Status, e.Message)
}

// ══════════════════════════════════════════════════════════════════════════════
// MAPPING
// ══════════════════════════════════════════════════════════════════════════════

func requestToDTO(req training.GenerateRequest) BatchRequestDTO {
	dto := BatchRequestDTO{
		Curriculum:     string(req.Curriculum),
		Level:          req.Level,
		AgeGroup:       string(req.AgeGroup),
		SessionType:    string(req.SessionType),
		Count:          req.Count,
		CustomSettings: req.CustomSettings,
	}
	if a := req.Adaptive; a != nil {
		dto.Adaptive = &AdaptiveDTO{
			RecentAccuracy:  a.RecentAccuracy,
			AverageTime:     a.AverageTime,
			WeakTypes:       a.WeakTypes,
			SuggestedOffset: a.SuggestedOffset,
		}
	}
	return dto
}

// batchFromDTO validates and maps the response. Every exercise needs an id,
// a question and a reference answer.
func batchFromDTO(dto BatchResponseDTO) (*training.GeneratedBatch, error) {
	if len(dto.Exercises) == 0 {
		return nil, fmt.Errorf("generator returned an empty batch")
	}

	seen := make(map[string]struct{}, len(dto.Exercises))
	exercises := make([]*training.Exercise, 0, len(dto.Exercises))
	for i, e := range dto.Exercises {
		switch {
		case strings.TrimSpace(e.ID) == "":
			return nil, fmt.Errorf("exercise %d has no id", i)
		case strings.TrimSpace(e.Question) == "":
			return nil, fmt.Errorf("exercise %s has no question", e.ID)
		case strings.TrimSpace(e.CorrectAnswer) == "":
			return nil, fmt.Errorf("exercise %s has no correct answer", e.ID)
		}
		if _, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("duplicate exercise id %s", e.ID)
		}
		seen[e.ID] = struct{}{}

		answerType := training.AnswerType(e.AnswerType)
		if answerType == "" {
			answerType = training.AnswerExact
		}
		exercises = append(exercises, &training.Exercise{
			ID:            e.ID,
			Type:          e.Type,
			Question:      e.Question,
			Options:       e.Options,
			CorrectAnswer: e.CorrectAnswer,
			AnswerType:    answerType,
			Hints:         e.Hints,
			Difficulty:    e.Difficulty,
		})
	}

	return &training.GeneratedBatch{
		Exercises: exercises,
		Difficulty: training.Difficulty{
			Level:    dto.Difficulty.Level,
			Score:    dto.Difficulty.Score,
			Adaptive: dto.Difficulty.Adaptive,
		},
	}, nil
}
