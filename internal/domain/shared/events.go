package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types published on the notification channel.
const (
	// Session lifecycle events (student audience)
	EventSessionCreated   EventType = "session.created"
	EventAnswerSubmitted  EventType = "session.answer_submitted"
	EventExerciseSkipped  EventType = "session.exercise_skipped"
	EventHintProvided     EventType = "session.hint_provided"
	EventSessionPaused    EventType = "session.paused"
	EventSessionResumed   EventType = "session.resumed"
	EventSessionCompleted EventType = "session.completed"

	// Promotion events
	EventPromotionDecided  EventType = "promotion.decided"
	EventPromotionReviewed EventType = "promotion.reviewed"
	EventReviewsOverdue    EventType = "promotion.reviews_overdue"

	// Trainer-audience mirrors are the session type with this prefix swapped in.
	trainerPrefix = "trainer."
)

// Audience identifies who a notification is addressed to.
type Audience string

const (
	AudienceStudent Audience = "student"
	AudienceTrainer Audience = "trainer"
)

// TrainerMirror returns the trainer-audience counterpart of a session event type.
func TrainerMirror(t EventType) EventType {
	s := string(t)
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return EventType(trainerPrefix + s[i+1:])
		}
	}
	return EventType(trainerPrefix + s)
}

// IsTrainerMirror reports whether t is a trainer-audience event type.
func IsTrainerMirror(t EventType) bool {
	return len(t) > len(trainerPrefix) && string(t[:len(trainerPrefix)]) == trainerPrefix
}

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
	Version     int       `json:"version"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event stamped at the given instant.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
		Version:     1,
	}
}

// Addressed is implemented by events that target a student and optionally a trainer.
type Addressed interface {
	StudentRef() string
	TrainerRef() string
}

// Recipients is embedded by session events.
type Recipients struct {
	StudentID string `json:"student_id"`
	TrainerID string `json:"trainer_id,omitempty"`
}

func (r Recipients) StudentRef() string { return r.StudentID }
func (r Recipients) TrainerRef() string { return r.TrainerID }

func (r Recipients) fill(m map[string]interface{}) map[string]interface{} {
	m["student_id"] = r.StudentID
	if r.TrainerID != "" {
		m["trainer_id"] = r.TrainerID
	}
	return m
}

// ═══════════════════════════════════════════════════════════════════════════
// Session Events
// ═══════════════════════════════════════════════════════════════════════════

// SessionCreatedEvent is emitted when a session starts.
type SessionCreatedEvent struct {
	BaseEvent
	Recipients
	Curriculum     string  `json:"curriculum"`
	Level          string  `json:"level"`
	TotalExercises int     `json:"total_exercises"`
	DurationBudget float64 `json:"duration_budget_seconds"`
}

// Payload implements Event interface.
func (e SessionCreatedEvent) Payload() map[string]interface{} {
	return e.fill(map[string]interface{}{
		"session_id":              e.AggregateId,
		"curriculum":              e.Curriculum,
		"level":                   e.Level,
		"total_exercises":         e.TotalExercises,
		"duration_budget_seconds": e.DurationBudget,
	})
}

// AnswerSubmittedEvent is emitted after every answer.
type AnswerSubmittedEvent struct {
	BaseEvent
	Recipients
	ExerciseIndex int     `json:"exercise_index"`
	Correct       bool    `json:"correct"`
	TimeSpent     float64 `json:"time_spent"`
	Accuracy      float64 `json:"accuracy"`
	Progress      float64 `json:"progress"`
}

// Payload implements Event interface.
func (e AnswerSubmittedEvent) Payload() map[string]interface{} {
	return e.fill(map[string]interface{}{
		"session_id":     e.AggregateId,
		"exercise_index": e.ExerciseIndex,
		"correct":        e.Correct,
		"time_spent":     e.TimeSpent,
		"accuracy":       e.Accuracy,
		"progress":       e.Progress,
	})
}

// ExerciseSkippedEvent is emitted when the student skips an exercise.
type ExerciseSkippedEvent struct {
	BaseEvent
	Recipients
	ExerciseIndex int     `json:"exercise_index"`
	Reason        string  `json:"reason"`
	Progress      float64 `json:"progress"`
}

// Payload implements Event interface.
func (e ExerciseSkippedEvent) Payload() map[string]interface{} {
	return e.fill(map[string]interface{}{
		"session_id":     e.AggregateId,
		"exercise_index": e.ExerciseIndex,
		"reason":         e.Reason,
		"progress":       e.Progress,
	})
}

// HintProvidedEvent is emitted when a hint is revealed.
type HintProvidedEvent struct {
	BaseEvent
	Recipients
	ExerciseIndex int  `json:"exercise_index"`
	HintIndex     int  `json:"hint_index"`
	HasMore       bool `json:"has_more"`
}

// Payload implements Event interface.
func (e HintProvidedEvent) Payload() map[string]interface{} {
	return e.fill(map[string]interface{}{
		"session_id":     e.AggregateId,
		"exercise_index": e.ExerciseIndex,
		"hint_index":     e.HintIndex,
		"has_more":       e.HasMore,
	})
}

// SessionPausedEvent is emitted on pause.
type SessionPausedEvent struct {
	BaseEvent
	Recipients
	Reason    string  `json:"reason"`
	Remaining float64 `json:"remaining_seconds"`
}

// Payload implements Event interface.
func (e SessionPausedEvent) Payload() map[string]interface{} {
	return e.fill(map[string]interface{}{
		"session_id":        e.AggregateId,
		"reason":            e.Reason,
		"remaining_seconds": e.Remaining,
	})
}

// SessionResumedEvent is emitted on resume.
type SessionResumedEvent struct {
	BaseEvent
	Recipients
	PausedFor float64 `json:"paused_for_seconds"`
	Remaining float64 `json:"remaining_seconds"`
}

// Payload implements Event interface.
func (e SessionResumedEvent) Payload() map[string]interface{} {
	return e.fill(map[string]interface{}{
		"session_id":         e.AggregateId,
		"paused_for_seconds": e.PausedFor,
		"remaining_seconds":  e.Remaining,
	})
}

// PromotionOutcome is the promotion summary carried by SessionCompletedEvent.
type PromotionOutcome struct {
	Eligible   bool    `json:"eligible"`
	Status     string  `json:"status"`
	NextLevel  string  `json:"next_level,omitempty"`
	Confidence float64 `json:"confidence"`
	DecisionID string  `json:"decision_id,omitempty"`
}

// SessionCompletedEvent is emitted once per session on its terminal transition.
type SessionCompletedEvent struct {
	BaseEvent
	Recipients
	Reason                 string            `json:"reason"`
	Result                 string            `json:"result"`
	Accuracy               float64           `json:"accuracy"`
	CompletionRate         float64           `json:"completion_rate"`
	AverageTimePerQuestion float64           `json:"average_time_per_question"`
	OverallScore           float64           `json:"overall_score"`
	Grade                  string            `json:"grade"`
	Promotion              *PromotionOutcome `json:"promotion,omitempty"`
}

// Payload implements Event interface.
func (e SessionCompletedEvent) Payload() map[string]interface{} {
	var promotion interface{}
	if e.Promotion != nil {
		promotion = map[string]interface{}{
			"eligible":    e.Promotion.Eligible,
			"status":      e.Promotion.Status,
			"next_level":  e.Promotion.NextLevel,
			"confidence":  e.Promotion.Confidence,
			"decision_id": e.Promotion.DecisionID,
		}
	}
	return e.fill(map[string]interface{}{
		"session_id":                e.AggregateId,
		"reason":                    e.Reason,
		"result":                    e.Result,
		"accuracy":                  e.Accuracy,
		"completion_rate":           e.CompletionRate,
		"average_time_per_question": e.AverageTimePerQuestion,
		"overall_score":             e.OverallScore,
		"grade":                     e.Grade,
		"promotion":                 promotion,
	})
}

// ═══════════════════════════════════════════════════════════════════════════
// Promotion Events
// ═══════════════════════════════════════════════════════════════════════════

// PromotionDecidedEvent is emitted whenever an evaluation produces a decision.
type PromotionDecidedEvent struct {
	BaseEvent
	Recipients
	Curriculum string  `json:"curriculum"`
	FromLevel  string  `json:"from_level"`
	ToLevel    string  `json:"to_level,omitempty"`
	Eligible   bool    `json:"eligible"`
	Status     string  `json:"status"`
	Confidence float64 `json:"confidence"`
}

// Payload implements Event interface.
func (e PromotionDecidedEvent) Payload() map[string]interface{} {
	return e.fill(map[string]interface{}{
		"decision_id": e.AggregateId,
		"curriculum":  e.Curriculum,
		"from_level":  e.FromLevel,
		"to_level":    e.ToLevel,
		"eligible":    e.Eligible,
		"status":      e.Status,
		"confidence":  e.Confidence,
	})
}

// PromotionReviewedEvent is emitted when a trainer approves or rejects a pending decision.
type PromotionReviewedEvent struct {
	BaseEvent
	Recipients
	ReviewerID string `json:"reviewer_id"`
	Status     string `json:"status"`
	ToLevel    string `json:"to_level,omitempty"`
}

// Payload implements Event interface.
func (e PromotionReviewedEvent) Payload() map[string]interface{} {
	return e.fill(map[string]interface{}{
		"decision_id": e.AggregateId,
		"reviewer_id": e.ReviewerID,
		"status":      e.Status,
		"to_level":    e.ToLevel,
	})
}

// ReviewsOverdueEvent reminds a trainer about decisions pending for too long.
// The aggregate is the trainer; an empty trainer ID means unassigned decisions.
type ReviewsOverdueEvent struct {
	BaseEvent
	DecisionIDs []string  `json:"decision_ids"`
	OldestAt    time.Time `json:"oldest_at"`
}

// Payload implements Event interface.
func (e ReviewsOverdueEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"trainer_id":   e.AggregateId,
		"decision_ids": e.DecisionIDs,
		"count":        len(e.DecisionIDs),
		"oldest_at":    e.OldestAt,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Trainer Mirror
// ═══════════════════════════════════════════════════════════════════════════

// MirroredEvent re-addresses a student event to the session's trainer.
type MirroredEvent struct {
	BaseEvent
	TrainerID string
	Source    EventType
	payload   map[string]interface{}
}

// NewMirroredEvent builds the trainer-audience copy of src.
func NewMirroredEvent(src Event, trainerID string) MirroredEvent {
	payload := make(map[string]interface{}, len(src.Payload())+2)
	for k, v := range src.Payload() {
		payload[k] = v
	}
	payload["audience"] = string(AudienceTrainer)
	payload["source_event"] = string(src.EventType())

	return MirroredEvent{
		BaseEvent: NewBaseEvent(TrainerMirror(src.EventType()), src.AggregateID(), src.OccurredAt()),
		TrainerID: trainerID,
		Source:    src.EventType(),
		payload:   payload,
	}
}

// Payload implements Event interface.
func (e MirroredEvent) Payload() map[string]interface{} {
	return e.payload
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Bus Contracts
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
