// Package eventhandler содержит обработчики доменных событий.
// Эти обработчики реализуют event-driven архитектуру и связывают
// различные части системы через асинхронные события.
package eventhandler

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/sharpmind/trainer-hub/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// TRAINER MIRROR HANDLER
// Дублирует события сессии и перевода в канал тренера: session.completed
// уходит тренеру как trainer.completed с той же нагрузкой.
// ═══════════════════════════════════════════════════════════════════════════

// TrainerMirrorHandler публикует копии событий для тренера.
type TrainerMirrorHandler struct {
	publisher shared.EventPublisher
	logger    *slog.Logger

	// prefixes - какие события зеркалировать.
	prefixes []string
}

// NewTrainerMirrorHandler создаёт обработчик.
func NewTrainerMirrorHandler(publisher shared.EventPublisher, logger *slog.Logger) *TrainerMirrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TrainerMirrorHandler{
		publisher: publisher,
		logger:    logger.With("handler", "trainer_mirror"),
		prefixes:  []string{"session.", "promotion."},
	}
}

// Handle реализует shared.EventHandler.
func (h *TrainerMirrorHandler) Handle(event shared.Event) error {
	if shared.IsTrainerMirror(event.EventType()) || !h.mirrored(event.EventType()) {
		return nil
	}

	// События других инстансов не адресованы: их зеркалит инстанс-источник.
	addressed, ok := event.(shared.Addressed)
	if !ok {
		return nil
	}
	trainerID := addressed.TrainerRef()
	if trainerID == "" {
		return nil
	}

	mirror := shared.NewMirroredEvent(event, trainerID)
	if err := h.publisher.Publish(mirror); err != nil {
		return fmt.Errorf("publish %s: %w", mirror.EventType(), err)
	}

	h.logger.Debug("event mirrored to trainer",
		"event_type", mirror.EventType(),
		"aggregate_id", event.AggregateID(),
		"trainer_id", trainerID,
	)
	return nil
}

func (h *TrainerMirrorHandler) mirrored(t shared.EventType) bool {
	for _, p := range h.prefixes {
		if strings.HasPrefix(string(t), p) {
			return true
		}
	}
	return false
}
