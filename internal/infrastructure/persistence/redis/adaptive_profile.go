package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/sharpmind/trainer-hub/internal/domain/shared"
	"github.com/sharpmind/trainer-hub/internal/domain/training"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADAPTIVE PROFILE STORE
// One hash per student and curriculum with running counters, plus a capped
// list of the latest outcomes ("1" correct, "0" incorrect, "s" skipped).
// ══════════════════════════════════════════════════════════════════════════════

const (
	fieldAnswered  = "answered"
	fieldCorrect   = "correct"
	fieldSkipped   = "skipped"
	fieldTimeTotal = "time_total"

	// RecentWindow is how many latest outcomes drive the suggested offset.
	RecentWindow = 20

	// weakTypeMinAnswered avoids flagging a type on a handful of attempts.
	weakTypeMinAnswered = 5
	weakTypeAccuracy    = 70.0
)

// AdaptiveProfileStore implements training.AdaptiveProfileStore on Redis.
type AdaptiveProfileStore struct {
	client redis.UniversalClient
}

// NewAdaptiveProfileStore creates the store.
func NewAdaptiveProfileStore(cache *Cache) *AdaptiveProfileStore {
	return &AdaptiveProfileStore{client: cache.Client()}
}

// RecordOutcome folds one exercise outcome into the profile.
func (s *AdaptiveProfileStore) RecordOutcome(ctx context.Context, o training.ExerciseOutcome) error {
	key := AdaptiveKey(o.StudentID, o.Curriculum)
	recentKey := AdaptiveRecentKey(o.StudentID, o.Curriculum)

	mark := "0"
	switch {
	case o.Skipped:
		mark = "s"
	case o.Correct:
		mark = "1"
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if o.Skipped {
			pipe.HIncrBy(ctx, key, fieldSkipped, 1)
		} else {
			pipe.HIncrBy(ctx, key, fieldAnswered, 1)
			pipe.HIncrByFloat(ctx, key, fieldTimeTotal, o.TimeSpent)
			if o.ExerciseType != "" {
				pipe.HIncrBy(ctx, key, typeField(o.ExerciseType, fieldAnswered), 1)
			}
			if o.Correct {
				pipe.HIncrBy(ctx, key, fieldCorrect, 1)
				if o.ExerciseType != "" {
					pipe.HIncrBy(ctx, key, typeField(o.ExerciseType, fieldCorrect), 1)
				}
			}
		}
		pipe.LPush(ctx, recentKey, mark)
		pipe.LTrim(ctx, recentKey, 0, RecentWindow-1)
		pipe.Expire(ctx, key, TTLAdaptiveProfile)
		pipe.Expire(ctx, recentKey, TTLAdaptiveProfile)
		return nil
	})
	if err != nil {
		return fmt.Errorf("record adaptive outcome: %w", err)
	}
	return nil
}

// Hint builds the generator hint. Returns nil when the student has no answers yet.
func (s *AdaptiveProfileStore) Hint(ctx context.Context, studentID string, c shared.Curriculum) (*training.AdaptiveHint, error) {
	fields, err := s.client.HGetAll(ctx, AdaptiveKey(studentID, c)).Result()
	if err != nil {
		return nil, fmt.Errorf("read adaptive profile: %w", err)
	}
	recent, err := s.client.LRange(ctx, AdaptiveRecentKey(studentID, c), 0, RecentWindow-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read recent outcomes: %w", err)
	}
	return BuildHint(fields, recent), nil
}

// BuildHint turns raw profile counters into an AdaptiveHint.
func BuildHint(fields map[string]string, recent []string) *training.AdaptiveHint {
	answered := atoi(fields[fieldAnswered])
	if answered == 0 {
		return nil
	}

	hint := &training.AdaptiveHint{
		RecentAccuracy: shared.Round2(recentAccuracy(recent, fields)),
		AverageTime:    shared.Round2(atof(fields[fieldTimeTotal]) / float64(answered)),
		WeakTypes:      weakTypes(fields),
	}

	switch {
	case len(recent) >= RecentWindow/2 && hint.RecentAccuracy >= 90:
		hint.SuggestedOffset = 1
	case len(recent) >= RecentWindow/2 && hint.RecentAccuracy < 60:
		hint.SuggestedOffset = -1
	}
	return hint
}

// recentAccuracy counts skips as misses; without recent marks it falls back
// to the lifetime ratio.
func recentAccuracy(recent []string, fields map[string]string) float64 {
	if len(recent) == 0 {
		return shared.Percent(atoi(fields[fieldCorrect]), atoi(fields[fieldAnswered]))
	}
	correct := 0
	for _, m := range recent {
		if m == "1" {
			correct++
		}
	}
	return shared.Percent(correct, len(recent))
}

func weakTypes(fields map[string]string) []string {
	var weak []string
	for f, v := range fields {
		if !strings.HasPrefix(f, "type:") || !strings.HasSuffix(f, ":"+fieldAnswered) {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(f, "type:"), ":"+fieldAnswered)
		answered := atoi(v)
		if answered < weakTypeMinAnswered {
			continue
		}
		if shared.Percent(atoi(fields[typeField(name, fieldCorrect)]), answered) < weakTypeAccuracy {
			weak = append(weak, name)
		}
	}
	sort.Strings(weak)
	return weak
}

func typeField(exerciseType, field string) string {
	return "type:" + exerciseType + ":" + field
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func atof(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
