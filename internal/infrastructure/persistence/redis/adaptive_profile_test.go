package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharpmind/trainer-hub/internal/domain/shared"
)

func TestBuildHint_NoAnswers(t *testing.T) {
	assert.Nil(t, BuildHint(map[string]string{}, nil))
	assert.Nil(t, BuildHint(map[string]string{fieldSkipped: "3"}, []string{"s", "s", "s"}))
}

func TestBuildHint_CountersAndWeakTypes(t *testing.T) {
	fields := map[string]string{
		fieldAnswered:                         "20",
		fieldCorrect:                          "15",
		fieldTimeTotal:                        "90",
		typeField("addition", fieldAnswered):  "10",
		typeField("addition", fieldCorrect):   "10",
		typeField("division", fieldAnswered):  "6",
		typeField("division", fieldCorrect):   "2",
		typeField("fractions", fieldAnswered): "4",
	}
	recent := []string{"1", "1", "0", "s"}

	hint := BuildHint(fields, recent)
	require.NotNil(t, hint)
	assert.Equal(t, 50.0, hint.RecentAccuracy)
	assert.Equal(t, 4.5, hint.AverageTime)
	assert.Equal(t, []string{"division"}, hint.WeakTypes, "fractions has too few attempts to judge")
	assert.Equal(t, 0, hint.SuggestedOffset, "short recent window never shifts difficulty")
}

func TestBuildHint_SuggestedOffset(t *testing.T) {
	fields := map[string]string{fieldAnswered: "10", fieldCorrect: "10", fieldTimeTotal: "30"}

	strong := make([]string, RecentWindow)
	weak := make([]string, RecentWindow)
	for i := range strong {
		strong[i] = "1"
		weak[i] = "0"
	}
	weak[0] = "1"

	assert.Equal(t, 1, BuildHint(fields, strong).SuggestedOffset)
	assert.Equal(t, -1, BuildHint(fields, weak).SuggestedOffset)
	assert.Equal(t, 100.0, BuildHint(fields, nil).RecentAccuracy, "falls back to lifetime accuracy")
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "session:s-1", SessionKey("s-1"))
	assert.Equal(t, "adaptive:st-1:"+string(shared.CurriculumAbacus), AdaptiveKey("st-1", shared.CurriculumAbacus))
	assert.Equal(t, AdaptiveKey("st-1", shared.CurriculumAbacus)+":recent", AdaptiveRecentKey("st-1", shared.CurriculumAbacus))
	assert.Equal(t, "pubsub:events", PubSubChannel("events"))
}
