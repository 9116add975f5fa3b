package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FeatureFlags manages optional training behaviors.
// Supports gradual rollout by student and per-student overrides.
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature

	// Override rules (for testing/debugging)
	studentOverrides map[string]map[string]bool // studentID -> feature -> enabled

	now func() time.Time
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100)
	// Students are assigned based on hash of their ID
	RolloutPercent int

	// Time-based activation
	EnabledFrom  *time.Time
	EnabledUntil *time.Time
}

// Feature flag names. The values match the gates checked by the
// session lifecycle manager.
const (
	FeatureAdaptiveFeed       = "training.adaptive_feed"       // Record answers into the adaptive profile
	FeatureAdaptiveGeneration = "training.adaptive_generation" // Send the adaptive hint to the generator
	FeatureAutoApproval       = "promotion.auto_approval"      // Apply eligible promotions without trainer review
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := NewFeatureFlags()
	ff.loadFromEnvironment()
	return ff
}

// NewFeatureFlags returns flags with built-in defaults only.
func NewFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:         make(map[string]*Feature),
		studentOverrides: make(map[string]map[string]bool),
		now:              time.Now,
	}
	ff.initializeDefaults()
	return ff
}

// initializeDefaults sets up all features with default values.
func (ff *FeatureFlags) initializeDefaults() {
	ff.features[FeatureAdaptiveFeed] = &Feature{
		Name:           FeatureAdaptiveFeed,
		Description:    "Feed answers into the adaptive profile",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureAdaptiveGeneration] = &Feature{
		Name:           FeatureAdaptiveGeneration,
		Description:    "Adapt generated difficulty to recent performance",
		Enabled:        true,
		RolloutPercent: 100,
	}

	// Trainers review every promotion unless this is switched on.
	ff.features[FeatureAutoApproval] = &Feature{
		Name:           FeatureAutoApproval,
		Description:    "Promote eligible students without trainer review",
		Enabled:        false,
		RolloutPercent: 0,
	}
}

// loadFromEnvironment loads feature flag overrides from env vars.
// Format: FEATURE_<NAME>=true|false|<percent>
// Example: FEATURE_PROMOTION_AUTO_APPROVAL=true
// Example: FEATURE_TRAINING_ADAPTIVE_GENERATION=50 (50% rollout)
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		val := os.Getenv(featureNameToEnvKey(name))
		if val == "" {
			continue
		}

		if b, err := strconv.ParseBool(val); err == nil {
			feature.Enabled = b
			if b {
				feature.RolloutPercent = 100
			} else {
				feature.RolloutPercent = 0
			}
			continue
		}

		if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
			feature.Enabled = p > 0
			feature.RolloutPercent = p
		}
	}
}

// featureNameToEnvKey converts feature name to environment variable key.
// "promotion.auto_approval" -> "FEATURE_PROMOTION_AUTO_APPROVAL"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// Enabled reports whether a feature is on for the student.
// Unknown features are off.
func (ff *FeatureFlags) Enabled(featureName, studentID string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	if overrides, ok := ff.studentOverrides[studentID]; ok {
		if enabled, ok := overrides[featureName]; ok {
			return enabled
		}
	}

	feature, ok := ff.features[featureName]
	if !ok || !feature.Enabled {
		return false
	}

	now := ff.now()
	if feature.EnabledFrom != nil && now.Before(*feature.EnabledFrom) {
		return false
	}
	if feature.EnabledUntil != nil && now.After(*feature.EnabledUntil) {
		return false
	}

	if feature.RolloutPercent >= 100 {
		return true
	}
	if studentID == "" {
		return false
	}
	return isInRollout(studentID, featureName, feature.RolloutPercent)
}

// isInRollout uses consistent hashing so students stay in their bucket.
func isInRollout(studentID, featureName string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(studentID))
	return int(h.Sum32()%100) < percent
}

// SetStudentOverride sets a feature override for a specific student.
func (ff *FeatureFlags) SetStudentOverride(studentID, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.studentOverrides[studentID]; !ok {
		ff.studentOverrides[studentID] = make(map[string]bool)
	}
	ff.studentOverrides[studentID][featureName] = enabled
}

// ClearStudentOverrides removes all overrides for a student.
func (ff *FeatureFlags) ClearStudentOverrides(studentID string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.studentOverrides, studentID)
}

// SetRolloutPercent updates the rollout percentage for a feature.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}

	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	feature.RolloutPercent = percent
	feature.Enabled = percent > 0

	return nil
}

// EnableFeature enables a feature at 100% rollout.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature disables a feature completely.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures returns a copy of all feature configurations.
func (ff *FeatureFlags) GetAllFeatures() map[string]Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make(map[string]Feature, len(ff.features))
	for k, v := range ff.features {
		result[k] = *v
	}
	return result
}

// --- Errors ---

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
