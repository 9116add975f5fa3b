// Package scheduler runs the periodic maintenance jobs of the training
// service: closing abandoned sessions and reminding trainers about pending
// promotion reviews.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sharpmind/trainer-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Job defines the interface that all scheduled jobs must implement.
type Job interface {
	// Name returns the unique name of the job.
	Name() string

	// Run executes the job.
	// The context is cancelled when the scheduler is stopping.
	Run(ctx context.Context) error

	// Description returns a human-readable description of the job.
	Description() string
}

// Schedule defines when a job should run.
type Schedule interface {
	// Next returns the next time the job should run after the given time.
	Next(t time.Time) time.Time

	// String returns a human-readable representation of the schedule.
	String() string
}

// JobResult contains the result of a job execution.
type JobResult struct {
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Success     bool
	Manual      bool
	Error       error
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Scheduler manages and executes scheduled jobs.
type Scheduler struct {
	mu sync.RWMutex

	logger         *slog.Logger
	clock          timeutil.Clock
	timezone       *time.Location
	tickInterval   time.Duration
	maxHistorySize int

	jobs      map[string]*scheduledJob
	running   bool
	ctx       context.Context
	cancel    context.CancelFunc
	loopDone  chan struct{}
	jobsWG    sync.WaitGroup
	startedAt time.Time

	metrics    *SchedulerMetrics
	lastRuns   map[string]*JobResult
	runHistory []JobResult

	onJobError func(jobName string, err error)
}

// scheduledJob wraps a Job with scheduling information.
type scheduledJob struct {
	job       Job
	schedule  Schedule
	enabled   bool
	inFlight  bool
	lastRun   time.Time
	nextRun   time.Time
	runCount  int64
	failCount int64
}

// SchedulerConfig contains configuration for the Scheduler.
type SchedulerConfig struct {
	Logger *slog.Logger

	// Clock defaults to the wall clock.
	Clock timeutil.Clock

	// Timezone for schedule calculations (default: UTC).
	Timezone *time.Location

	// TickInterval is how often due jobs are checked (default: 1s).
	TickInterval time.Duration

	// MaxHistorySize is the maximum number of job results to keep in history.
	MaxHistorySize int
}

// DefaultSchedulerConfig returns sensible defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Logger:         slog.Default(),
		Clock:          timeutil.Real(),
		Timezone:       time.UTC,
		TickInterval:   time.Second,
		MaxHistorySize: 200,
	}
}

// NewScheduler creates a new Scheduler with the given configuration.
func NewScheduler(config SchedulerConfig) *Scheduler {
	defaults := DefaultSchedulerConfig()
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.Clock == nil {
		config.Clock = defaults.Clock
	}
	if config.Timezone == nil {
		config.Timezone = defaults.Timezone
	}
	if config.TickInterval <= 0 {
		config.TickInterval = defaults.TickInterval
	}
	if config.MaxHistorySize <= 0 {
		config.MaxHistorySize = defaults.MaxHistorySize
	}

	return &Scheduler{
		logger:         config.Logger.With("component", "scheduler"),
		clock:          config.Clock,
		timezone:       config.Timezone,
		tickInterval:   config.TickInterval,
		maxHistorySize: config.MaxHistorySize,
		jobs:           make(map[string]*scheduledJob),
		ctx:            context.Background(),
		metrics:        NewSchedulerMetrics(),
		lastRuns:       make(map[string]*JobResult),
	}
}

func (s *Scheduler) now() time.Time {
	return s.clock.Now().In(s.timezone)
}

// ══════════════════════════════════════════════════════════════════════════════
// JOB REGISTRATION
// ══════════════════════════════════════════════════════════════════════════════

// Register adds a job to the scheduler with the given schedule.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil {
		return ErrNilJob
	}
	if schedule == nil {
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}

	sj := &scheduledJob{
		job:      job,
		schedule: schedule,
		enabled:  true,
		nextRun:  schedule.Next(s.now()),
	}
	s.jobs[name] = sj

	s.logger.Info("job registered",
		"job", name,
		"schedule", schedule.String(),
		"next_run", sj.nextRun.Format(time.RFC3339),
	)

	return nil
}

// EnableJob enables a job by name.
func (s *Scheduler) EnableJob(jobName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sj, exists := s.jobs[jobName]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}

	sj.enabled = true
	sj.nextRun = sj.schedule.Next(s.now())
	s.logger.Info("job enabled", "job", jobName, "next_run", sj.nextRun)

	return nil
}

// DisableJob disables a job by name.
func (s *Scheduler) DisableJob(jobName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sj, exists := s.jobs[jobName]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}

	sj.enabled = false
	s.logger.Info("job disabled", "job", jobName)

	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.startedAt = s.clock.Now()
	s.loopDone = make(chan struct{})
	jobsCount := len(s.jobs)
	s.mu.Unlock()

	s.logger.Info("scheduler started", "jobs_count", jobsCount)

	go s.runLoop(s.ctx, s.loopDone)

	return nil
}

// Stop stops the loop and waits for running jobs to complete.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	s.cancel()
	loopDone := s.loopDone
	s.mu.Unlock()

	<-loopDone
	s.jobsWG.Wait()

	s.logger.Info("scheduler stopped",
		"uptime", s.clock.Now().Sub(s.startedAt).String(),
	)

	return nil
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER LOOP
// ══════════════════════════════════════════════════════════════════════════════

func (s *Scheduler) runLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkAndRunJobs()
		}
	}
}

// checkAndRunJobs starts every enabled job whose next run is due. A job that
// is still running from the previous tick is skipped.
func (s *Scheduler) checkAndRunJobs() {
	now := s.now()

	s.mu.Lock()
	due := make([]*scheduledJob, 0)
	for _, sj := range s.jobs {
		if sj.enabled && !sj.inFlight && !sj.nextRun.IsZero() && !now.Before(sj.nextRun) {
			sj.inFlight = true
			sj.lastRun = now
			sj.nextRun = sj.schedule.Next(now)
			sj.runCount++
			due = append(due, sj)
		}
	}
	ctx := s.ctx
	s.mu.Unlock()

	for _, sj := range due {
		s.jobsWG.Add(1)
		go func(sj *scheduledJob) {
			defer s.jobsWG.Done()
			result := s.execute(ctx, sj, false)

			s.mu.Lock()
			sj.inFlight = false
			if !result.Success {
				sj.failCount++
			}
			s.mu.Unlock()
		}(sj)
	}
}

// execute runs the job and records the result.
func (s *Scheduler) execute(ctx context.Context, sj *scheduledJob, manual bool) JobResult {
	jobName := sj.job.Name()
	startedAt := s.clock.Now()

	s.logger.Debug("job started", "job", jobName, "manual", manual)

	err := sj.job.Run(ctx)
	completedAt := s.clock.Now()

	result := JobResult{
		JobName:     jobName,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Duration:    completedAt.Sub(startedAt),
		Success:     err == nil,
		Manual:      manual,
		Error:       err,
	}

	s.metrics.RecordExecution(jobName, result.Duration, result.Success, completedAt)

	s.mu.Lock()
	s.lastRuns[jobName] = &result
	s.addToHistory(result)
	onJobError := s.onJobError
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("job failed",
			"job", jobName,
			"manual", manual,
			"duration", result.Duration.String(),
			"error", err,
		)
		if onJobError != nil {
			onJobError(jobName, err)
		}
	} else {
		s.logger.Info("job completed",
			"job", jobName,
			"manual", manual,
			"duration", result.Duration.String(),
		)
	}

	return result
}

// addToHistory must be called with s.mu held.
func (s *Scheduler) addToHistory(result JobResult) {
	s.runHistory = append(s.runHistory, result)
	if len(s.runHistory) > s.maxHistorySize {
		s.runHistory = s.runHistory[len(s.runHistory)-s.maxHistorySize:]
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MANUAL EXECUTION
// ══════════════════════════════════════════════════════════════════════════════

// RunNow immediately executes a job by name, ignoring its schedule.
func (s *Scheduler) RunNow(ctx context.Context, jobName string) (*JobResult, error) {
	s.mu.RLock()
	sj, exists := s.jobs[jobName]
	s.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}

	result := s.execute(ctx, sj, true)
	return &result, result.Error
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS & INFO
// ══════════════════════════════════════════════════════════════════════════════

// JobInfo contains information about a registered job.
type JobInfo struct {
	Name        string
	Description string
	Enabled     bool
	Schedule    string
	LastRun     time.Time
	NextRun     time.Time
	RunCount    int64
	FailCount   int64
	LastResult  *JobResult
}

// ListJobs returns information about all registered jobs, sorted by name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, sj := range s.jobs {
		infos = append(infos, s.infoLocked(name, sj))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	return infos
}

// GetJobInfo returns information about a specific job.
func (s *Scheduler) GetJobInfo(jobName string) (*JobInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sj, exists := s.jobs[jobName]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}

	info := s.infoLocked(jobName, sj)
	return &info, nil
}

func (s *Scheduler) infoLocked(name string, sj *scheduledJob) JobInfo {
	return JobInfo{
		Name:        name,
		Description: sj.job.Description(),
		Enabled:     sj.enabled,
		Schedule:    sj.schedule.String(),
		LastRun:     sj.lastRun,
		NextRun:     sj.nextRun,
		RunCount:    sj.runCount,
		FailCount:   sj.failCount,
		LastResult:  s.lastRuns[name],
	}
}

// GetHistory returns the most recent job results, oldest first.
func (s *Scheduler) GetHistory(limit int) []JobResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.runHistory) {
		limit = len(s.runHistory)
	}

	start := len(s.runHistory) - limit
	result := make([]JobResult, limit)
	copy(result, s.runHistory[start:])

	return result
}

// GetMetrics returns scheduler metrics.
func (s *Scheduler) GetMetrics() *SchedulerMetrics {
	return s.metrics
}

// OnJobError sets a callback to be called when a job fails.
func (s *Scheduler) OnJobError(fn func(jobName string, err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onJobError = fn
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// SchedulerMetrics tracks scheduler performance metrics.
type SchedulerMetrics struct {
	mu sync.RWMutex

	totalExecutions int64
	totalSuccesses  int64
	totalFailures   int64
	totalDuration   time.Duration

	executionsByJob map[string]int64
	failuresByJob   map[string]int64
	lastExecutions  map[string]time.Time
}

// NewSchedulerMetrics creates a new metrics tracker.
func NewSchedulerMetrics() *SchedulerMetrics {
	return &SchedulerMetrics{
		executionsByJob: make(map[string]int64),
		failuresByJob:   make(map[string]int64),
		lastExecutions:  make(map[string]time.Time),
	}
}

// RecordExecution records a job execution.
func (m *SchedulerMetrics) RecordExecution(jobName string, duration time.Duration, success bool, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalExecutions++
	m.totalDuration += duration
	m.executionsByJob[jobName]++
	m.lastExecutions[jobName] = at

	if success {
		m.totalSuccesses++
	} else {
		m.totalFailures++
		m.failuresByJob[jobName]++
	}
}

// Snapshot returns a point-in-time snapshot of metrics.
func (m *SchedulerMetrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := MetricsSnapshot{
		TotalExecutions: m.totalExecutions,
		TotalSuccesses:  m.totalSuccesses,
		TotalFailures:   m.totalFailures,
		FailuresByJob:   make(map[string]int64, len(m.failuresByJob)),
	}
	if m.totalExecutions > 0 {
		snap.AverageDuration = m.totalDuration / time.Duration(m.totalExecutions)
		snap.SuccessRate = float64(m.totalSuccesses) / float64(m.totalExecutions)
	}
	for name, n := range m.failuresByJob {
		snap.FailuresByJob[name] = n
	}

	return snap
}

// MetricsSnapshot is a point-in-time snapshot of scheduler metrics.
type MetricsSnapshot struct {
	TotalExecutions int64            `json:"total_executions"`
	TotalSuccesses  int64            `json:"total_successes"`
	TotalFailures   int64            `json:"total_failures"`
	SuccessRate     float64          `json:"success_rate"`
	AverageDuration time.Duration    `json:"average_duration_ns"`
	FailuresByJob   map[string]int64 `json:"failures_by_job,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrNilJob is returned when trying to register a nil job.
	ErrNilJob = fmt.Errorf("job cannot be nil")

	// ErrNilSchedule is returned when trying to register a job with nil schedule.
	ErrNilSchedule = fmt.Errorf("schedule cannot be nil")

	// ErrJobAlreadyExists is returned when a job with the same name already exists.
	ErrJobAlreadyExists = fmt.Errorf("job already exists")

	// ErrJobNotFound is returned when a job is not found.
	ErrJobNotFound = fmt.Errorf("job not found")

	// ErrSchedulerAlreadyRunning is returned when Start is called on a running scheduler.
	ErrSchedulerAlreadyRunning = fmt.Errorf("scheduler is already running")

	// ErrSchedulerNotRunning is returned when Stop is called on a stopped scheduler.
	ErrSchedulerNotRunning = fmt.Errorf("scheduler is not running")
)
