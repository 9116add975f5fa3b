package http

import (
	"context"

	"github.com/sharpmind/trainer-hub/internal/application/command"
	"github.com/sharpmind/trainer-hub/internal/application/lifecycle"
	"github.com/sharpmind/trainer-hub/internal/application/query"
	"github.com/sharpmind/trainer-hub/internal/domain/promotion"
	"github.com/sharpmind/trainer-hub/internal/infrastructure/messaging"
	"github.com/sharpmind/trainer-hub/internal/infrastructure/scheduler"
)

// SessionService is implemented by *lifecycle.Manager.
type SessionService interface {
	Create(ctx context.Context, req lifecycle.CreateRequest) (*lifecycle.CreateResult, error)
	GetCurrentExercise(id string) (*lifecycle.CurrentExercise, error)
	SubmitAnswer(ctx context.Context, id, answer string, timeSpent float64) (*lifecycle.AnswerResult, error)
	Skip(ctx context.Context, id, reason string) (*lifecycle.SkipResult, error)
	RequestHint(ctx context.Context, id string, hintIndex int) (*lifecycle.HintResult, error)
	Pause(ctx context.Context, id, reason string) (*lifecycle.StatusView, error)
	Resume(ctx context.Context, id string) (*lifecycle.StatusView, error)
	Complete(ctx context.Context, id, reason string) (*lifecycle.CompletionResult, error)
	GetStatus(id string) (*lifecycle.StatusView, error)
	ListActive() []lifecycle.StatusView
}

// ReviewService is implemented by *command.ReviewPromotionHandler.
type ReviewService interface {
	Handle(ctx context.Context, cmd command.ReviewPromotionCommand) (*command.ReviewPromotionResult, error)
}

// AnnotateService is implemented by *command.AnnotateSessionHandler.
type AnnotateService interface {
	Handle(ctx context.Context, cmd command.AnnotateSessionCommand) (*command.AnnotateSessionResult, error)
}

// AnalysisService is implemented by *query.GetSessionAnalysisHandler.
type AnalysisService interface {
	Handle(ctx context.Context, q query.GetSessionAnalysisQuery) (*query.SessionAnalysisDTO, error)
}

// DecisionQueries is implemented by *query.PromotionDecisionsHandler.
type DecisionQueries interface {
	Pending(ctx context.Context, q query.ListPendingDecisionsQuery) (*query.DecisionsDTO, error)
	History(ctx context.Context, q query.GetPromotionHistoryQuery) (*query.DecisionsDTO, error)
	Get(ctx context.Context, id string) (*promotion.Decision, error)
}

// CriteriaQuery is implemented by *query.GetCriteriaHandler.
type CriteriaQuery interface {
	Handle(curriculum, level string) (*query.CriteriaDTO, error)
}

// CriteriaAdmin is implemented by *command.ReplaceCriteriaHandler.
type CriteriaAdmin interface {
	Handle(ctx context.Context, cmd command.ReplaceCriteriaCommand) (*command.ReplaceCriteriaResult, error)
}

// JobRunner is implemented by *scheduler.Scheduler.
type JobRunner interface {
	ListJobs() []scheduler.JobInfo
	RunNow(ctx context.Context, jobName string) (*scheduler.JobResult, error)
}

// DeadLetters is implemented by *messaging.Dispatcher.
type DeadLetters interface {
	DeadLetters() []messaging.DeadLetterEntry
	RetryDeadLetters(ctx context.Context) (succeeded, failed int)
}
