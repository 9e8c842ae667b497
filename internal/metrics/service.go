// Package metrics tracks per-agent and per-model performance. Every
// single-shot agent run is recorded as an AgentExecution row, and
// aggregate counters per agent type are maintained incrementally so the
// dashboard never scans the run history for its headline numbers.
package metrics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/agentdesk/agentdesk/internal/store"
	"github.com/agentdesk/agentdesk/pkg/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const defaultWindowDays = 30

// Service records agent runs and serves aggregate statistics.
type Service struct {
	store store.Store
}

func NewService(s store.Store) *Service {
	return &Service{store: s}
}

// RecordExecution persists a single agent run and folds it into the
// per-agent aggregates. The run's ID and CreatedAt are assigned here.
func (s *Service) RecordExecution(ctx context.Context, run *models.AgentExecution) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	if err := s.store.CreateAgentExecution(ctx, run); err != nil {
		return fmt.Errorf("record agent execution: %w", err)
	}

	if err := s.updateAggregates(ctx, run); err != nil {
		// The run itself is saved; a stale aggregate is tolerable.
		log.Warn().Err(err).Str("agent_type", run.AgentType).Msg("Failed to update agent metrics")
	}
	return nil
}

func (s *Service) updateAggregates(ctx context.Context, run *models.AgentExecution) error {
	m, err := s.store.GetAgentMetrics(ctx, run.AgentType)
	if err != nil {
		if _, ok := err.(*store.ErrNotFound); !ok {
			return err
		}
		m = &models.AgentMetrics{AgentType: run.AgentType}
	}

	m.TotalExecutions++
	if run.Success {
		m.SuccessfulRuns++
	} else {
		m.FailedRuns++
	}

	// Running average over all executions
	totalTime := m.AvgResponseTimeMs * float64(m.TotalExecutions-1)
	m.AvgResponseTimeMs = (totalTime + float64(run.ResponseTimeMs)) / float64(m.TotalExecutions)

	m.TotalTokensUsed += run.TokensUsed
	m.LastUpdated = time.Now().UTC()

	return s.store.UpsertAgentMetrics(ctx, m)
}

// RateExecution attaches a 1-5 rating (and optional feedback) to a run
// and folds it into the agent's average rating. Users can only rate
// their own runs.
func (s *Service) RateExecution(ctx context.Context, executionID, userID string, rating int, feedback string) (*models.AgentExecution, error) {
	if rating < 1 || rating > 5 {
		return nil, fmt.Errorf("rating must be between 1 and 5, got %d", rating)
	}

	run, err := s.store.GetAgentExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if run.UserID != userID {
		return nil, &store.ErrNotFound{Entity: "agent execution", Key: executionID}
	}

	run.UserRating = rating
	run.UserFeedback = feedback
	if err := s.store.UpdateAgentExecution(ctx, run); err != nil {
		return nil, fmt.Errorf("save rating: %w", err)
	}

	m, err := s.store.GetAgentMetrics(ctx, run.AgentType)
	if err != nil {
		if _, ok := err.(*store.ErrNotFound); !ok {
			return nil, err
		}
		m = &models.AgentMetrics{AgentType: run.AgentType}
	}
	totalRating := m.AvgRating * float64(m.TotalRatings)
	m.TotalRatings++
	m.AvgRating = (totalRating + float64(rating)) / float64(m.TotalRatings)
	m.LastUpdated = time.Now().UTC()
	if err := s.store.UpsertAgentMetrics(ctx, m); err != nil {
		return nil, fmt.Errorf("update rating aggregate: %w", err)
	}

	return run, nil
}

// AgentMetrics returns the aggregate for one agent type. Unknown agent
// types return an empty aggregate rather than an error so the dashboard
// can render zeros.
func (s *Service) AgentMetrics(ctx context.Context, agentType string) (*models.AgentMetrics, error) {
	m, err := s.store.GetAgentMetrics(ctx, agentType)
	if err != nil {
		if _, ok := err.(*store.ErrNotFound); ok {
			return &models.AgentMetrics{AgentType: agentType}, nil
		}
		return nil, err
	}
	return m, nil
}

// ListAgentMetrics returns the aggregates for every agent type that has run.
func (s *Service) ListAgentMetrics(ctx context.Context) ([]models.AgentMetrics, error) {
	return s.store.ListAgentMetrics(ctx)
}

// UserStats summarises a user's runs over a trailing window.
func (s *Service) UserStats(ctx context.Context, userID string, days int) (*models.UserStats, error) {
	if days <= 0 {
		days = defaultWindowDays
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	runs, err := s.store.ListAgentExecutions(ctx, store.AgentRunFilter{
		UserID: userID,
		Since:  &since,
	})
	if err != nil {
		return nil, err
	}

	stats := &models.UserStats{
		UserID:      userID,
		PeriodDays:  days,
		ByAgentType: make(map[string]int64),
	}
	if len(runs) == 0 {
		return stats, nil
	}

	var totalTime int64
	for _, r := range runs {
		stats.TotalExecutions++
		if r.Success {
			stats.SuccessfulRuns++
		} else {
			stats.FailedRuns++
		}
		stats.TotalTokensUsed += r.TokensUsed
		totalTime += r.ResponseTimeMs
		stats.ByAgentType[r.AgentType]++
	}
	stats.SuccessRate = float64(stats.SuccessfulRuns) / float64(stats.TotalExecutions) * 100
	stats.AvgResponseMs = float64(totalTime) / float64(stats.TotalExecutions)

	return stats, nil
}

// RecentExecutions returns the user's newest runs.
func (s *Service) RecentExecutions(ctx context.Context, userID string, limit int) ([]models.AgentExecution, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.store.ListAgentExecutions(ctx, store.AgentRunFilter{
		UserID: userID,
		Limit:  limit,
	})
}

// CompareModels ranks every model the user has run over the window.
// The winner is the highest weighted score: 60% success rate plus 40%
// speed, with speed normalized against the slowest model.
func (s *Service) CompareModels(ctx context.Context, userID, agentType string, days int) (*models.ModelComparison, error) {
	if days <= 0 {
		days = defaultWindowDays
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	runs, err := s.store.ListAgentExecutions(ctx, store.AgentRunFilter{
		UserID:    userID,
		AgentType: agentType,
		Since:     &since,
	})
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return &models.ModelComparison{
			Models: []models.ModelStats{},
			Winner: "N/A",
			Reason: "No execution data available for comparison",
		}, nil
	}

	type acc struct {
		total   int64
		success int64
		timeMs  int64
		tokens  int64
	}
	byModel := make(map[string]*acc)
	for _, r := range runs {
		a := byModel[r.ModelName]
		if a == nil {
			a = &acc{}
			byModel[r.ModelName] = a
		}
		a.total++
		if r.Success {
			a.success++
		}
		a.timeMs += r.ResponseTimeMs
		a.tokens += r.TokensUsed
	}

	stats := make([]models.ModelStats, 0, len(byModel))
	maxTime := 0.0
	for name, a := range byModel {
		avgTime := float64(a.timeMs) / float64(a.total)
		if avgTime > maxTime {
			maxTime = avgTime
		}
		stats = append(stats, models.ModelStats{
			ModelName:       name,
			TotalExecutions: a.total,
			SuccessfulRuns:  a.success,
			SuccessRate:     float64(a.success) / float64(a.total) * 100,
			AvgResponseMs:   avgTime,
			AvgTokens:       float64(a.tokens) / float64(a.total),
		})
	}

	var winner *models.ModelStats
	for i := range stats {
		speedScore := 0.0
		if maxTime > 0 {
			speedScore = (maxTime - stats[i].AvgResponseMs) / maxTime
		}
		stats[i].Score = stats[i].SuccessRate/100*0.6 + speedScore*0.4
		if winner == nil || stats[i].Score > winner.Score {
			winner = &stats[i]
		}
	}

	reason := fmt.Sprintf("Best balance of reliability (%.1f%% success) and speed (%.0fms avg)",
		winner.SuccessRate, winner.AvgResponseMs)
	winnerName := winner.ModelName

	sort.Slice(stats, func(i, j int) bool { return stats[i].SuccessRate > stats[j].SuccessRate })

	return &models.ModelComparison{
		Models: stats,
		Winner: winnerName,
		Reason: reason,
	}, nil
}
