// Package satisfaction implements the Satisfaction Tracker (§4.F): a thin
// persistence wrapper around Interaction/Feedback rows with aggregate
// statistics computed lazily at read time rather than maintained
// incrementally — the spec is explicit that no learning happens in the
// core.
package satisfaction

import (
	"context"

	"aria/internal/coreerr"
	"aria/internal/storage"
)

// Tracker records interactions/feedback and computes read-time aggregates.
type Tracker struct {
	store storage.SatisfactionStore
}

func New(store storage.SatisfactionStore) *Tracker {
	return &Tracker{store: store}
}

// RecordInteraction writes exactly one Interaction per completed turn
// (§4.F). Implicit signals (response_time_ms, follow_up_in_60s,
// engagement_duration_ms) are carried on the Interaction itself, set by
// the Orchestrator.
func (t *Tracker) RecordInteraction(ctx context.Context, i storage.Interaction) error {
	if err := t.store.RecordInteraction(ctx, i); err != nil {
		return coreerr.Wrap(coreerr.Internal, err)
	}
	return nil
}

// RecordFeedback writes a Feedback row against an existing interaction.
func (t *Tracker) RecordFeedback(ctx context.Context, interactionID string, kind storage.FeedbackKind, value float64, text string, f storage.Feedback) error {
	f.InteractionID = interactionID
	f.Kind = kind
	f.Value = value
	f.Text = text
	if err := t.store.RecordFeedback(ctx, f); err != nil {
		return coreerr.Wrap(coreerr.Internal, err)
	}
	return nil
}

// Stats is the lazily computed aggregate over a user's recent interactions.
type Stats struct {
	Count                int
	AvgSatisfaction      float64
	Trend                float64 // positive = improving, negative = declining
	TaskCompletionRate   float64
	AvgResponseTimeMs    float64
	FollowUpWithin60sPct float64
}

// Stats computes aggregates over the user's most recent `limit`
// interactions, combining any rating/thumbs feedback attached to each
// with the implicit signals carried on the Interaction row itself.
func (t *Tracker) Stats(ctx context.Context, userID string, limit int) (Stats, error) {
	interactions, err := t.store.Interactions(ctx, userID, limit)
	if err != nil {
		return Stats{}, coreerr.Wrap(coreerr.Internal, err)
	}
	if len(interactions) == 0 {
		return Stats{}, nil
	}

	var (
		totalScore  float64
		scoredCount int
		completedN  int
		respTimeSum float64
		followUpN   int
		firstHalf   []float64
		secondHalf  []float64
	)

	for idx, i := range interactions {
		if i.TaskCompleted {
			completedN++
		}
		if i.FollowUpIn60s {
			followUpN++
		}
		respTimeSum += float64(i.ResponseTimeMs)

		feedback, ferr := t.store.FeedbackForInteraction(ctx, i.ID)
		if ferr != nil {
			continue
		}
		score, ok := scoreFeedback(feedback)
		if !ok {
			continue
		}
		totalScore += score
		scoredCount++

		// interactions come back newest-first; the first half of the slice
		// is the more recent half, used for a simple recency trend.
		if idx < len(interactions)/2 {
			firstHalf = append(firstHalf, score)
		} else {
			secondHalf = append(secondHalf, score)
		}
	}

	stats := Stats{
		Count:                len(interactions),
		TaskCompletionRate:   float64(completedN) / float64(len(interactions)),
		AvgResponseTimeMs:    respTimeSum / float64(len(interactions)),
		FollowUpWithin60sPct: float64(followUpN) / float64(len(interactions)),
	}
	if scoredCount > 0 {
		stats.AvgSatisfaction = totalScore / float64(scoredCount)
	}
	stats.Trend = average(firstHalf) - average(secondHalf)
	return stats, nil
}

// scoreFeedback reduces a list of Feedback rows to a single score (the
// mean of the values as stored, not rescaled), preferring an explicit
// rating, then thumbs (recorded as 1.0/0.0), then
// any implicit signal; text feedback alone contributes no numeric score.
func scoreFeedback(feedback []storage.Feedback) (float64, bool) {
	var ratingSum, ratingN float64
	var thumbsSum, thumbsN float64
	var implicitSum, implicitN float64

	for _, f := range feedback {
		switch f.Kind {
		case storage.FeedbackRating:
			ratingSum += f.Value
			ratingN++
		case storage.FeedbackThumbs:
			thumbsSum += f.Value
			thumbsN++
		case storage.FeedbackImplicit:
			implicitSum += f.Value
			implicitN++
		}
	}
	if ratingN > 0 {
		return ratingSum / ratingN, true
	}
	if thumbsN > 0 {
		return thumbsSum / thumbsN, true
	}
	if implicitN > 0 {
		return implicitSum / implicitN, true
	}
	return 0, false
}

func average(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
