package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"starmatch_server/models"
)

const day = 24 * time.Hour

// RankingService aggregates likeability flags into batch rankings.
type RankingService struct {
	Store    FlagStore
	Settings SettingsProvider
	Log      zerolog.Logger
	Now      func() time.Time
}

func (s *RankingService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// RankByLikeability sums the positive ratings each user received within the
// settings lookback. Users whose own last rating is older than
// maxDaysActiveAgo days are left out; maxDaysActiveAgo <= 0 disables the
// gate. An empty userIDs ranks everyone. limit <= 0 returns all rows after
// skip.
func (s *RankingService) RankByLikeability(ctx context.Context, userIDs []string, maxDaysActiveAgo, skip, limit int) ([]models.RankEntry, error) {
	settings, err := s.Settings.Settings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	now := s.now()
	filter := idSet(userIDs)

	received, err := s.Store.ListFlags(ctx, FlagQuery{
		Category:      models.CategoryLikeability,
		ModifiedSince: now.Add(-time.Duration(settings.LikeabilityLookbackDays) * day),
		MinValue:      int64Ptr(models.SwipeLike),
	})
	if err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}

	var recent map[string]bool
	if maxDaysActiveAgo > 0 {
		sent, err := s.Store.ListFlags(ctx, FlagQuery{
			Category:      models.CategoryLikeability,
			ModifiedSince: now.Add(-time.Duration(maxDaysActiveAgo) * day),
		})
		if err != nil {
			return nil, fmt.Errorf("list recent activity: %w", err)
		}
		recent = make(map[string]bool)
		for _, f := range sent {
			recent[f.SourceUser] = true
		}
	}

	scores := make(map[string]int64)
	for _, f := range received {
		if filter != nil && !filter[f.TargetUser] {
			continue
		}
		if recent != nil && !recent[f.TargetUser] {
			continue
		}
		v, _ := f.IntValue()
		scores[f.TargetUser] += v
	}

	ranked := sortScores(scores)
	s.Log.Debug().Int("ratings", len(received)).Int("ranked", len(ranked)).Msg("likeability ranking computed")
	return page(ranked, skip, limit), nil
}

// RankByActivity awards each rating sent within the last weeks points
// inversely proportional to its age in days, ceil(weeks*14/daysAgo), and sums
// them per sender.
func (s *RankingService) RankByActivity(ctx context.Context, userIDs []string, weeks int) ([]models.RankEntry, error) {
	if weeks <= 0 {
		return []models.RankEntry{}, nil
	}
	now := s.now()
	filter := idSet(userIDs)

	flags, err := s.Store.ListFlags(ctx, FlagQuery{
		Category:      models.CategoryLikeability,
		ModifiedSince: now.Add(-time.Duration(weeks) * 7 * day),
	})
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}

	scores := make(map[string]int64)
	budget := int64(weeks) * 14
	for _, f := range flags {
		if filter != nil && !filter[f.SourceUser] {
			continue
		}
		daysAgo := int64(now.Sub(f.ModifiedAt) / day)
		if daysAgo < 1 {
			daysAgo = 1
		}
		scores[f.SourceUser] += (budget + daysAgo - 1) / daysAgo
	}
	return sortScores(scores), nil
}

func idSet(ids []string) map[string]bool {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// sortScores orders by descending score, ties by user id.
func sortScores(scores map[string]int64) []models.RankEntry {
	out := make([]models.RankEntry, 0, len(scores))
	for id, score := range scores {
		out = append(out, models.RankEntry{UserID: id, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

func page(entries []models.RankEntry, skip, limit int) []models.RankEntry {
	if skip < 0 {
		skip = 0
	}
	if skip >= len(entries) {
		return []models.RankEntry{}
	}
	entries = entries[skip:]
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return entries
}
