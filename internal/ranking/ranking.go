// Package ranking orders posts for the personalized feed.
package ranking

import (
	"math"
	"sort"
	"time"

	"github.com/sujalbistaa/feedsync/internal/models"
)

// Weights of each signal. A preference signal only counts toward the
// maximum when the viewer has that preference.
const (
	weightTags       = 0.35
	weightInterests  = 0.35
	weightAffinity   = 0.15
	weightEngagement = 0.10
	weightRecency    = 0.05

	recencyWindow = 30 * 24 * time.Hour
)

// Profile is what the ranker knows about the viewer.
type Profile struct {
	FavoriteTags []string
	Interests    []string
	// LikedTags counts tags and categories across posts the viewer liked.
	LikedTags map[string]int
}

// NewProfile builds a profile from stored preferences and liked posts.
func NewProfile(p models.Preferences, liked []models.Post) Profile {
	prof := Profile{
		FavoriteTags: p.FavoriteTags,
		Interests:    p.Interests,
		LikedTags:    map[string]int{},
	}
	for _, lp := range liked {
		for _, t := range lp.Tags {
			prof.LikedTags[t]++
		}
		for _, c := range lp.Categories {
			prof.LikedTags[c]++
		}
	}
	return prof
}

// Score rates a post for the profile in [0, 1].
func Score(p models.Post, prof Profile, now time.Time) float64 {
	var score, max float64

	if len(prof.FavoriteTags) > 0 {
		max += weightTags
		score += weightTags * overlap(p.Tags, prof.FavoriteTags)
	}
	if len(prof.Interests) > 0 {
		max += weightInterests
		score += weightInterests * overlap(p.Categories, prof.Interests)
	}
	if len(prof.LikedTags) > 0 {
		max += weightAffinity
		score += weightAffinity * affinity(p, prof.LikedTags)
	}

	max += weightEngagement
	engagement := float64(p.LikesCount)*0.7 + float64(p.CommentsCount)*0.3
	if engagement > 0 {
		score += weightEngagement * math.Min(math.Log1p(engagement)/math.Log1p(100), 1)
	}

	max += weightRecency
	if !p.CreatedAt.IsZero() {
		age := now.Sub(p.CreatedAt)
		score += weightRecency * math.Max(0, 1-float64(age)/float64(recencyWindow))
	}

	return score / max
}

// Rank sorts posts by descending score. Ties go to the newer post, then to
// the smaller ID, so repeated calls produce the same order.
func Rank(posts []models.Post, prof Profile, now time.Time) []models.Post {
	type scored struct {
		post  models.Post
		score float64
	}
	items := make([]scored, len(posts))
	for i, p := range posts {
		items[i] = scored{p, Score(p, prof, now)}
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if !a.post.CreatedAt.Equal(b.post.CreatedAt) {
			return a.post.CreatedAt.After(b.post.CreatedAt)
		}
		return a.post.ID < b.post.ID
	})
	out := make([]models.Post, len(items))
	for i, it := range items {
		out[i] = it.post
	}
	return out
}

// overlap is |a ∩ b| / max(|a|, |b|).
func overlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(b))
	for _, v := range b {
		set[v] = struct{}{}
	}
	seen := make(map[string]struct{}, len(a))
	n := 0
	for _, v := range a {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		if _, ok := set[v]; ok {
			n++
		}
	}
	d := len(seen)
	if len(set) > d {
		d = len(set)
	}
	return float64(n) / float64(d)
}

func affinity(p models.Post, liked map[string]int) float64 {
	total := 0
	for _, c := range liked {
		total += c
	}
	if total == 0 {
		return 0
	}
	hits := 0
	for _, t := range p.Tags {
		hits += liked[t]
	}
	for _, c := range p.Categories {
		hits += liked[c]
	}
	return math.Min(float64(hits)/float64(total), 1)
}
