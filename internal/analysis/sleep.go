package analysis

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/fyrsmithlabs/coachd/internal/coaching"
	"github.com/fyrsmithlabs/coachd/internal/config"
)

// DinnerCutoff is the actionable cutoff attached to late-dinner warnings.
const DinnerCutoff = "7 PM"

var caffeineKeywords = []string{
	"coffee", "espresso", "latte", "cappuccino", "caffeine", "energy drink",
	"cola", "black tea", "green tea", "matcha", "pre-workout",
}

// SleepAnalyzer correlates dinner timing and late caffeine with sleep quality.
type SleepAnalyzer struct {
	cfg config.AnalysisConfig
}

// NewSleepAnalyzer creates a sleep-correlation analyzer.
func NewSleepAnalyzer(cfg config.AnalysisConfig) *SleepAnalyzer {
	return &SleepAnalyzer{cfg: cfg}
}

func (a *SleepAnalyzer) Name() string { return "sleep" }

func (a *SleepAnalyzer) Analyze(c *coaching.CoachingContext) []coaching.Insight {
	var out []coaching.Insight
	if in, ok := a.lateDinner(c); ok {
		out = append(out, in)
	}
	if in, ok := a.caffeine(c); ok {
		out = append(out, in)
	}
	return out
}

// QualityLossPercent is the truncated percentage drop of late-dinner sleep
// quality relative to early-dinner sleep quality.
func QualityLossPercent(early, late float64) int {
	if early <= 0 {
		return 0
	}
	return int((early - late) / early * 100)
}

func (a *SleepAnalyzer) lateDinner(c *coaching.CoachingContext) (coaching.Insight, bool) {
	dinners := map[string]time.Time{}
	for _, m := range c.MealsOfType(coaching.MealDinner) {
		k := dayKey(m.Timestamp)
		if prev, ok := dinners[k]; !ok || m.Timestamp.After(prev) {
			dinners[k] = m.Timestamp
		}
	}

	var late, early []float64
	for _, s := range c.Sleep {
		if s.BedTime.IsZero() {
			continue
		}
		dinner, ok := dinners[dayKey(s.Date)]
		if !ok {
			if s.PreSleepMealTime == nil {
				continue
			}
			dinner = *s.PreSleepMealTime
		}
		gap := s.BedTime.Sub(dinner).Hours()
		if gap < 0 {
			continue
		}
		if gap < a.cfg.LateDinnerHours {
			late = append(late, float64(s.Quality))
		} else {
			early = append(early, float64(s.Quality))
		}
	}

	avgLate, okLate := mean(late)
	avgEarly, okEarly := mean(early)
	if !okLate || !okEarly || avgEarly <= avgLate+a.cfg.SleepQualityGap {
		return coaching.Insight{}, false
	}

	loss := QualityLossPercent(avgEarly, avgLate)
	in := newInsight(a.Name(), coaching.InsightWarning, coaching.PriorityMedium,
		"Late dinners are hurting your sleep",
		fmt.Sprintf("Sleep quality averages %.1f after late dinners versus %.1f when you eat %.0f+ hours before bed, a %d%% loss.",
			avgLate, avgEarly, a.cfg.LateDinnerHours, loss))
	in.Data["lateDinnerQuality"] = round1(avgLate)
	in.Data["earlyDinnerQuality"] = round1(avgEarly)
	in.Data["qualityLossPercent"] = loss
	in.Data["lateNights"] = len(late)
	in.Data["earlyNights"] = len(early)
	in.Data["cutoff"] = DinnerCutoff
	in.ActionItems = []string{
		"Finish dinner by " + DinnerCutoff,
		fmt.Sprintf("Leave at least %.0f hours between dinner and bed", a.cfg.LateDinnerHours),
		"If hungry later, choose a small protein snack",
	}
	in.Impact = fmt.Sprintf("Up to %d%% better sleep quality", loss)
	return in, true
}

func (a *SleepAnalyzer) caffeine(c *coaching.CoachingContext) (coaching.Insight, bool) {
	found := map[string]bool{}
	lateMeals := 0
	for _, m := range c.Meals {
		if m.Timestamp.Hour() < a.cfg.CaffeineCutoffHour {
			continue
		}
		hits := caffeineIn(m)
		if len(hits) == 0 {
			continue
		}
		lateMeals++
		for _, h := range hits {
			found[h] = true
		}
	}
	if len(found) == 0 {
		return coaching.Insight{}, false
	}

	substances := make([]string, 0, len(found))
	for s := range found {
		substances = append(substances, s)
	}
	sort.Strings(substances)
	cutoff := clockLabel(a.cfg.CaffeineCutoffHour)

	in := newInsight(a.Name(), coaching.InsightWarning, coaching.PriorityMedium,
		"Afternoon caffeine may be disrupting sleep",
		fmt.Sprintf("You logged %s after %s on %d occasion(s).", strings.Join(substances, ", "), cutoff, lateMeals))
	in.Data["substances"] = substances
	in.Data["occurrences"] = lateMeals
	in.Data["cutoff"] = cutoff
	in.ActionItems = []string{
		"Stop caffeine by " + cutoff,
		"Switch to decaf or herbal tea in the afternoon",
	}
	in.Impact = "Faster sleep onset and deeper sleep"
	return in, true
}

func caffeineIn(m coaching.MealRecord) []string {
	texts := make([][]string, 0, len(m.Foods)+1)
	for _, f := range m.Foods {
		texts = append(texts, words(f.Name))
	}
	texts = append(texts, words(m.Description))

	var hits []string
	for _, kw := range caffeineKeywords {
		phrase := words(kw)
		for _, t := range texts {
			if containsCaffeinated(t, phrase) {
				hits = append(hits, kw)
				break
			}
		}
	}
	return hits
}

// words splits s into lowercase letter and digit runs, so "coca-cola"
// yields "coca" and "cola" and "chocolate" stays one word.
func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// containsCaffeinated reports whether phrase occurs in text as whole words
// without a decaf qualifier.
func containsCaffeinated(text, phrase []string) bool {
	n := len(phrase)
	for i := 0; i+n <= len(text); i++ {
		if !slices.Equal(text[i:i+n], phrase) {
			continue
		}
		if !decafQualified(text, i, i+n) {
			return true
		}
	}
	return false
}

// decafQualified reports whether the match text[start:end] is qualified as
// caffeine free: "decaf coffee", "caffeine-free cola", "caffeine free".
func decafQualified(text []string, start, end int) bool {
	if start > 0 && (text[start-1] == "decaf" || text[start-1] == "decaffeinated") {
		return true
	}
	if start > 1 && text[start-2] == "caffeine" && text[start-1] == "free" {
		return true
	}
	return end < len(text) && text[end] == "free"
}

// clockLabel renders an hour of day as "2 PM".
func clockLabel(hour int) string {
	switch {
	case hour == 0:
		return "12 AM"
	case hour < 12:
		return fmt.Sprintf("%d AM", hour)
	case hour == 12:
		return "12 PM"
	default:
		return fmt.Sprintf("%d PM", hour-12)
	}
}
