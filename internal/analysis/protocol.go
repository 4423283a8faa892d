package analysis

import "github.com/fyrsmithlabs/coachd/internal/coaching"

// Protocol is the nutrition baseline for a goal.
type Protocol struct {
	Goal                 string
	ProteinPct           float64
	CarbPct              float64
	FatPct               float64
	OptimalBreakfastHour float64
	FastingHours         float64
}

// Protocols is keyed by normalized goal (see coaching.NormalizeGoal).
var Protocols = map[string]Protocol{
	coaching.GoalWeightLoss:    {Goal: coaching.GoalWeightLoss, ProteinPct: 30, CarbPct: 35, FatPct: 35, OptimalBreakfastHour: 8, FastingHours: 14},
	coaching.GoalMuscleGain:    {Goal: coaching.GoalMuscleGain, ProteinPct: 30, CarbPct: 45, FatPct: 25, OptimalBreakfastHour: 7, FastingHours: 12},
	coaching.GoalEnergy:        {Goal: coaching.GoalEnergy, ProteinPct: 25, CarbPct: 45, FatPct: 30, OptimalBreakfastHour: 7.5, FastingHours: 12},
	coaching.GoalBetterSleep:   {Goal: coaching.GoalBetterSleep, ProteinPct: 25, CarbPct: 45, FatPct: 30, OptimalBreakfastHour: 8, FastingHours: 13},
	coaching.GoalGeneralHealth: {Goal: coaching.GoalGeneralHealth, ProteinPct: 25, CarbPct: 45, FatPct: 30, OptimalBreakfastHour: 8, FastingHours: 12},
}

// ProtocolFor returns the protocol for a free-form goal, falling back to
// general health.
func ProtocolFor(goal string) Protocol {
	if p, ok := Protocols[coaching.NormalizeGoal(goal)]; ok {
		return p
	}
	return Protocols[coaching.GoalGeneralHealth]
}
