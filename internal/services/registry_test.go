package services

import (
	"testing"
	"time"

	"github.com/fyrsmithlabs/coachd/internal/analysis"
	"github.com/fyrsmithlabs/coachd/internal/coaching"
	"github.com/fyrsmithlabs/coachd/internal/config"
	"github.com/fyrsmithlabs/coachd/internal/feedback"
	"github.com/fyrsmithlabs/coachd/internal/insights"
	"github.com/fyrsmithlabs/coachd/internal/prioritizer"
	"github.com/fyrsmithlabs/coachd/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryAccessors(t *testing.T) {
	reg := NewRegistry(Options{})
	assert.Nil(t, reg.Records())
	assert.Nil(t, reg.Insights())
	assert.Nil(t, reg.Engine())
	assert.Nil(t, reg.Monitor())
}

func TestRegistry_InsightsFromEngine(t *testing.T) {
	s := store.NewMemory()
	repo := insights.NewRepository(s)
	engine, err := insights.NewEngine(insights.Options{
		Analyzers:   analysis.All(config.DefaultAnalysis()),
		Prioritizer: prioritizer.New(nil, config.InsightsConfig{}, nil),
		Repository:  repo,
		Retention:   time.Hour,
	})
	require.NoError(t, err)
	monitor, err := feedback.NewMonitor(s, config.DefaultFeedback(), nil)
	require.NoError(t, err)
	records := coaching.NewRepository(s)

	reg := NewRegistry(Options{Records: records, Engine: engine, Monitor: monitor})
	assert.Same(t, records, reg.Records())
	assert.Same(t, repo, reg.Insights())
	assert.Same(t, engine, reg.Engine())
	assert.Same(t, monitor, reg.Monitor())
}
