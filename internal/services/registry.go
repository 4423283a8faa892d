package services

import (
	"github.com/fyrsmithlabs/coachd/internal/coaching"
	"github.com/fyrsmithlabs/coachd/internal/feedback"
	"github.com/fyrsmithlabs/coachd/internal/insights"
)

// Registry provides access to the coachd services.
type Registry interface {
	Records() *coaching.Repository
	Insights() *insights.Repository
	Engine() *insights.Engine
	Monitor() *feedback.Monitor
}

// Options configures the registry with service instances.
type Options struct {
	Records  *coaching.Repository
	Insights *insights.Repository
	Engine   *insights.Engine
	Monitor  *feedback.Monitor
}

type registry struct {
	records  *coaching.Repository
	insights *insights.Repository
	engine   *insights.Engine
	monitor  *feedback.Monitor
}

// NewRegistry creates a registry. A nil Insights repository falls back to
// the engine's.
func NewRegistry(opts Options) Registry {
	r := &registry{
		records:  opts.Records,
		insights: opts.Insights,
		engine:   opts.Engine,
		monitor:  opts.Monitor,
	}
	if r.insights == nil && r.engine != nil {
		r.insights = r.engine.Repository()
	}
	return r
}

func (r *registry) Records() *coaching.Repository  { return r.records }
func (r *registry) Insights() *insights.Repository { return r.insights }
func (r *registry) Engine() *insights.Engine       { return r.engine }
func (r *registry) Monitor() *feedback.Monitor     { return r.monitor }
