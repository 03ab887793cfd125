package optimizer

import (
	"context"

	"github.com/abhisek/skillissue/internal/logger"
)

// Pipeline runs detection followed by one queue pass.
type Pipeline struct {
	detector *Detector
	queue    *Queue
	log      *logger.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(d *Detector, q *Queue, log *logger.Logger) *Pipeline {
	return &Pipeline{detector: d, queue: q, log: logger.OrNop(log).With("component", "optimizer")}
}

// Run detects new jobs and processes the queue. A detection failure is
// logged and the queue still runs. A nil queue only detects.
func (p *Pipeline) Run(ctx context.Context) Summary {
	created, err := p.detector.Detect(ctx)
	if err != nil {
		p.log.Error("trigger detection failed", "error", err)
	} else if len(created) > 0 {
		p.log.Info("trigger detection queued jobs", "count", len(created))
	}
	if p.queue == nil {
		return Summary{}
	}
	return p.queue.Process(ctx)
}
