// Package nodes implements the reasoning graph: each node reads and mutates
// the shared execution state, and the engine decides which node runs next.
package nodes

import (
	"context"

	"github.com/rendis/wayfind/pkg/schema"
)

// Node is one unit of the reasoning graph. Run mutates the state in place;
// the engine owns checkpointing and transition selection.
type Node interface {
	ID() schema.NodeID
	Run(ctx context.Context, state *schema.ExecutionState) error
}

// EventSink receives audit events emitted while a node runs. Emit must not
// block node progress on sink failures.
type EventSink interface {
	Emit(ctx context.Context, sessionID string, node schema.NodeID, eventType string, payload any)
}

// nopSink drops events, used when no sink is wired.
type nopSink struct{}

func (nopSink) Emit(context.Context, string, schema.NodeID, string, any) {}

func sinkOrNop(sink EventSink) EventSink {
	if sink == nil {
		return nopSink{}
	}
	return sink
}

// Config carries the tunables shared by the loop-bearing nodes.
type Config struct {
	// ScoreThreshold is the similarity bar a top retrieval candidate must
	// clear for a named recommendation. Equality clears the bar.
	ScoreThreshold float64

	// MaxIterations bounds the reasoning loop per sub-task.
	MaxIterations int

	// FanOut caps parallel sub-task evaluation. Zero or one means sequential.
	FanOut int
}

const (
	DefaultScoreThreshold = 0.5
	DefaultMaxIterations  = 5

	minSubTasks = 2
	maxSubTasks = 5
)

// Normalize fills zero values with defaults.
func (c Config) Normalize() Config {
	if c.ScoreThreshold == 0 {
		c.ScoreThreshold = DefaultScoreThreshold
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.FanOut <= 0 {
		c.FanOut = 1
	}
	return c
}
