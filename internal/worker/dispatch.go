package worker

import (
	"fmt"

	"github.com/botroyale/gridroyale/internal/dispatcher"
	"github.com/botroyale/gridroyale/internal/influx"
	"github.com/botroyale/gridroyale/pkg/core"
)

// RegisterHandlers registers all event handlers with the dispatcher.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	// Lifecycle events - buffered, off the request path
	d.Register(core.TopicAgentRegistered, m.handleAgentRegistered, dispatcher.Buffered(100), dispatcher.Logged())
	d.Register(core.TopicMatchCreated, m.handleMatchCreated, dispatcher.Buffered(100), dispatcher.Logged())
	d.Register(core.TopicMatchCompleted, m.handleMatchCompleted, dispatcher.Buffered(100), dispatcher.Blocking(), dispatcher.Logged())

	// High-volume tick frames - buffered
	d.Register(core.TopicTickResolved, m.handleTickResolved, dispatcher.Buffered(5000), dispatcher.Logged())
}

func (m *Manager) handleAgentRegistered(e dispatcher.Event) (any, error) {
	agent, ok := e.Payload.(core.Agent)
	if !ok {
		return nil, fmt.Errorf("%s: %w: %T", e.Type, ErrUnexpectedPayload, e.Payload)
	}
	m.agents.Inc()
	m.deps.Logger.Info("Agent registered", "agentId", agent.ID, "name", agent.Name)
	return nil, nil
}

func (m *Manager) handleMatchCreated(e dispatcher.Event) (any, error) {
	match, ok := e.Payload.(core.Match)
	if !ok {
		return nil, fmt.Errorf("%s: %w: %T", e.Type, ErrUnexpectedPayload, e.Payload)
	}
	m.created.Inc()
	m.deps.Logger.Info("Match started", "matchId", match.ID, "players", len(match.Players))

	if err := m.write(influx.MatchCreatedPoint(match)); err != nil {
		return nil, fmt.Errorf("failed to write match created point: %w", err)
	}
	return nil, nil
}

func (m *Manager) handleTickResolved(e dispatcher.Event) (any, error) {
	frame, ok := e.Payload.(core.TickFrame)
	if !ok {
		return nil, fmt.Errorf("%s: %w: %T", e.Type, ErrUnexpectedPayload, e.Payload)
	}
	m.ticks.Inc()

	if err := m.write(influx.TickPoint(frame)); err != nil {
		return nil, fmt.Errorf("failed to write tick point: %w", err)
	}
	return nil, nil
}

func (m *Manager) handleMatchCompleted(e dispatcher.Event) (any, error) {
	result, ok := e.Payload.(core.MatchResult)
	if !ok {
		return nil, fmt.Errorf("%s: %w: %T", e.Type, ErrUnexpectedPayload, e.Payload)
	}
	m.completed.Inc()

	placements := make([]any, 0, len(result.Match.Placements)*2)
	for _, p := range result.Match.Placements {
		placements = append(placements, p.AgentID, p.Placement)
	}
	m.deps.Logger.Info("Match finished",
		"matchId", result.Match.ID,
		"winner", result.Match.WinnerID,
		"tick", result.Match.Tick,
		"placements", placements,
		"ratingDeltas", result.RatingDeltas,
	)

	if err := m.write(influx.PlacementPoints(result)...); err != nil {
		return nil, fmt.Errorf("failed to write placement points: %w", err)
	}
	return nil, nil
}
