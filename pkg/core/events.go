// pkg/core/events.go
package core

// EventType tags a TickEvent.
type EventType string

const (
	EventMove       EventType = "move"
	EventShot       EventType = "shot"
	EventHit        EventType = "hit"
	EventKill       EventType = "kill"
	EventZoneDamage EventType = "zone_damage"
	EventZoneShrink EventType = "zone_shrink"
	EventCollision  EventType = "collision"
	EventTimeout    EventType = "timeout"
	EventForfeit    EventType = "forfeit"
)

// Lifecycle topics published to background workers.
const (
	TopicMatchCreated    = ":MATCH:CREATED:"
	TopicTickResolved    = ":TICK:RESOLVED:"
	TopicMatchCompleted  = ":MATCH:COMPLETED:"
	TopicAgentRegistered = ":AGENT:REGISTERED:"
)

// ZoneActor is the actor recorded on kill events caused by the zone.
const ZoneActor = "zone"

// TickEvent is one thing that happened during a tick.
// AgentID is the actor; TargetID is set for hit and kill events.
type TickEvent struct {
	Type      EventType `json:"type"`
	AgentID   string    `json:"agentId,omitempty"`
	TargetID  string    `json:"targetId,omitempty"`
	From      *Position `json:"from,omitempty"`
	To        *Position `json:"to,omitempty"`
	Direction Direction `json:"direction,omitempty"`
	Damage    int       `json:"damage,omitempty"`
	BouncedTo *Position `json:"bouncedTo,omitempty"`
	Zone      *Zone     `json:"zone,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

func cloneEvents(events []TickEvent) []TickEvent {
	if events == nil {
		return nil
	}
	out := make([]TickEvent, len(events))
	for i, e := range events {
		out[i] = e
		out[i].From = clonePos(e.From)
		out[i].To = clonePos(e.To)
		out[i].BouncedTo = clonePos(e.BouncedTo)
		if e.Zone != nil {
			z := *e.Zone
			out[i].Zone = &z
		}
	}
	return out
}

func clonePos(p *Position) *Position {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
