// pkg/core/action.go
package core

// Direction is a unit step on the grid. Stay is only legal as a move.
type Direction string

const (
	North Direction = "north"
	South Direction = "south"
	East  Direction = "east"
	West  Direction = "west"
	Stay  Direction = "stay"
)

// Moves lists every legal move in a fixed order.
var Moves = []Direction{North, South, East, West, Stay}

// ShootDirections lists every legal shoot direction.
var ShootDirections = []Direction{North, South, East, West}

// MaxReasoningLength is the number of runes kept from an action's reasoning.
const MaxReasoningLength = 200

// Delta returns the unit offset for d. North increases y.
func (d Direction) Delta() (dx, dy int) {
	switch d {
	case North:
		return 0, 1
	case South:
		return 0, -1
	case East:
		return 1, 0
	case West:
		return -1, 0
	default:
		return 0, 0
	}
}

// IsMove reports whether d is one of the five legal moves.
func (d Direction) IsMove() bool {
	switch d {
	case North, South, East, West, Stay:
		return true
	}
	return false
}

// IsShoot reports whether d is one of the four legal shoot directions.
func (d Direction) IsShoot() bool {
	return d != Stay && d.IsMove()
}

// Action is one agent's submission for a tick.
type Action struct {
	Move      Direction  `json:"move"`
	Shoot     *Direction `json:"shoot,omitempty"`
	Reasoning string     `json:"reasoning,omitempty"`
}

// Position is a grid cell.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Step returns p moved by d, clamped to a square grid of the given size.
func (p Position) Step(d Direction, gridSize int) Position {
	dx, dy := d.Delta()
	return Position{
		X: clamp(p.X+dx, 0, gridSize-1),
		Y: clamp(p.Y+dy, 0, gridSize-1),
	}
}

// InBounds reports whether p lies on a square grid of the given size.
func (p Position) InBounds(gridSize int) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < gridSize && p.Y < gridSize
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
