// Package royale implements the grid royale rules: match setup and the pure
// tick resolver that turns a pre-tick match plus its pending actions into the
// post-tick match and the events that happened in between.
package royale

import (
	"errors"
	"fmt"
)

// Rules are the fixed parameters of a grid royale match.
type Rules struct {
	GridSize       int `json:"gridSize" mapstructure:"gridSize"`
	MaxTicks       int `json:"maxTicks" mapstructure:"maxTicks"`
	StartingHP     int `json:"startingHp" mapstructure:"startingHp"`
	BulletRange    int `json:"bulletRange" mapstructure:"bulletRange"`
	BulletDamage   int `json:"bulletDamage" mapstructure:"bulletDamage"`
	ZoneDamage     int `json:"zoneDamage" mapstructure:"zoneDamage"`
	ShrinkInterval int `json:"shrinkInterval" mapstructure:"shrinkInterval"`
	ShrinkStep     int `json:"shrinkStep" mapstructure:"shrinkStep"`
	MaxTimeouts    int `json:"maxTimeouts" mapstructure:"maxTimeouts"`
	MinPlayers     int `json:"minPlayers" mapstructure:"minPlayers"`
	MaxPlayers     int `json:"maxPlayers" mapstructure:"maxPlayers"`
}

// DefaultRules returns the standard 15x15, 100 tick ruleset.
func DefaultRules() Rules {
	return Rules{
		GridSize:       15,
		MaxTicks:       100,
		StartingHP:     3,
		BulletRange:    5,
		BulletDamage:   1,
		ZoneDamage:     1,
		ShrinkInterval: 10,
		ShrinkStep:     1,
		MaxTimeouts:    5,
		MinPlayers:     2,
		MaxPlayers:     8,
	}
}

// Validate checks that the rules describe a playable match.
func (r Rules) Validate() error {
	var errs []error
	if r.GridSize < 5 {
		errs = append(errs, fmt.Errorf("gridSize must be at least 5, got %d", r.GridSize))
	}
	if r.MaxTicks < 1 {
		errs = append(errs, fmt.Errorf("maxTicks must be positive, got %d", r.MaxTicks))
	}
	if r.StartingHP < 1 {
		errs = append(errs, fmt.Errorf("startingHp must be positive, got %d", r.StartingHP))
	}
	if r.BulletRange < 1 || r.BulletDamage < 1 || r.ZoneDamage < 1 {
		errs = append(errs, errors.New("bulletRange, bulletDamage and zoneDamage must be positive"))
	}
	if r.ShrinkInterval < 1 || r.ShrinkStep < 1 {
		errs = append(errs, errors.New("shrinkInterval and shrinkStep must be positive"))
	}
	if r.MaxTimeouts < 1 {
		errs = append(errs, fmt.Errorf("maxTimeouts must be positive, got %d", r.MaxTimeouts))
	}
	if r.MinPlayers < 2 || r.MaxPlayers > MaxSpawns || r.MinPlayers > r.MaxPlayers {
		errs = append(errs, fmt.Errorf("players must satisfy 2 <= min (%d) <= max (%d) <= %d", r.MinPlayers, r.MaxPlayers, MaxSpawns))
	}
	return errors.Join(errs...)
}
