package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTableNames(t *testing.T) {
	tests := []struct {
		name     string
		model    interface{ TableName() string }
		expected string
	}{
		{"Agent", &Agent{}, "agents"},
		{"Match", &Match{}, "matches"},
		{"MatchPlayer", &MatchPlayer{}, "match_players"},
		{"TickFrame", &TickFrame{}, "tick_frames"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.model.TableName())
		})
	}

	assert.Len(t, DatabaseModels, len(tests))
}
