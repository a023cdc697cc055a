package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthContextValidate(t *testing.T) {
	tests := []struct {
		name    string
		auth    AuthContext
		wantErr error
	}{
		{"complete", AuthContext{TenantID: "t1", UserID: "u1", SessionID: "s1"}, nil},
		{"missing tenant", AuthContext{UserID: "u1", SessionID: "s1"}, ErrMissingTenantID},
		{"missing user", AuthContext{TenantID: "t1", SessionID: "s1"}, ErrMissingUserID},
		{"missing session", AuthContext{TenantID: "t1", UserID: "u1"}, ErrMissingSessionID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.auth.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("a"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
	assert.Equal(t, 25, EstimateTokens(string(make([]byte, 100))))
}

func TestDesignPhaseNext(t *testing.T) {
	assert.Equal(t, DesignStylesheet, DesignResearch.Next())
	assert.Equal(t, DesignScreens, DesignStylesheet.Next())
	assert.Equal(t, DesignComplete, DesignScreens.Next())
	assert.Equal(t, DesignComplete, DesignComplete.Next(), "terminal phase stays put")
}

func TestSkillPriorityWeight(t *testing.T) {
	assert.Greater(t, PriorityCritical.Weight(), PriorityHigh.Weight())
	assert.Greater(t, PriorityHigh.Weight(), PriorityMedium.Weight())
	assert.Greater(t, PriorityMedium.Weight(), PriorityLow.Weight())
	assert.False(t, SkillPriority("urgent").IsValid())
}

func TestPhaseIsTerminal(t *testing.T) {
	for _, p := range []Phase{PhaseComplete, PhaseFailed, PhasePaused} {
		assert.True(t, p.IsTerminal(), string(p))
	}
	for _, p := range []Phase{PhaseAnalyzing, PhaseDesigning, PhaseBuilding, PhaseTesting, PhaseReviewing} {
		assert.False(t, p.IsTerminal(), string(p))
	}
}
