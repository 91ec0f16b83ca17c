package planner

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssignWavesRejectsCycle(t *testing.T) {
	p := &planner{steps: []*Step{
		{ID: 0, Service: "a"},
		{ID: 1, Service: "b", DependsOn: []int{2}},
		{ID: 2, Service: "c", DependsOn: []int{1}},
	}}

	err := p.assignWaves()

	var pe *PlanningError
	require.True(t, errors.As(err, &pe))
	require.Equal(t, ReasonCyclic, pe.Reason)
	require.Contains(t, pe.Message, "[1 2 1]")
}

func TestAssignWavesChain(t *testing.T) {
	p := &planner{steps: []*Step{
		{ID: 0, Service: "a", DependsOn: []int{2}},
		{ID: 1, Service: "b"},
		{ID: 2, Service: "c", DependsOn: []int{1}},
	}}

	require.NoError(t, p.assignWaves())
	require.Equal(t, 2, p.steps[0].Wave)
	require.Equal(t, 0, p.steps[1].Wave)
	require.Equal(t, 1, p.steps[2].Wave)
}
