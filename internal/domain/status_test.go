package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition_LegalEdges(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
	}{
		{StatusAlertRaised, StatusAwaitingStock},
		{StatusAlertRaised, StatusPendingPicking},
		{StatusAwaitingStock, StatusPendingPicking},
		{StatusPendingPicking, StatusInTransit},
		{StatusInTransit, StatusCompleted},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.True(t, CanTransition(tt.from, tt.to))
		})
	}
}

// Every pair outside the five legal edges must be refused.
func TestCanTransition_AllOtherPairsRefused(t *testing.T) {
	legal := map[[2]Status]bool{
		{StatusAlertRaised, StatusAwaitingStock}:    true,
		{StatusAlertRaised, StatusPendingPicking}:   true,
		{StatusAwaitingStock, StatusPendingPicking}: true,
		{StatusPendingPicking, StatusInTransit}:     true,
		{StatusInTransit, StatusCompleted}:          true,
	}

	refused := 0
	for _, from := range AllStatuses() {
		for _, to := range AllStatuses() {
			if legal[[2]Status{from, to}] {
				continue
			}
			assert.False(t, CanTransition(from, to), "%s -> %s", from, to)
			refused++
		}
	}
	assert.Equal(t, 20, refused)
}

func TestCanTransition_CompletedIsTerminal(t *testing.T) {
	for _, to := range AllStatuses() {
		assert.False(t, CanTransition(StatusCompleted, to))
	}
	assert.True(t, StatusCompleted.IsTerminal())
	assert.False(t, StatusInTransit.IsTerminal())
}

func TestCanTransition_UnknownStatus(t *testing.T) {
	assert.False(t, CanTransition("", StatusPendingPicking))
	assert.False(t, CanTransition("SHIPPED", StatusCompleted))
	assert.False(t, CanTransition(StatusAlertRaised, ""))
	assert.False(t, CanTransition(StatusAlertRaised, "SHIPPED"))
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("AWAITING_STOCK")
	require.NoError(t, err)
	assert.Equal(t, StatusAwaitingStock, s)

	_, err = ParseStatus("awaiting_stock")
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestStatus_MovesStock(t *testing.T) {
	assert.True(t, StatusPendingPicking.MovesStock())
	assert.True(t, StatusCompleted.MovesStock())
	assert.False(t, StatusInTransit.MovesStock())
	assert.False(t, StatusAwaitingStock.MovesStock())
}
