package ledger

import (
	"context"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wheelhouse-gg/wheelhouse/internal/round"
)

func TestMemorySettle(t *testing.T) {
	m := NewMemory(zerolog.New(io.Discard))
	ctx := context.Background()

	payout, err := m.Settle(ctx, round.Outcome{Index: 17}, round.Bet{ID: "bet-1", ParticipantID: "alice", RoundID: "r-1"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, payout)

	payout, err = m.Settle(ctx, round.Outcome{CrashPoint: 2.34}, round.Bet{ID: "bet-2", ParticipantID: "bob", RoundID: "r-2"})
	require.NoError(t, err)
	assert.Equal(t, 2.34, payout)

	settled := m.Settlements()
	require.Len(t, settled, 2)
	assert.Equal(t, "bet-1", settled[0].Bet.ID)
	assert.Equal(t, 2.34, settled[1].Payout)
}
