package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-zao-bot/internal/model"
)

func TestWinner(t *testing.T) {
	tests := []struct {
		a, b string
		want int64
	}{
		{model.RSPRock, model.RSPScissors, 1},
		{model.RSPScissors, model.RSPRock, 2},
		{model.RSPPaper, model.RSPRock, 1},
		{model.RSPRock, model.RSPPaper, 2},
		{model.RSPScissors, model.RSPPaper, 1},
		{model.RSPPaper, model.RSPScissors, 2},
		{model.RSPRock, model.RSPRock, 0},
		{model.RSPPaper, model.RSPPaper, 0},
		{model.RSPScissors, model.RSPScissors, 0},
	}
	for _, tt := range tests {
		t.Run(tt.a+" vs "+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, Winner(1, tt.a, 2, tt.b))
		})
	}
}

func TestRSPChallenge(t *testing.T) {
	store := newStore(t)
	seedIdentity(t, store, 100, 1, 2, 3, 4)
	svc := NewRSPService(store)
	ctx := context.Background()
	now := mondayAt(12, 0)

	_, err := svc.Challenge(ctx, 100, 1, 1, 10, now)
	assert.ErrorIs(t, err, ErrSelfChallenge)

	gameID, err := svc.Challenge(ctx, 100, 1, 2, 10, now)
	require.NoError(t, err)
	assert.NotZero(t, gameID)

	// both players are locked while the game is pending
	_, err = svc.Challenge(ctx, 100, 1, 3, 11, now)
	assert.ErrorIs(t, err, ErrPendingGame)
	_, err = svc.Challenge(ctx, 100, 3, 2, 12, now)
	assert.ErrorIs(t, err, ErrPendingGame)

	// an uninvolved pair can still play
	_, err = svc.Challenge(ctx, 100, 3, 4, 13, now)
	require.NoError(t, err)
}

func TestRSPChoose(t *testing.T) {
	store := newStore(t)
	seedIdentity(t, store, 100, 1, 2, 3)
	svc := NewRSPService(store)
	ctx := context.Background()

	gameID, err := svc.Challenge(ctx, 100, 1, 2, 10, mondayAt(12, 0))
	require.NoError(t, err)

	_, _, err = svc.Choose(ctx, gameID, 1, "lizard")
	assert.ErrorIs(t, err, ErrInvalidChoice)

	_, _, err = svc.Choose(ctx, gameID, 3, model.RSPRock)
	assert.ErrorIs(t, err, ErrNotParticipant)

	game, completed, err := svc.Choose(ctx, gameID, 1, model.RSPPaper)
	require.NoError(t, err)
	assert.False(t, completed)
	assert.Equal(t, model.RSPStatusPending, game.Status)

	game, completed, err = svc.Choose(ctx, gameID, 2, model.RSPRock)
	require.NoError(t, err)
	assert.True(t, completed)
	assert.Equal(t, model.RSPStatusCompleted, game.Status)
	assert.Equal(t, int64(1), game.WinnerID)

	_, _, err = svc.Choose(ctx, gameID, 1, model.RSPRock)
	assert.ErrorIs(t, err, ErrGameFinished)
}

func TestRSPDrawAndStats(t *testing.T) {
	store := newStore(t)
	seedIdentity(t, store, 100, 1, 2)
	svc := NewRSPService(store)
	ctx := context.Background()

	gameID, err := svc.Challenge(ctx, 100, 1, 2, 10, mondayAt(12, 0))
	require.NoError(t, err)
	_, _, err = svc.Choose(ctx, gameID, 1, model.RSPScissors)
	require.NoError(t, err)
	game, completed, err := svc.Choose(ctx, gameID, 2, model.RSPScissors)
	require.NoError(t, err)
	assert.True(t, completed)
	assert.Zero(t, game.WinnerID)

	// a draw unlocks both players for a rematch
	gameID, err = svc.Challenge(ctx, 100, 2, 1, 11, mondayAt(12, 5))
	require.NoError(t, err)
	_, _, err = svc.Choose(ctx, gameID, 2, model.RSPRock)
	require.NoError(t, err)
	_, _, err = svc.Choose(ctx, gameID, 1, model.RSPScissors)
	require.NoError(t, err)

	stats, err := svc.Stats(ctx, 100, 2, false)
	require.NoError(t, err)
	assert.Equal(t, model.RSPStats{Total: 2, Wins: 1, Draws: 1}, stats)

	stats, err = svc.Stats(ctx, 100, 1, false)
	require.NoError(t, err)
	assert.Equal(t, model.RSPStats{Total: 2, Losses: 1, Draws: 1}, stats)
}
