package service

import (
	"context"
	"errors"
	"time"

	"telegram-zao-bot/internal/model"
	"telegram-zao-bot/internal/storage"
)

var (
	// ErrPendingGame rejects a new challenge while either player has one.
	ErrPendingGame = errors.New("a rock-paper-scissors game is already pending")
	// ErrNotParticipant rejects choices from bystanders.
	ErrNotParticipant = errors.New("not a participant of this game")
	// ErrGameFinished rejects choices on a completed game.
	ErrGameFinished = errors.New("game already finished")
	// ErrSelfChallenge rejects challenging yourself.
	ErrSelfChallenge = errors.New("cannot challenge yourself")
	// ErrInvalidChoice rejects anything but rock, paper or scissors.
	ErrInvalidChoice = errors.New("invalid choice")
)

// RSPService runs rock-paper-scissors challenges between two chat members.
type RSPService struct {
	store storage.Store
}

func NewRSPService(store storage.Store) *RSPService {
	return &RSPService{store: store}
}

// Challenge opens a pending game; each player may be in at most one.
func (s *RSPService) Challenge(ctx context.Context, chatID, challengerID, opponentID, messageID int64, now time.Time) (int64, error) {
	if challengerID == opponentID {
		return 0, ErrSelfChallenge
	}
	for _, uid := range []int64{challengerID, opponentID} {
		pending, err := s.store.PendingRSPGame(ctx, chatID, uid)
		if err != nil {
			return 0, err
		}
		if pending != nil {
			return 0, ErrPendingGame
		}
	}
	return s.store.CreateRSPGame(ctx, chatID, challengerID, opponentID, messageID, now)
}

// Choose records a player's choice; once both are in, the game completes
// and the updated game (with WinnerID, 0 for a draw) is returned along with
// completed=true.
func (s *RSPService) Choose(ctx context.Context, gameID, userID int64, choice string) (*model.RSPGame, bool, error) {
	switch choice {
	case model.RSPRock, model.RSPPaper, model.RSPScissors:
	default:
		return nil, false, ErrInvalidChoice
	}

	game, err := s.store.GetRSPGame(ctx, gameID)
	if err != nil {
		return nil, false, err
	}
	if game == nil {
		return nil, false, ErrGameFinished
	}
	if game.Status != model.RSPStatusPending {
		return nil, false, ErrGameFinished
	}
	if userID != game.ChallengerID && userID != game.OpponentID {
		return nil, false, ErrNotParticipant
	}

	if err := s.store.UpdateRSPChoice(ctx, gameID, userID, choice); err != nil {
		return nil, false, err
	}
	game, err = s.store.GetRSPGame(ctx, gameID)
	if err != nil {
		return nil, false, err
	}
	if game.ChallengerChoice == "" || game.OpponentChoice == "" {
		return game, false, nil
	}

	winner := Winner(game.ChallengerID, game.ChallengerChoice, game.OpponentID, game.OpponentChoice)
	if err := s.store.CompleteRSPGame(ctx, gameID, winner); err != nil {
		return nil, false, err
	}
	game.Status = model.RSPStatusCompleted
	game.WinnerID = winner
	return game, true, nil
}

// Stats aggregates a user's completed games in one chat or everywhere.
func (s *RSPService) Stats(ctx context.Context, chatID, userID int64, global bool) (model.RSPStats, error) {
	if global {
		return s.store.RSPStatsGlobal(ctx, userID)
	}
	return s.store.RSPStats(ctx, chatID, userID)
}

// Winner applies the standard dominance rules; 0 means a draw.
func Winner(aID int64, aChoice string, bID int64, bChoice string) int64 {
	if aChoice == bChoice {
		return 0
	}
	if beats(aChoice, bChoice) {
		return aID
	}
	return bID
}

func beats(a, b string) bool {
	switch a {
	case model.RSPRock:
		return b == model.RSPScissors
	case model.RSPPaper:
		return b == model.RSPRock
	case model.RSPScissors:
		return b == model.RSPPaper
	}
	return false
}
