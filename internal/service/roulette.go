package service

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"telegram-zao-bot/internal/model"
	"telegram-zao-bot/internal/storage"
)

// DefaultChambers is the revolver size when the command gives none.
const DefaultChambers = 6

var (
	// ErrGameInProgress rejects starting a game while one is loaded.
	ErrGameInProgress = errors.New("a roulette game is already in progress")
	// ErrNoActiveGame rejects pulling the trigger with no game loaded.
	ErrNoActiveGame = errors.New("no active roulette game")
)

// PullResult reports one trigger pull.
type PullResult struct {
	Bang     bool
	Position int
	Chambers int
}

// RouletteService runs one revolver per chat. The bullet chamber is fixed
// at load time; each pull advances one chamber, so the bullet fires within
// Chambers pulls.
type RouletteService struct {
	store storage.Store
	rng   *rand.Rand
}

func NewRouletteService(store storage.Store) *RouletteService {
	return &RouletteService{
		store: store,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start loads a revolver with the bullet in a random chamber.
func (s *RouletteService) Start(ctx context.Context, chatID, userID int64, chambers int, now time.Time) (*model.RouletteGame, error) {
	if chambers < 2 {
		chambers = DefaultChambers
	}
	active, err := s.store.ActiveRoulette(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, ErrGameInProgress
	}

	bullet := s.rng.Intn(chambers) + 1
	if err := s.store.CreateRoulette(ctx, chatID, chambers, bullet, userID, now); err != nil {
		return nil, err
	}
	return &model.RouletteGame{
		ChatID:         chatID,
		Chambers:       chambers,
		BulletPosition: bullet,
		CreatedBy:      userID,
		CreatedAt:      now,
	}, nil
}

// Pull advances the cylinder by one chamber. A bang ends the game.
func (s *RouletteService) Pull(ctx context.Context, chatID, userID int64, now time.Time) (*PullResult, error) {
	game, err := s.store.ActiveRoulette(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if game == nil {
		return nil, ErrNoActiveGame
	}

	pos := game.CurrentPosition + 1
	bang := pos == game.BulletPosition
	result := model.RouletteResultSafe
	if bang {
		result = model.RouletteResultBang
	}
	if err := s.store.RecordRouletteAttempt(ctx, chatID, userID, pos, result, now); err != nil {
		return nil, err
	}

	if bang {
		if err := s.store.DeleteRoulette(ctx, chatID); err != nil {
			return nil, err
		}
	} else {
		if err := s.store.UpdateRoulettePosition(ctx, chatID, pos); err != nil {
			return nil, err
		}
	}
	return &PullResult{Bang: bang, Position: pos, Chambers: game.Chambers}, nil
}
