// Package service implements the attendance rules on top of the storage
// capability set: check-in/check-out orchestration, achievement awarding,
// rankings, wake reminders and the chat games.
package service

import (
	"context"
	"time"

	"telegram-zao-bot/internal/calendar"
	"telegram-zao-bot/internal/model"
	"telegram-zao-bot/internal/storage"
)

// CheckInStatus classifies a check-in attempt.
type CheckInStatus int

const (
	CheckInOK CheckInStatus = iota
	// CheckInDuplicate means a session already exists for this business day.
	CheckInDuplicate
)

// CheckInOutcome carries the created session and its rank among today's
// check-ins.
type CheckInOutcome struct {
	Status    CheckInStatus
	SessionID int64
	CheckIn   time.Time
	Day       string
	Position  int
}

// CheckOutStatus classifies a check-out attempt.
type CheckOutStatus int

const (
	CheckOutOK CheckOutStatus = iota
	// CheckOutNoSession means no session at all exists for today.
	CheckOutNoSession
	// CheckOutDayCompleted means today's session is already closed.
	CheckOutDayCompleted
	// CheckOutStaleOpen means the only open session belongs to an earlier
	// business day. It is reported, never silently closed.
	CheckOutStaleOpen
)

// CheckOutOutcome carries the closed session, or for CheckOutStaleOpen the
// day of the dangling session.
type CheckOutOutcome struct {
	Status   CheckOutStatus
	Result   *model.CheckOutResult
	StaleDay string
}

// SessionService coordinates check-ins and check-outs. It never locks in
// process; the storage uniqueness constraints arbitrate races.
type SessionService struct {
	store  storage.Store
	cutoff int
}

func NewSessionService(store storage.Store, cutoffHour int) *SessionService {
	return &SessionService{store: store, cutoff: cutoffHour}
}

// Day returns the business-day key for ts.
func (s *SessionService) Day(ts time.Time) string {
	return calendar.BusinessDayKey(ts, s.cutoff)
}

// CheckIn opens today's session. The insert itself detects duplicates, so
// two simultaneous check-ins resolve to exactly one OK and one Duplicate.
func (s *SessionService) CheckIn(ctx context.Context, chatID, userID int64, ts time.Time) (*CheckInOutcome, error) {
	day := s.Day(ts)
	created, err := s.store.CheckIn(ctx, chatID, userID, ts)
	if err != nil {
		return nil, err
	}
	if !created {
		return &CheckInOutcome{Status: CheckInDuplicate, Day: day}, nil
	}

	sess, err := s.store.GetOpenSession(ctx, chatID, userID, day)
	if err != nil {
		return nil, err
	}
	out := &CheckInOutcome{Status: CheckInOK, Day: day, Position: 1}
	if sess != nil {
		out.SessionID = sess.SessionID
		out.CheckIn = sess.CheckIn
		pos, err := s.store.TodayCheckinPosition(ctx, chatID, sess.SessionID, sess.CheckIn, day)
		if err != nil {
			return nil, err
		}
		out.Position = pos
	}
	return out, nil
}

// CheckOut closes today's open session and reports why when it cannot.
func (s *SessionService) CheckOut(ctx context.Context, chatID, userID int64, ts time.Time) (*CheckOutOutcome, error) {
	day := s.Day(ts)
	res, err := s.store.CheckOut(ctx, chatID, userID, ts)
	if err != nil {
		return nil, err
	}
	if res != nil {
		return &CheckOutOutcome{Status: CheckOutOK, Result: res}, nil
	}

	completed, err := s.store.SessionTodayCompleted(ctx, chatID, userID, day)
	if err != nil {
		return nil, err
	}
	if completed {
		return &CheckOutOutcome{Status: CheckOutDayCompleted}, nil
	}

	open, err := s.store.GetOpenSession(ctx, chatID, userID, "")
	if err != nil {
		return nil, err
	}
	if open != nil {
		return &CheckOutOutcome{
			Status:   CheckOutStaleOpen,
			StaleDay: s.Day(open.CheckIn),
		}, nil
	}
	return &CheckOutOutcome{Status: CheckOutNoSession}, nil
}

// Awake returns the target's open session regardless of business day, nil
// when the target is not checked in.
func (s *SessionService) Awake(ctx context.Context, chatID, userID int64) (*model.OpenSession, error) {
	return s.store.GetOpenSession(ctx, chatID, userID, "")
}

// OpenToday returns the open session of the given business day, if any.
func (s *SessionService) OpenToday(ctx context.Context, chatID, userID int64, day string) (*model.OpenSession, error) {
	return s.store.GetOpenSession(ctx, chatID, userID, day)
}

// CompletedToday reports whether today's session is already closed.
func (s *SessionService) CompletedToday(ctx context.Context, chatID, userID int64, day string) (bool, error) {
	return s.store.SessionTodayCompleted(ctx, chatID, userID, day)
}
