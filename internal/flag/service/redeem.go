package service

import (
	"context"
	"errors"
	"time"

	"ctfoj/internal/common/db"
	"ctfoj/internal/event"
	"ctfoj/internal/flag/repository"
	appErr "ctfoj/pkg/errors"
	"ctfoj/pkg/utils/logger"

	"go.uber.org/zap"
)

// rejection is returned from inside the redemption transaction so the
// matching event can be written after rollback.
type rejection struct {
	eventType string
	err       *appErr.Error
}

func (r *rejection) Error() string { return r.err.Error() }

func reject(eventType string, code appErr.ErrorCode) *rejection {
	return &rejection{eventType: eventType, err: appErr.New(code)}
}

// Redeem admits token for uid and returns the solved challenge id. With
// force set the activity window and the quota are not checked.
//
// Redemptions of one user, of one team challenge and of one flag are
// serialized in process, in that order, and the flag row is locked in the
// database for the duration of the checks and the insert.
func (s *FlagService) Redeem(ctx context.Context, token, uid, ip string, force bool) (string, error) {
	ctxDB := withTimeout(ctx, s.dbTimeout)
	defer ctxDB.cancel()
	ctx = ctxDB.ctx

	exists, err := s.users.Exists(ctx, uid)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.DatabaseError, "check user failed")
	}
	if !exists {
		s.events.Log(ctx, ip, event.TypeFlagErrNoUser, token, "", "")
		return "", appErr.New(appErr.UnknownIdentity)
	}

	normalized := Normalize(token)
	resolved, err := s.flags.Resolve(ctx, nil, token, normalized)
	if err != nil {
		if errors.Is(err, repository.ErrFlagNotFound) {
			s.events.Log(ctx, ip, event.TypeFlagErrUnknown, token, "", uid)
			return "", appErr.New(appErr.UnknownFlag)
		}
		return "", appErr.Wrapf(err, appErr.DatabaseError, "resolve flag failed")
	}

	unlockUser := s.userLocks.Lock(uid)
	defer unlockUser()
	if resolved.Team {
		unlockTeam := s.teamLocks.Lock(resolved.CID)
		defer unlockTeam()
	}
	unlockFlag := s.flagLocks.Lock(resolved.FID)
	defer unlockFlag()

	solvedAt, err := s.admit(ctx, resolved, uid, ip, force)
	if err != nil {
		var rej *rejection
		if errors.As(err, &rej) {
			s.events.Log(ctx, ip, rej.eventType, resolved.FID, resolved.CID, uid)
			return "", rej.err
		}
		if _, ok := appErr.As(err); ok {
			return "", err
		}
		return "", appErr.Wrapf(err, appErr.DatabaseError, "redeem flag failed")
	}

	logger.Info(ctx, "flag redeemed",
		zap.String("uid", uid),
		zap.String("cid", resolved.CID),
		zap.Bool("force", force),
	)
	if s.publisher != nil {
		s.publisher.Publish(ctx, event.Solved{
			EventType: event.SolvedEventType,
			UID:       uid,
			CID:       resolved.CID,
			FID:       resolved.FID,
			SolvedAt:  solvedAt,
		})
	}
	return resolved.CID, nil
}

// admit runs the window, solved and quota checks and the insert in one
// transaction and returns the submission time.
func (s *FlagService) admit(ctx context.Context, resolved repository.Resolved, uid, ip string, force bool) (time.Time, error) {
	database, err := db.CurrentDatabase(s.database)
	if err != nil {
		return time.Time{}, err
	}
	var solvedAt time.Time
	err = database.Transaction(ctx, func(tx db.Transaction) error {
		f, err := s.flags.LockForUpdate(ctx, tx, resolved.FID)
		if err != nil {
			if errors.Is(err, repository.ErrFlagNotFound) {
				return reject(event.TypeFlagErrUnknown, appErr.UnknownFlag)
			}
			return err
		}
		now := s.now()

		if !force {
			window, err := s.windows.ActivityWindow(ctx, f.CID)
			if err != nil {
				return err
			}
			if !window.Contains(now) {
				return reject(event.TypeFlagErrInactive, appErr.InactiveChallenge)
			}
		}

		solved, err := s.submissions.HasSolved(ctx, tx, uid, f.CID, resolved.Team)
		if err != nil {
			return err
		}
		if solved {
			return reject(event.TypeFlagErrSolved, appErr.AlreadySolved)
		}

		if !force {
			count, err := s.submissions.CountByFlag(ctx, tx, f.FID)
			if err != nil {
				return err
			}
			if count >= f.MaxSubmissions {
				return reject(event.TypeFlagErrUsed, appErr.QuotaExceeded)
			}
		}

		submitEvent := event.Event{Timestamp: now.UTC(), IP: ip, Type: event.TypeFlagSubmit, Data: f.FID, CID: f.CID, UID: uid}
		if _, err := s.events.Record(ctx, tx, submitEvent); err != nil {
			return err
		}
		if _, err := s.submissions.Insert(ctx, tx, &repository.Submission{Timestamp: now, UID: uid, FID: f.FID}); err != nil {
			return err
		}
		solvedAt = now
		return nil
	})
	if err != nil && db.IsLockConflict(err) {
		return time.Time{}, appErr.Wrapf(err, appErr.TransactionFailed, "flag is busy, try again")
	}
	return solvedAt, err
}
