package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"ctfoj/internal/challenge"
	"ctfoj/internal/common/db"
	"ctfoj/internal/event"
	"ctfoj/internal/flag/repository"
	appErr "ctfoj/pkg/errors"
)

const tokenBytes = 16

// UserDirectory answers whether a uid is a known user.
type UserDirectory interface {
	Exists(ctx context.Context, uid string) (bool, error)
}

// WindowResolver returns the activity window of a challenge.
type WindowResolver interface {
	ActivityWindow(ctx context.Context, cid string) (challenge.Window, error)
}

// EventRecorder persists audit events.
type EventRecorder interface {
	Record(ctx context.Context, tx db.Transaction, ev event.Event) (int64, error)
	Log(ctx context.Context, ip, typ, data, cid, uid string) int64
}

// SolvePublisher receives committed solves.
type SolvePublisher interface {
	Publish(ctx context.Context, ev event.Solved)
}

// Config holds flag service dependencies and settings.
type Config struct {
	Database    db.Provider
	Flags       repository.FlagRepository
	Submissions repository.SubmissionRepository
	Users       UserDirectory
	Windows     WindowResolver
	Events      EventRecorder
	// Publisher is optional.
	Publisher SolvePublisher

	DBTimeout time.Duration
	Now       func() time.Time
}

// FlagService issues flags and admits redemptions.
type FlagService struct {
	database    db.Provider
	flags       repository.FlagRepository
	submissions repository.SubmissionRepository
	users       UserDirectory
	windows     WindowResolver
	events      EventRecorder
	publisher   SolvePublisher

	userLocks *keyedMutex
	teamLocks *keyedMutex
	flagLocks *keyedMutex

	dbTimeout time.Duration
	now       func() time.Time
}

func NewFlagService(cfg Config) (*FlagService, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("database provider is required")
	}
	if cfg.Flags == nil || cfg.Submissions == nil {
		return nil, fmt.Errorf("flag and submission repositories are required")
	}
	if cfg.Users == nil {
		return nil, fmt.Errorf("user directory is required")
	}
	if cfg.Windows == nil {
		return nil, fmt.Errorf("window resolver is required")
	}
	if cfg.Events == nil {
		return nil, fmt.Errorf("event recorder is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &FlagService{
		database:    cfg.Database,
		flags:       cfg.Flags,
		submissions: cfg.Submissions,
		users:       cfg.Users,
		windows:     cfg.Windows,
		events:      cfg.Events,
		publisher:   cfg.Publisher,
		userLocks:   newKeyedMutex(),
		teamLocks:   newKeyedMutex(),
		flagLocks:   newKeyedMutex(),
		dbTimeout:   cfg.DBTimeout,
		now:         cfg.Now,
	}, nil
}

// Issue stores a flag for cid, replacing any flag with the same token.
// An empty token gets a random one.
func (s *FlagService) Issue(ctx context.Context, cid string, maxSubmissions int, token string) (string, error) {
	if cid == "" {
		return "", appErr.ValidationError("cid", "required")
	}
	if maxSubmissions < 0 {
		return "", appErr.ValidationError("max_submissions", "negative")
	}
	if token == "" {
		var err error
		token, err = randomToken()
		if err != nil {
			return "", appErr.InternalError(err)
		}
	}
	ctxDB := withTimeout(ctx, s.dbTimeout)
	defer ctxDB.cancel()
	f := repository.Flag{FID: token, CID: cid, MaxSubmissions: maxSubmissions}
	if err := s.flags.Upsert(ctxDB.ctx, nil, f); err != nil {
		return "", appErr.Wrapf(err, appErr.DatabaseError, "store flag failed")
	}
	return token, nil
}

// IssueAndLog issues a flag and records a flag-create event.
func (s *FlagService) IssueAndLog(ctx context.Context, ip, uid, cid string, maxSubmissions int, token string) (string, error) {
	fid, err := s.Issue(ctx, cid, maxSubmissions, token)
	if err != nil {
		return "", err
	}
	s.events.Log(ctx, ip, event.TypeFlagCreate, fid, cid, uid)
	return fid, nil
}

// SetLimit changes the quota of fid. A nil limit freezes the flag at its
// current number of submissions. The effective limit is returned.
func (s *FlagService) SetLimit(ctx context.Context, fid string, limit *int) (int, error) {
	if limit != nil && *limit < 0 {
		return 0, appErr.ValidationError("max_submissions", "negative")
	}
	database, err := db.CurrentDatabase(s.database)
	if err != nil {
		return 0, appErr.Wrapf(err, appErr.DatabaseError, "database unavailable")
	}
	var effective int
	err = database.Transaction(ctx, func(tx db.Transaction) error {
		if _, err := s.flags.LockForUpdate(ctx, tx, fid); err != nil {
			return err
		}
		if limit != nil {
			effective = *limit
		} else {
			count, err := s.submissions.CountByFlag(ctx, tx, fid)
			if err != nil {
				return err
			}
			effective = count
		}
		return s.flags.SetLimit(ctx, tx, fid, effective)
	})
	if err != nil {
		return 0, mapFlagError(err, fid)
	}
	return effective, nil
}

// List returns flags with their usage, optionally for one challenge only.
func (s *FlagService) List(ctx context.Context, cid string) ([]repository.Usage, error) {
	ctxDB := withTimeout(ctx, s.dbTimeout)
	defer ctxDB.cancel()
	flags, err := s.flags.List(ctxDB.ctx, cid)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list flags failed")
	}
	return flags, nil
}

// Submissions lists the accepted redemptions of fid.
func (s *FlagService) Submissions(ctx context.Context, fid string) ([]repository.Submission, error) {
	ctxDB := withTimeout(ctx, s.dbTimeout)
	defer ctxDB.cancel()
	list, err := s.submissions.ListByFlag(ctxDB.ctx, fid)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list submissions failed")
	}
	return list, nil
}

// Revoke deletes the submissions of fid, only those of uid when uid is set,
// and returns how many were removed.
func (s *FlagService) Revoke(ctx context.Context, fid, uid string) (int64, error) {
	database, err := db.CurrentDatabase(s.database)
	if err != nil {
		return 0, appErr.Wrapf(err, appErr.DatabaseError, "database unavailable")
	}
	unlock := s.flagLocks.Lock(fid)
	defer unlock()

	var removed int64
	err = database.Transaction(ctx, func(tx db.Transaction) error {
		if _, err := s.flags.LockForUpdate(ctx, tx, fid); err != nil {
			return err
		}
		n, err := s.submissions.Delete(ctx, tx, fid, uid)
		removed = n
		return err
	})
	if err != nil {
		return 0, mapFlagError(err, fid)
	}
	return removed, nil
}

// Delete removes a flag that has never been redeemed.
func (s *FlagService) Delete(ctx context.Context, fid string) error {
	database, err := db.CurrentDatabase(s.database)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "database unavailable")
	}
	unlock := s.flagLocks.Lock(fid)
	defer unlock()

	err = database.Transaction(ctx, func(tx db.Transaction) error {
		if _, err := s.flags.LockForUpdate(ctx, tx, fid); err != nil {
			return err
		}
		count, err := s.submissions.CountByFlag(ctx, tx, fid)
		if err != nil {
			return err
		}
		if count > 0 {
			return appErr.Newf(appErr.FlagInUse, "Flag %s has %d submissions", fid, count)
		}
		return s.flags.Delete(ctx, tx, fid)
	})
	return mapFlagError(err, fid)
}

func mapFlagError(err error, fid string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrFlagNotFound) {
		return appErr.Newf(appErr.NotFound, "Unknown flag: %s", fid)
	}
	if _, ok := appErr.As(err); ok {
		return err
	}
	return appErr.Wrapf(err, appErr.DatabaseError, "flag operation failed")
}

func randomToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes failed: %w", err)
	}
	return flagPrefix + hex.EncodeToString(buf) + flagSuffix, nil
}

type timeoutCtx struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func withTimeout(ctx context.Context, timeout time.Duration) timeoutCtx {
	if timeout <= 0 {
		return timeoutCtx{ctx: ctx, cancel: func() {}}
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
	return timeoutCtx{ctx: ctxTimeout, cancel: cancel}
}
