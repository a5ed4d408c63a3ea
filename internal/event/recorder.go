package event

import (
	"context"
	"time"

	"ctfoj/internal/common/db"
	"ctfoj/pkg/utils/logger"

	"go.uber.org/zap"
)

// Recorder writes audit events and mirrors each one to the service log.
type Recorder struct {
	repo Repository
	now  func() time.Time
}

func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo, now: time.Now}
}

// Record persists ev, optionally inside tx, and returns its id.
func (r *Recorder) Record(ctx context.Context, tx db.Transaction, ev Event) (int64, error) {
	ev.Data = Truncate(ev.Data)
	if ev.Timestamp.IsZero() {
		ev.Timestamp = r.now().UTC()
	}
	id, err := r.repo.Append(ctx, tx, &ev)
	fields := []zap.Field{
		zap.String("type", ev.Type),
		zap.String("ip", ev.IP),
		zap.String("cid", ev.CID),
		zap.String("uid", ev.UID),
		zap.String("data", ev.Data),
	}
	if err != nil {
		logger.Error(ctx, "persist event failed", append(fields, zap.Error(err))...)
		return 0, err
	}
	logger.Info(ctx, "event", append(fields, zap.Int64("event_id", id))...)
	return id, nil
}

// Log records an event outside any transaction. Persistence failures are
// logged and otherwise ignored.
func (r *Recorder) Log(ctx context.Context, ip, typ, data, cid, uid string) int64 {
	id, _ := r.Record(ctx, nil, Event{IP: ip, Type: typ, Data: data, CID: cid, UID: uid})
	return id
}

// Amend replaces the data of an already written event.
func (r *Recorder) Amend(ctx context.Context, id int64, data string) {
	if id == 0 {
		return
	}
	if err := r.repo.UpdateData(ctx, id, Truncate(data)); err != nil {
		logger.Warn(ctx, "amend event failed", zap.Int64("event_id", id), zap.Error(err))
	}
}

// Recent lists matching events, newest first.
func (r *Recorder) Recent(ctx context.Context, filter Filter) ([]Event, error) {
	return r.repo.List(ctx, filter)
}
