package scoreboard

import (
	"context"
	"fmt"
	"time"

	"ctfoj/internal/common/mq"
	"ctfoj/internal/event"
	"ctfoj/pkg/utils/logger"

	"go.uber.org/zap"
)

// TeamResolver maps a user to their team.
type TeamResolver interface {
	TeamOf(ctx context.Context, uid string) (string, bool, error)
}

// Updater feeds solves into a Board. It works both as an in-process solve
// observer and as a queue message handler.
type Updater struct {
	board *Board
	teams TeamResolver
}

func NewUpdater(board *Board, teams TeamResolver) *Updater {
	return &Updater{board: board, teams: teams}
}

// OnSolved applies one solve. Users without a team score as themselves.
func (u *Updater) OnSolved(ctx context.Context, ev event.Solved) error {
	team := ev.UID
	if u.teams != nil {
		tid, ok, err := u.teams.TeamOf(ctx, ev.UID)
		if err != nil {
			return fmt.Errorf("resolve team of %s failed: %w", ev.UID, err)
		}
		if ok {
			team = tid
		}
	}
	at := ev.SolvedAt
	if at.IsZero() {
		at = time.Now()
	}
	applied, err := u.board.Apply(ctx, team, ev.CID, at)
	if err != nil {
		return err
	}
	logger.Info(ctx, "scoreboard updated",
		zap.String("team", team),
		zap.String("cid", ev.CID),
		zap.Bool("applied", applied),
	)
	return nil
}

// HandleMessage is an mq.HandlerFunc for the solve topic. Malformed
// messages are dropped.
func (u *Updater) HandleMessage(ctx context.Context, message *mq.Message) error {
	ev, ok, err := event.DecodeSolved(message)
	if err != nil {
		logger.Warn(ctx, "drop malformed solve message", zap.String("message_id", message.ID), zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	return u.OnSolved(ctx, ev)
}

// Subscribe registers HandleMessage on topic.
func (u *Updater) Subscribe(ctx context.Context, consumer mq.Consumer, topic, group string) error {
	if topic == "" {
		topic = event.DefaultSolvedTopic
	}
	return consumer.SubscribeWithOptions(ctx, topic, u.HandleMessage, &mq.SubscribeOptions{
		ConsumerGroup: group,
		Concurrency:   1,
	})
}

// Replay rebuilds the board from historical solves in order.
func (u *Updater) Replay(ctx context.Context, solves []event.Solved) error {
	if err := u.board.Reset(ctx); err != nil {
		return err
	}
	for _, ev := range solves {
		if err := u.OnSolved(ctx, ev); err != nil {
			return err
		}
	}
	logger.Info(ctx, "scoreboard replayed", zap.Int("solves", len(solves)))
	return nil
}
