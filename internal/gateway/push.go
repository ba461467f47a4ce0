package gateway

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/solostec/smf/internal/sml"
	"github.com/solostec/smf/internal/stats"
	"github.com/solostec/smf/internal/store"
)

// Transport is the subset of IP-T push-channel operations a push task
// needs; the concrete implementation lives in internal/ipt plus a live
// connection, kept behind an interface here so gateway tests don't
// need a real socket.
type Transport interface {
	OpenChannel(ctx context.Context, target, deviceID string) (channel, source uint32, err error)
	TransferPushdata(ctx context.Context, channel, source uint32, data []byte) error
	CloseChannel(ctx context.Context, channel uint32) error
}

// BuildProfileListResponse renders a Bucket as the single SML message
// §8 scenario 4 names: "a single SML get-profile-list-response framed
// inside transfer.pushdata".
func BuildProfileListResponse(serverID string, b Bucket) sml.Message {
	entries := make([]sml.PeriodEntry, 0, len(b.Values))
	for code, rd := range b.Values {
		entries = append(entries, sml.PeriodEntry{
			ObjName: code,
			Value:   sml.Int(64, rd.Value).Scaled(rd.Scaler, sml.Unit(rd.Unit)),
		})
	}
	body := sml.GetProfileListRes{
		ServerID: []byte(serverID),
		ActTime:  sml.Timestamp(b.At),
		ValTime:  sml.Timestamp(b.At),
		Entries:  entries,
	}
	return sml.Message{TrxID: sml.NewTrxID(), Body: body}
}

// pushOnce performs one open/send/close cycle for a push op against
// its most recent bucket. It reports whether a bucket was available to
// send at all (no bucket yet is not a failure, just nothing to do).
func pushOnce(ctx context.Context, st *store.Store, buckets Buckets, transport Transport, serverID string, op store.PushOp) (bool, error) {
	var latest Bucket
	var found bool
	for key, b := range buckets.Snapshot() {
		if b.Value.ServerID != serverID || string(b.Value.Profile) != op.Profile {
			continue
		}
		if !found || b.Value.At.After(latest.At) {
			latest = b.Value
			found = true
		}
		_ = key
	}
	if !found {
		return false, nil
	}

	stats.Inc(stats.PushAttempts, 1)

	channel, source, err := transport.OpenChannel(ctx, op.Target, serverID)
	if err != nil {
		stats.Inc(stats.PushFailures, 1)
		return true, fmt.Errorf("gateway: open push channel to %s: %w", op.Target, err)
	}

	msg := BuildProfileListResponse(serverID, latest)
	frame := sml.EncodeEnvelope(msg)
	if err := transport.TransferPushdata(ctx, channel, source, frame); err != nil {
		stats.Inc(stats.PushFailures, 1)
		_ = transport.CloseChannel(ctx, channel)
		return true, fmt.Errorf("gateway: transfer pushdata to %s: %w", op.Target, err)
	}

	if err := transport.CloseChannel(ctx, channel); err != nil {
		return true, fmt.Errorf("gateway: close push channel to %s: %w", op.Target, err)
	}
	return true, nil
}

// StartPushTask schedules op on scheduler: it sleeps Delay, then on
// every Interval tick attempts pushOnce, retrying a failed open with
// exponential back-off capped at Interval (§4.5 "Push scheduling").
func StartPushTask(ctx context.Context, scheduler gocron.Scheduler, st *store.Store, buckets Buckets, transport Transport, serverID string, op store.PushOp, logger *log.Logger) (gocron.Job, error) {
	if logger == nil {
		logger = log.Default()
	}
	var ran bool
	task := func() {
		if !ran {
			ran = true
			select {
			case <-time.After(op.Delay):
			case <-ctx.Done():
				return
			}
		}
		backoff := time.Second
		for {
			attempted, err := pushOnce(ctx, st, buckets, transport, serverID, op)
			if err == nil {
				return
			}
			if !attempted {
				return
			}
			logger.Printf("gateway: push op %s/%s failed: %v", serverID, op.Target, err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff *= 2
			if backoff > op.Interval {
				backoff = op.Interval
				return
			}
		}
	}

	job, err := scheduler.NewJob(
		gocron.DurationJob(op.Interval),
		gocron.NewTask(task),
	)
	if err != nil {
		return nil, fmt.Errorf("gateway: schedule push op: %w", err)
	}
	return job, nil
}
