package gateway

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/solostec/smf/internal/store"
)

// Gateway owns the readout/push scheduler for one server-id and the
// store tables it reads and writes. It starts one scheduled readout
// job, which classifies by every active _DataCollector row on each run,
// and one job per _PushOps row, matching §4.5's "At boot, a push task
// is started per row."
type Gateway struct {
	ServerID  string
	Store     *store.Store
	Buckets   Buckets
	Transport Transport
	Logger    *log.Logger

	scheduler gocron.Scheduler
	jobs      map[string]gocron.Job
}

// New creates a Gateway bound to serverID. Transport may be nil if the
// gateway only runs the readout/classification half of the pipeline
// (no push targets configured).
func New(serverID string, st *store.Store, buckets Buckets, transport Transport, logger *log.Logger) (*Gateway, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Gateway{
		ServerID:  serverID,
		Store:     st,
		Buckets:   buckets,
		Transport: transport,
		Logger:    logger,
		scheduler: s,
		jobs:      make(map[string]gocron.Job),
	}, nil
}

// Start schedules a readout job at readoutInterval and one push job per
// current _PushOps row bound to the gateway's server-id, then starts
// the scheduler.
func (g *Gateway) Start(ctx context.Context, readoutInterval time.Duration) error {
	_, err := g.scheduler.NewJob(
		gocron.DurationJob(readoutInterval),
		gocron.NewTask(func() {
			n := RunReadoutCycle(g.Store, g.Buckets, g.ServerID, time.Now())
			if n > 0 {
				g.Logger.Printf("gateway: readout cycle for %s consumed %d readouts", g.ServerID, n)
			}
		}),
	)
	if err != nil {
		return err
	}

	if g.Transport != nil {
		for key, row := range g.Store.PushOps.Snapshot() {
			if key.ServerID != g.ServerID {
				continue
			}
			if err := g.startPush(ctx, key.PushID, row.Value); err != nil {
				return err
			}
		}
	}

	g.scheduler.Start()
	return nil
}

func (g *Gateway) startPush(ctx context.Context, pushID string, op store.PushOp) error {
	job, err := StartPushTask(ctx, g.scheduler, g.Store, g.Buckets, g.Transport, g.ServerID, op, g.Logger)
	if err != nil {
		return err
	}
	g.jobs[pushID] = job
	row := op
	row.TaskHandle = pushID
	g.Store.PushOps.Put(store.PushOpKey{ServerID: g.ServerID, PushID: pushID}, row, "gateway")
	return nil
}

// StartDiscovery schedules a recurring wireless M-Bus inventory scan
// on the gateway's own job scheduler (§4.5 "Meter inventory"). A nil
// scanner or non-positive interval is a no-op: discovery is optional,
// most gateways run wired-only meters.
func (g *Gateway) StartDiscovery(scanner Scanner, interval time.Duration, autoActivate bool) error {
	if scanner == nil || interval <= 0 {
		return nil
	}
	_, err := StartDiscoveryLoop(g.scheduler, g.Store, scanner, interval, autoActivate, g.Logger)
	return err
}

// Stop shuts the scheduler down, cancelling every readout and push job.
func (g *Gateway) Stop() error {
	return g.scheduler.Shutdown()
}
