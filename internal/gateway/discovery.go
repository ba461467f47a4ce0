package gateway

import (
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/solostec/smf/internal/store"
)

// Scanner reports the wireless M-Bus server-ids currently visible on
// the radio. No wireless-LMN radio driver exists in this codebase's
// dependency set, so real discovery is left pluggable: a concrete
// Scanner reading the configured WirelessLMN serial port is a
// follow-on, not invented here (DESIGN.md "Known gaps").
type Scanner interface {
	Scan() []string
}

// NoopScanner is a Scanner that never finds anything, the default when
// no wireless-LMN hardware is configured.
type NoopScanner struct{}

func (NoopScanner) Scan() []string { return nil }

// StartDiscoveryLoop schedules a recurring wireless M-Bus inventory
// scan on scheduler: every interval, it asks scanner which server-ids
// are currently visible and merges each into _DeviceMBUS via
// ObserveMBUS (§4.5 "Meter inventory").
func StartDiscoveryLoop(scheduler gocron.Scheduler, st *store.Store, scanner Scanner, interval time.Duration, autoActivate bool, logger *log.Logger) (gocron.Job, error) {
	if logger == nil {
		logger = log.Default()
	}
	job, err := scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ids := scanner.Scan()
			if len(ids) == 0 {
				return
			}
			now := time.Now()
			for _, id := range ids {
				ObserveMBUS(st, id, autoActivate, now)
			}
			logger.Printf("gateway: wireless M-Bus scan observed %d device(s)", len(ids))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("gateway: schedule discovery loop: %w", err)
	}
	return job, nil
}

// ObserveMBUS merges a freshly observed wireless M-Bus server-id into
// _DeviceMBUS (§4.5 "Meter inventory"). A never-seen server-id is
// inserted disabled unless autoActivate is set; an existing row only
// has its LastSeen timestamp bumped, preserving any operator-set
// Enabled/Class/AESKey.
func ObserveMBUS(st *store.Store, serverID string, autoActivate bool, now time.Time) {
	existing, ok := st.DeviceMBUS.Get(serverID)
	if !ok {
		st.DeviceMBUS.Put(serverID, store.DeviceMBUS{
			Status:        "discovered",
			Enabled:       autoActivate,
			AutoActivated: autoActivate,
			FirstSeen:     now,
			LastSeen:      now,
		}, "gateway")
		return
	}
	existing.LastSeen = now
	st.DeviceMBUS.Put(serverID, existing, "gateway")
}
