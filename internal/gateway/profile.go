// Package gateway implements the readout pipeline: meter discovery,
// data-collector profile classification, the periodic readout task,
// and push scheduling (§4.5). Periodic jobs use
// github.com/go-co-op/gocron/v2, grounded on the cc-backend example's
// internal/taskManager package, which schedules its own retention and
// aggregation jobs the same way (gocron.NewScheduler() /
// s.NewJob(gocron.DurationJob(d), gocron.NewTask(fn))).
package gateway

import (
	"fmt"
	"time"
)

// Profile names the fixed set of data-collector profiles (§4.5).
type Profile string

const (
	ProfileOneMin      Profile = "1-min"
	ProfileFifteenMin  Profile = "15-min"
	ProfileSixtyMin    Profile = "60-min"
	ProfileTwentyFourH Profile = "24-h"
	ProfileLast2H      Profile = "last-2h"
	ProfileLastWeek    Profile = "last-week"
	ProfileOneMonth    Profile = "1-month"
	ProfileOneYear     Profile = "1-year"
	ProfileInitial     Profile = "initial"
)

// bucketInterval returns the truncation interval for a profile. Profiles with
// no fixed period of their own (last-2h, last-week, initial) return 0;
// callers treat a zero interval as "rolling window", not "aligned
// bucket".
func (p Profile) bucketInterval() time.Duration {
	switch p {
	case ProfileOneMin:
		return time.Minute
	case ProfileFifteenMin:
		return 15 * time.Minute
	case ProfileSixtyMin:
		return time.Hour
	case ProfileTwentyFourH:
		return 24 * time.Hour
	case ProfileOneMonth:
		return 30 * 24 * time.Hour
	case ProfileOneYear:
		return 365 * 24 * time.Hour
	default:
		return 0
	}
}

// BucketKey returns the persistent profile-table key for serverID at
// time t under profile: "(server-id, hour(t))" for 60-min, and
// analogously for the other aligned profiles (§8 scenario 4).
func BucketKey(serverID string, profile Profile, t time.Time) string {
	interval := profile.bucketInterval()
	if interval <= 0 {
		return fmt.Sprintf("%s/%s/%d", serverID, profile, t.Unix())
	}
	aligned := t.Truncate(interval)
	return fmt.Sprintf("%s/%s/%d", serverID, profile, aligned.Unix())
}
