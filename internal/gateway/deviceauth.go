package gateway

import (
	"github.com/solostec/smf/internal/auth"
	"github.com/solostec/smf/internal/store"
)

// DeviceChecker validates a field device's IP-T login against TDevice
// rows instead of a fixed account/password map: the account names a
// device, and Check fails the same way auth.Static fails for an
// unknown account if the device is disabled, missing, or the password
// does not match (§4.2 "req.login.public/scrambled").
type DeviceChecker struct {
	Store *store.Store
}

var _ auth.Checker = DeviceChecker{}

func (c DeviceChecker) Check(account, password string) error {
	for _, row := range c.Store.Devices.Snapshot() {
		if row.Value.Name != account {
			continue
		}
		if !row.Value.Enabled || row.Value.Password != password {
			return auth.ErrDenied
		}
		return nil
	}
	return auth.ErrDenied
}
