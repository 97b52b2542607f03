package config

import (
	"os"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

const appID = "sensorgw"

// MachineID identifies this gateway. The machine ID is hashed with the
// application ID so the raw ID never leaves the host. The host name is
// used when no machine ID is available.
func MachineID() string {
	id, err := machineid.ProtectedID(appID)
	if err == nil {
		return id[:12]
	}
	glog.Warningf("machine id: %v", err)
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return appID
}

// GatewayID returns the configured ID or the machine ID.
func (c *Config) GatewayID() string {
	if c.ID != "" {
		return c.ID
	}
	return MachineID()
}
