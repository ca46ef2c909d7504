// Copyright 2025 R5 Labs
// This file is part of the R5 Core library.
//
// This software is provided "as is", without warranty of any kind,
// express or implied, including but not limited to the warranties
// of merchantability, fitness for a particular purpose and
// noninfringement. In no event shall the authors or copyright
// holders be liable for any claim, damages, or other liability,
// whether in an action of contract, tort or otherwise, arising
// from, out of or in connection with the software or the use or
// other dealings in the software.

// Package config defines the environment knobs an external bootstrap
// process supplies to the ETP core: the BESS server bind
// address, the discovery multicast group/port, the event bus queue depth,
// and the default values a freshly registered BESS starts with. Process
// bootstrap itself is out of scope for the core — this package defines
// the struct, loads it from a TOML file, and validates it.
package config

import (
	"fmt"
	"net"
	"os"

	"github.com/naoina/toml"

	"github.com/voltmesh/etp-core/etp"
)

// Config holds the environment-supplied knobs for one ETP core instance.
type Config struct {
	BindAddress            string  `toml:"bind_address"`
	MulticastGroup         string  `toml:"multicast_group"`
	MulticastPort          int     `toml:"multicast_port"`
	EventBusQueueDepth     int     `toml:"event_bus_queue_depth"`
	DefaultPercentForSale  float64 `toml:"default_percent_for_sale"`
	DefaultStartChargeFrac float64 `toml:"default_start_charge_frac"`
	DefaultHealthStatus    int     `toml:"default_health_status"`
	NATEnabled             bool    `toml:"nat_enabled"`
}

// Default returns the baseline defaults: a 50% default fraction for
// sale, a battery starting at 80% charge, and health status 1 (good).
func Default() *Config {
	return &Config{
		BindAddress:            "0.0.0.0:9400",
		MulticastGroup:         "239.10.10.10",
		MulticastPort:          9401,
		EventBusQueueDepth:     256,
		DefaultPercentForSale:  50.0,
		DefaultStartChargeFrac: 0.80,
		DefaultHealthStatus:    1,
		NATEnabled:             false,
	}
}

// Load reads a TOML config file on top of Default, so any field absent
// from the file keeps its default value (a field set explicitly in the
// file, even to zero, overrides it), then validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	cfg := Default()
	if err := toml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the core cannot run with: a missing
// bind address, a non-multicast discovery group, a default sale
// percentage outside [0,100], a default start charge fraction outside
// [0,1], or a non-positive event bus queue depth.
func (c *Config) Validate() error {
	if c.BindAddress == "" {
		return &etp.Error{Kind: etp.KindConfiguration, Err: fmt.Errorf("bind_address must not be empty")}
	}
	ip := net.ParseIP(c.MulticastGroup)
	if ip == nil || !ip.IsMulticast() {
		return &etp.Error{Kind: etp.KindConfiguration, Err: fmt.Errorf("multicast_group %q is not a multicast address", c.MulticastGroup)}
	}
	if c.DefaultPercentForSale < 0 || c.DefaultPercentForSale > 100 {
		return &etp.Error{Kind: etp.KindConfiguration, Err: fmt.Errorf("default_percent_for_sale %v out of range [0,100]", c.DefaultPercentForSale)}
	}
	if c.DefaultStartChargeFrac < 0 || c.DefaultStartChargeFrac > 1 {
		return &etp.Error{Kind: etp.KindConfiguration, Err: fmt.Errorf("default_start_charge_frac %v out of range [0,1]", c.DefaultStartChargeFrac)}
	}
	if c.EventBusQueueDepth <= 0 {
		return &etp.Error{Kind: etp.KindConfiguration, Err: fmt.Errorf("event_bus_queue_depth must be positive")}
	}
	return nil
}
