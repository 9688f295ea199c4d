package raft

import "testing"

func TestConfig_Validate(t *testing.T) {
	base := DefaultConfig()
	base.ServerID = 1
	base.ClusterSize = 3

	if err := base.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	cases := []struct {
		name   string
		modify func(c *Config)
	}{
		{"zero server id", func(c *Config) { c.ServerID = 0 }},
		{"zero cluster size", func(c *Config) { c.ClusterSize = 0 }},
		{"server id beyond cluster", func(c *Config) { c.ServerID = 4 }},
		{"zero election min", func(c *Config) { c.ElectionTimeoutMin = 0 }},
		{"max not greater than min", func(c *Config) { c.ElectionTimeoutMax = c.ElectionTimeoutMin }},
		{"zero heartbeat", func(c *Config) { c.HeartbeatInterval = 0 }},
		{"zero rpc timeout", func(c *Config) { c.RPCTimeout = 0 }},
		{"zero rpc backoff", func(c *Config) { c.RPCBackoff = 0 }},
	}
	for _, c := range cases {
		cfg := base
		c.modify(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", c.name)
		}
	}
}

func TestConfig_Majority(t *testing.T) {
	cases := []struct {
		size uint16
		want int
	}{
		{1, 1},
		{2, 2},
		{3, 2},
		{4, 3},
		{5, 3},
	}
	for _, c := range cases {
		cfg := Config{ClusterSize: c.size}
		if got := cfg.Majority(); got != c.want {
			t.Fatalf("Majority() for size %d = %d, want %d", c.size, got, c.want)
		}
	}
}
