package mixer

import (
	"context"
	"errors"
	"net/netip"
	"strings"
	"testing"

	"github.com/nerrad567/webmixer/internal/infrastructure/config"
)

func TestAuxColour(t *testing.T) {
	first := auxColour(0, 4)
	if first != "#993333" {
		t.Errorf("auxColour(0, 4) = %q, want #993333", first)
	}
	if auxColour(1, 4) == first {
		t.Error("adjacent auxes share a colour")
	}
	if !strings.HasPrefix(auxColour(3, 0), "#") {
		t.Errorf("auxColour with no total = %q", auxColour(3, 0))
	}
}

func TestClientConfigOverrides(t *testing.T) {
	off := false
	order := 7
	s := testSettings()
	s.Channels = map[int]ChannelOverride{
		2: {Enabled: &off, Order: &order, Title: "Band", Icon: "drum"},
	}
	s.Auxiliaries = map[int]AuxOverride{
		1: {Colour: "#ff0000", Icon: "wedge"},
	}
	e, _ := newTestEngine(t, s)
	makeReady(t, e, 3, 2)
	// A channel without a cached name is left out.
	e.cache.entries = withoutKey(e.cache.entries, ChannelNamePattern.Format(3))

	cfg := e.clientConfig()
	if len(cfg.Channels) != 2 {
		t.Fatalf("channels = %d, want 2", len(cfg.Channels))
	}
	ch1, ch2 := cfg.Channels[0], cfg.Channels[1]
	if !ch1.Enabled || ch1.Order != 0 || ch1.Label != "Ch 1" || ch1.Channel != 1 {
		t.Errorf("channel 1 = %+v", ch1)
	}
	if ch2.Enabled || ch2.Order != 7 || ch2.Title != "Band" || ch2.Icon != "drum" {
		t.Errorf("channel 2 = %+v", ch2)
	}

	if cfg.Aux[0].Colour != "#ff0000" || cfg.Aux[0].Icon != "wedge" {
		t.Errorf("aux 1 = %+v", cfg.Aux[0])
	}
	if cfg.Aux[1].Colour != auxColour(1, 2) {
		t.Errorf("aux 2 colour = %q, want generated", cfg.Aux[1].Colour)
	}

	details := e.channelDetails()
	if details[0].Order != 1 {
		t.Errorf("admin default order = %d, want 1-based", details[0].Order)
	}
	if len(e.auxDetails()) != 2 {
		t.Errorf("aux details = %d, want 2", len(e.auxDetails()))
	}
}

func TestClientConfigEmptyCache(t *testing.T) {
	e, _ := newTestEngine(t, testSettings())
	cfg := e.clientConfig()
	if cfg.Channels == nil || cfg.Aux == nil {
		t.Error("empty lists should encode as [] not null")
	}
	if len(e.auxDetails()) != 0 || len(e.channelDetails()) != 0 {
		t.Error("details listed without desk data")
	}
}

func TestSettingsFromConfig(t *testing.T) {
	off := false
	cfg := config.Default()
	cfg.Desk.Host = "10.1.1.1"
	cfg.Desk.Port = 9100
	cfg.External = []config.EndpointConfig{{Name: "daw", Host: "10.1.1.2", Port: 8001, Broadcast: true}}
	cfg.Channels = []config.ChannelConfig{{Channel: 4, Enabled: &off, Title: "Vox"}}
	cfg.Auxiliaries = []config.AuxConfig{{Aux: 2, Colour: "#00ff00"}}

	s, err := SettingsFromConfig(cfg)
	if err != nil {
		t.Fatalf("SettingsFromConfig() error = %v", err)
	}
	if s.DeskHost != "10.1.1.1" || s.DeskPort != 9100 {
		t.Errorf("desk = %s:%d", s.DeskHost, s.DeskPort)
	}
	if len(s.Endpoints) != 1 || !s.Endpoints[0].Broadcast {
		t.Errorf("endpoints = %+v", s.Endpoints)
	}
	if s.channelEnabled(4) || !s.channelEnabled(5) {
		t.Error("channel enablement not taken from config")
	}
	if !s.auxEnabled(2) || s.Auxiliaries[2].Colour != "#00ff00" {
		t.Errorf("aux 2 = %+v", s.Auxiliaries[2])
	}
}

// stubLookup replaces hostname resolution for one test.
func stubLookup(t *testing.T, hosts map[string][]netip.Addr) {
	t.Helper()
	orig := lookupHost
	lookupHost = func(_ context.Context, host string) ([]netip.Addr, error) {
		addrs, ok := hosts[host]
		if !ok {
			return nil, errors.New("no such host")
		}
		return addrs, nil
	}
	t.Cleanup(func() { lookupHost = orig })
}

func TestSettingsFromConfig_ResolvesHostnames(t *testing.T) {
	stubLookup(t, map[string][]netip.Addr{
		"desk.local": {netip.MustParseAddr("::1"), netip.MustParseAddr("127.0.0.1")},
		"deck.local": {netip.MustParseAddr("10.0.0.9")},
	})
	cfg := config.Default()
	cfg.Desk.Host = "desk.local"
	cfg.External = []config.EndpointConfig{
		{Name: "deck", Host: "deck.local", Port: 9001},
		{Name: "mapped", Host: "::ffff:10.0.0.10", Port: 9002},
	}

	s, err := SettingsFromConfig(cfg)
	if err != nil {
		t.Fatalf("SettingsFromConfig() error = %v", err)
	}
	if s.DeskHost != "127.0.0.1" {
		t.Errorf("DeskHost = %q, want the IPv4 address", s.DeskHost)
	}
	if s.Endpoints[0].Host != "10.0.0.9" {
		t.Errorf("endpoint host = %q", s.Endpoints[0].Host)
	}
	if s.Endpoints[1].Host != "10.0.0.10" {
		t.Errorf("mapped endpoint host = %q", s.Endpoints[1].Host)
	}
}

func TestSettingsFromConfig_UnresolvableHost(t *testing.T) {
	stubLookup(t, nil)
	tests := []struct {
		name string
		edit func(*config.Config)
	}{
		{"desk", func(c *config.Config) { c.Desk.Host = "gone.local" }},
		{"endpoint", func(c *config.Config) {
			c.External = []config.EndpointConfig{{Name: "deck", Host: "gone.local", Port: 9001}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.edit(cfg)
			if _, err := SettingsFromConfig(cfg); err == nil {
				t.Error("SettingsFromConfig() succeeded with an unresolvable host")
			}
		})
	}
}

func withoutKey(m map[string]Message, key string) map[string]Message {
	delete(m, key)
	return m
}
