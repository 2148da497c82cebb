package mixer

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/nerrad567/webmixer/internal/infrastructure/config"
)

// resolveTimeout bounds the lookup of one configured hostname.
const resolveTimeout = 5 * time.Second

// lookupHost resolves a hostname. Replaced in tests.
var lookupHost = func(ctx context.Context, host string) ([]netip.Addr, error) {
	return net.DefaultResolver.LookupNetIP(ctx, "ip", host)
}

// Endpoint is an external UDP relay destination such as a StreamDeck or a DAW.
type Endpoint struct {
	Name      string
	Host      string
	Port      int
	Broadcast bool
	Loopback  bool
}

// ChannelOverride customises one input channel for clients.
// A nil pointer keeps the default.
type ChannelOverride struct {
	Enabled *bool
	Order   *int
	Title   string
	Icon    string
}

// AuxOverride customises one auxiliary bus for clients.
type AuxOverride struct {
	Enabled *bool
	Colour  string
	Icon    string
}

// Settings is the live configuration the engine reads while routing.
// Channel and aux maps are keyed by 1-based number.
type Settings struct {
	DeskHost    string
	DeskPort    int
	Endpoints   []Endpoint
	Channels    map[int]ChannelOverride
	Auxiliaries map[int]AuxOverride
}

// SettingsFromConfig extracts the routing settings from the loaded
// configuration. Desk and endpoint hostnames are resolved here, once, so the
// engine compares and sends to IP addresses only.
func SettingsFromConfig(cfg *config.Config) (Settings, error) {
	deskIP, err := resolveIP(cfg.Desk.Host)
	if err != nil {
		return Settings{}, fmt.Errorf("desk: %w", err)
	}
	s := Settings{
		DeskHost:    deskIP,
		DeskPort:    cfg.Desk.Port,
		Endpoints:   make([]Endpoint, 0, len(cfg.External)),
		Channels:    make(map[int]ChannelOverride, len(cfg.Channels)),
		Auxiliaries: make(map[int]AuxOverride, len(cfg.Auxiliaries)),
	}
	for _, ep := range cfg.External {
		ip, err := resolveIP(ep.Host)
		if err != nil {
			return Settings{}, fmt.Errorf("endpoint %q: %w", ep.Name, err)
		}
		s.Endpoints = append(s.Endpoints, Endpoint{
			Name:      ep.Name,
			Host:      ip,
			Port:      ep.Port,
			Broadcast: ep.Broadcast,
			Loopback:  ep.Loopback,
		})
	}
	for _, ch := range cfg.Channels {
		s.Channels[ch.Channel] = ChannelOverride{
			Enabled: ch.Enabled,
			Order:   ch.Order,
			Title:   ch.Title,
			Icon:    ch.Icon,
		}
	}
	for _, aux := range cfg.Auxiliaries {
		s.Auxiliaries[aux.Aux] = AuxOverride{
			Enabled: aux.Enabled,
			Colour:  aux.Colour,
			Icon:    aux.Icon,
		}
	}
	return s, nil
}

// resolveIP returns host as a canonical IP string. Literals are returned
// without a lookup; IPv4 is preferred when a name has both families.
func resolveIP(host string) (string, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.Unmap().String(), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()
	addrs, err := lookupHost(ctx, host)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("resolving %s: no addresses", host)
	}
	best := addrs[0].Unmap()
	for _, a := range addrs {
		if a.Unmap().Is4() {
			best = a.Unmap()
			break
		}
	}
	return best.String(), nil
}

func (s Settings) channelEnabled(ch int) bool {
	if o, ok := s.Channels[ch]; ok && o.Enabled != nil {
		return *o.Enabled
	}
	return true
}

func (s Settings) auxEnabled(aux int) bool {
	if o, ok := s.Auxiliaries[aux]; ok && o.Enabled != nil {
		return *o.Enabled
	}
	return true
}
