// Package netutil finds the address the mixer is reachable on, for the
// startup banner and the client config.
package netutil

import (
	"net"
	"strconv"
)

// LocalIPv4 returns the first IPv4 address of an interface that is up
// and not a loopback, or "127.0.0.1" when there is none.
func LocalIPv4() string {
	addrs, err := interfaceAddrs()
	if err != nil {
		return loopback
	}
	return pickIPv4(addrs)
}

const loopback = "127.0.0.1"

func interfaceAddrs() ([]net.Addr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var addrs []net.Addr
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		a, err := iface.Addrs()
		if err != nil {
			continue
		}
		addrs = append(addrs, a...)
	}
	return addrs, nil
}

// pickIPv4 prefers private addresses, since the desk and the browsers sit on
// the same LAN.
func pickIPv4(addrs []net.Addr) string {
	var fallback string
	for _, addr := range addrs {
		var ip net.IP
		switch a := addr.(type) {
		case *net.IPNet:
			ip = a.IP
		case *net.IPAddr:
			ip = a.IP
		}
		ip4 := ip.To4()
		if ip4 == nil || ip4.IsLoopback() || ip4.IsLinkLocalUnicast() {
			continue
		}
		if ip4.IsPrivate() {
			return ip4.String()
		}
		if fallback == "" {
			fallback = ip4.String()
		}
	}
	if fallback == "" {
		return loopback
	}
	return fallback
}

// URL formats an http URL for host and port.
func URL(host string, port int, path string) string {
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port)) + path
}
