package server

import (
	"fmt"
	"net"
)

// HostIPv4 resolves the IPv4 address media URLs are advertised under.
// With a name it looks up that interface; with an empty name it takes
// the first up, non-loopback interface carrying an IPv4 address.
func HostIPv4(ifaceName string) (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("list interfaces: %w", err)
	}

	for _, iface := range ifaces {
		if ifaceName != "" {
			if iface.Name != ifaceName {
				continue
			}
		} else if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil {
				return ipnet.IP.String(), nil
			}
		}
	}

	if ifaceName != "" {
		return "", fmt.Errorf("interface %s not found or has no IPv4 address", ifaceName)
	}
	return "", fmt.Errorf("no interface with an IPv4 address")
}
