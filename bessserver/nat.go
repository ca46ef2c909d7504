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

package bessserver

import (
	"fmt"
	"net"
	"time"

	"github.com/huin/goupnp/dcps/internetgateway1"
	natpmp "github.com/jackpal/go-nat-pmp"

	"github.com/voltmesh/etp-core/log"
)

// natLeaseSeconds is how long a port mapping is requested for; the BESS
// server re-maps on every Start rather than relying on a long-lived lease.
const natLeaseSeconds = 3600

// mapPort makes a best-effort attempt to forward port from the router to
// this host, trying NAT-PMP first (simpler, common on consumer routers)
// and falling back to UPnP IGD. Failure of either is logged and never
// prevents the BESS server from accepting LAN/already-routable
// connections; NAT traversal here is opportunistic, never required.
func mapPort(port int, logger log.Logger) {
	if err := mapPortNATPMP(port); err == nil {
		logger.Info("mapped port via NAT-PMP", "port", port)
		return
	} else {
		logger.Debug("NAT-PMP mapping failed, trying UPnP", "err", err)
	}

	if err := mapPortUPnP(port); err == nil {
		logger.Info("mapped port via UPnP", "port", port)
		return
	} else {
		logger.Debug("UPnP mapping failed, continuing without port forwarding", "err", err)
	}
}

func mapPortNATPMP(port int) error {
	gw, err := defaultGatewayIP()
	if err != nil {
		return err
	}
	client := natpmp.NewClientWithTimeout(gw, 2*time.Second)
	_, err = client.AddPortMapping("tcp", port, port, natLeaseSeconds)
	return err
}

func mapPortUPnP(port int) error {
	clients, errs, err := internetgateway1.NewWANIPConnection1Clients()
	if err != nil {
		return err
	}
	if len(clients) == 0 {
		if len(errs) > 0 {
			return errs[0]
		}
		return fmt.Errorf("no UPnP WANIPConnection1 gateway found")
	}

	localIP, err := outboundIP()
	if err != nil {
		return err
	}

	return clients[0].AddPortMapping(
		"", uint16(port), "TCP", uint16(port), localIP.String(), true,
		"etp-core bess server", natLeaseSeconds,
	)
}

// defaultGatewayIP guesses the LAN gateway as the first hop implied by
// the host's outbound route. NAT-PMP has no discovery protocol of its
// own, unlike UPnP's SSDP, so a gateway address is required up front.
func defaultGatewayIP() (net.IP, error) {
	ip, err := outboundIP()
	if err != nil {
		return nil, err
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("NAT-PMP requires an IPv4 gateway")
	}
	gw := make(net.IP, len(ip4))
	copy(gw, ip4)
	gw[3] = 1
	return gw, nil
}

func outboundIP() (net.IP, error) {
	conn, err := net.Dial("udp", "203.0.113.1:80") // TEST-NET-3, never dialed on the wire
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP, nil
}
