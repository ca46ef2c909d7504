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

package discovery

import (
	"fmt"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/voltmesh/etp-core/bess"
	"github.com/voltmesh/etp-core/etp"
	"github.com/voltmesh/etp-core/log"
)

// maxDatagramSize bounds a single read; an ETP message's encoded size is
// far below typical MTU, and multi-message datagrams are not part of the
// wire contract — anything larger than this is rejected as
// malformed rather than silently truncated.
const maxDatagramSize = 2048

// maxUnicastConcurrency bounds how many QueryResponse unicasts a single
// Query fans out to at once.
const maxUnicastConcurrency = 8

// QueryResponseHandler is invoked once per QueryResponse datagram
// observed on the group; an aggregator wires this in to populate its
// discovered-BESS map.
type QueryResponseHandler func(from *net.UDPAddr, msg *etp.Message)

// Discovery is one process's participation in the multicast discovery
// plane: it can announce a local BESS (RegisterBESS), answer Query
// datagrams on behalf of every BESS in its Registry (handled inside
// Listen), and broadcast its own Query as an aggregator.
type Discovery struct {
	group *net.UDPAddr
	send  *net.UDPConn // used to transmit (unicast or multicast)
	recv  *net.UDPConn // joined to the multicast group, used to receive

	registry *Registry
	log      log.Logger

	OnQueryResponse QueryResponseHandler
}

// New joins groupAddr:port. Construction fails if groupAddr is not a
// multicast IPv4 address.
func New(groupAddr string, port int, logger log.Logger) (*Discovery, error) {
	if logger == nil {
		logger = log.Root()
	}
	ip := net.ParseIP(groupAddr)
	if ip == nil || !ip.IsMulticast() {
		return nil, &etp.Error{Kind: etp.KindDiscovery, Err: fmt.Errorf("%q is not a multicast address", groupAddr)}
	}
	group := &net.UDPAddr{IP: ip, Port: port}

	recv, err := net.ListenMulticastUDP("udp4", nil, group)
	if err != nil {
		return nil, &etp.Error{Kind: etp.KindDiscovery, Err: err}
	}
	send, err := net.DialUDP("udp4", nil, group)
	if err != nil {
		recv.Close()
		return nil, &etp.Error{Kind: etp.KindDiscovery, Err: err}
	}

	return &Discovery{
		group:    group,
		send:     send,
		recv:     recv,
		registry: NewRegistry(),
		log:      logger.New("component", "discovery", "group", groupAddr, "port", port),
	}, nil
}

// Registry exposes the underlying candidate-BESS registry, e.g. for the
// owning process to inspect what it has learned.
func (d *Discovery) Registry() *Registry { return d.registry }

// Close releases the multicast sockets.
func (d *Discovery) Close() error {
	d.send.Close()
	return d.recv.Close()
}

// RegisterBESS inserts snap into the registry and broadcasts a Register
// message on the group.
func (d *Discovery) RegisterBESS(snap bess.Snapshot) error {
	d.registry.Put(snap)

	msg := &etp.Message{
		MessageType:             etp.Register,
		DeviceID:                snap.DeviceID,
		TTL:                     8,
		EnergyTotal:             snap.TotalCapacity,
		PercentageForSale:       snap.PercentageForSale,
		RemainingBatteryEnergy:  snap.CurrentLevel,
		BatteryHealthStatusCode: snap.HealthStatus,
		BatteryVoltage:          snap.Voltage,
		DischargeRate:           snap.MaxDischargeRate,
	}
	return d.broadcast(msg)
}

// Query broadcasts a Query message on the group on behalf of requesterID,
// asking for requiredEnergy kWh.
func (d *Discovery) Query(requesterID uint64, requiredEnergy float64) error {
	msg := &etp.Message{
		MessageType:          etp.Query,
		DeviceID:             requesterID,
		TTL:                  8,
		RequiredEnergyAmount: requiredEnergy,
	}
	return d.broadcast(msg)
}

func (d *Discovery) broadcast(msg *etp.Message) error {
	if err := etp.ValidateForTransmit(msg); err != nil {
		return err
	}
	_, err := d.send.Write(etp.Encode(msg))
	if err != nil {
		return &etp.Error{Kind: etp.KindTransport, Err: err}
	}
	return nil
}

// HandleQuery builds a QueryResponse for every registered BESS that is
// online and has energy available. Ordering is unspecified.
func (d *Discovery) HandleQuery(q *etp.Message) []*etp.Message {
	var responses []*etp.Message
	for _, snap := range d.registry.All() {
		if !snap.Online || snap.AvailableEnergy <= 0 {
			continue
		}
		responses = append(responses, &etp.Message{
			MessageType:             etp.QueryResponse,
			MessageID:               q.MessageID,
			DeviceID:                snap.DeviceID,
			TTL:                     8,
			EnergyTotal:             snap.TotalCapacity,
			PercentageForSale:       snap.PercentageForSale,
			RemainingBatteryEnergy:  snap.CurrentLevel,
			BatteryHealthStatusCode: snap.HealthStatus,
			BatteryVoltage:          snap.Voltage,
			DischargeRate:           snap.MaxDischargeRate,
		})
	}
	return responses
}

// Listen runs a long-lived receive loop over the joined multicast
// socket. Undecodable datagrams are logged and dropped; on a Query it
// invokes HandleQuery and unicasts each response back to the sender; on
// a Register from another process it learns that BESS into the
// registry; on a QueryResponse it invokes OnQueryResponse if set;
// anything else is logged and ignored. Listen returns when the socket
// is closed (via Close).
func (d *Discovery) Listen() error {
	// One spare byte lets an oversized datagram be detected instead of
	// being read as a truncated prefix.
	buf := make([]byte, maxDatagramSize+1)
	for {
		n, from, err := d.recv.ReadFromUDP(buf)
		if err != nil {
			return &etp.Error{Kind: etp.KindTransport, Err: err}
		}
		if n > maxDatagramSize {
			d.log.Warn("dropping oversized discovery datagram", "from", from)
			continue
		}

		msg, err := etp.Decode(buf[:n])
		if err != nil {
			d.log.Warn("dropping undecodable discovery datagram", "from", from, "err", err)
			continue
		}

		switch msg.MessageType {
		case etp.Query:
			d.unicastAll(from, d.HandleQuery(msg))
		case etp.Register:
			d.registry.Put(bess.Snapshot{
				DeviceID:          msg.DeviceID,
				TotalCapacity:     msg.EnergyTotal,
				CurrentLevel:      msg.RemainingBatteryEnergy,
				PercentageForSale: msg.PercentageForSale,
				HealthStatus:      msg.BatteryHealthStatusCode,
				Voltage:           msg.BatteryVoltage,
				MaxDischargeRate:  msg.DischargeRate,
				Online:            true,
				AvailableEnergy:   msg.RemainingBatteryEnergy * msg.PercentageForSale / 100,
			})
		case etp.QueryResponse:
			if d.OnQueryResponse != nil {
				d.OnQueryResponse(from, msg)
			}
		default:
			d.log.Debug("ignoring unexpected discovery message type", "type", msg.MessageType, "from", from)
		}
	}
}

// unicastAll dials and sends each response concurrently: a Query can
// fan out to every BESS in the registry, and each unicast is an
// independent dial-and-write with no shared state, so there is no
// reason for a slow or unreachable peer to hold up the rest.
func (d *Discovery) unicastAll(to *net.UDPAddr, responses []*etp.Message) {
	var g errgroup.Group
	g.SetLimit(maxUnicastConcurrency)
	for _, resp := range responses {
		resp := resp
		g.Go(func() error {
			d.unicast(to, resp)
			return nil
		})
	}
	_ = g.Wait()
}

func (d *Discovery) unicast(to *net.UDPAddr, msg *etp.Message) {
	if err := etp.ValidateForTransmit(msg); err != nil {
		d.log.Error("refusing to send invalid response", "err", err)
		return
	}
	conn, err := net.DialUDP("udp4", nil, to)
	if err != nil {
		d.log.Error("unicast dial failed", "to", to, "err", err)
		return
	}
	defer conn.Close()
	if _, err := conn.Write(etp.Encode(msg)); err != nil {
		d.log.Error("unicast send failed", "to", to, "err", err)
	}
}
