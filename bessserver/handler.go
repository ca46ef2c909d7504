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
	"github.com/voltmesh/etp-core/etp"
	"github.com/voltmesh/etp-core/eventbus"
)

// defaultTTL is the hop budget stamped on every response the server
// generates; responses are fresh messages, not forwarded ones, so they
// start a new TTL budget rather than inheriting the request's.
const defaultTTL = 8

// dispatch implements the per-type dispatch table. It returns the
// response message to send, or nil if the type produces no response.
func (s *Server) dispatch(in *etp.Message) *etp.Message {
	switch in.MessageType {
	case etp.Register:
		s.log.Debug("register received", "device_id", in.DeviceID)
		return nil

	case etp.Query:
		return s.handleQuery(in)

	case etp.QueryResponse:
		s.log.Debug("query response received, ignored (BESS is not a receiver)")
		return nil

	case etp.Bid:
		return s.handleBid(in)

	case etp.BidAccept:
		return nil

	case etp.BidConfirm:
		s.log.Debug("bid confirm received")
		return nil

	case etp.BidReject:
		return nil

	case etp.Terminate:
		s.log.Debug("terminate received")
		return nil

	case etp.DeviceFailure:
		s.log.Warn("device failure reported", "device_id", in.DeviceID)
		return nil

	case etp.BESSStatus:
		s.log.Debug("bess status received")
		return nil

	default:
		s.log.Warn("unknown message type", "type", in.MessageType)
		return nil
	}
}

func (s *Server) handleQuery(in *etp.Message) *etp.Message {
	snap := s.inv.Snapshot()

	if s.bus != nil {
		s.bus.Publish(eventbus.QuerySent{AggregatorID: in.DeviceID, BESSID: snap.DeviceID})
		s.bus.Publish(eventbus.QueryResponseEvent{
			BESSID:            snap.DeviceID,
			EnergyAvailable:   snap.AvailableEnergy,
			PercentageForSale: snap.PercentageForSale,
		})
	}

	return &etp.Message{
		MessageType:             etp.QueryResponse,
		MessageID:               in.MessageID,
		DeviceID:                snap.DeviceID,
		TTL:                     defaultTTL,
		EnergyTotal:             snap.TotalCapacity,
		PercentageForSale:       snap.PercentageForSale,
		RemainingBatteryEnergy:  snap.CurrentLevel,
		BatteryHealthStatusCode: snap.HealthStatus,
		BatteryVoltage:          snap.Voltage,
		DischargeRate:           snap.MaxDischargeRate,
	}
}

func (s *Server) handleBid(in *etp.Message) *etp.Message {
	if s.bus != nil {
		s.bus.Publish(eventbus.BidPlaced{
			BESSID:       s.inv.DeviceID,
			AggregatorID: in.DeviceID,
			BidPrice:     in.BidPrice,
			EnergyAmount: in.RequiredEnergyAmount,
		})
	}

	eval := s.inv.TryReserve(in.BidPrice, in.RequiredEnergyAmount)
	if !eval.Accepted {
		if s.bus != nil {
			s.bus.Publish(eventbus.BidRejected{
				AggregatorID: in.DeviceID,
				BESSID:       s.inv.DeviceID,
				Reason:       eval.Reason,
			})
		}
		return &etp.Message{
			MessageType:     etp.BidReject,
			MessageID:       in.MessageID,
			DeviceID:        s.inv.DeviceID,
			TTL:             defaultTTL,
			TerminationCode: eval.Code,
		}
	}

	if s.bus != nil {
		s.bus.Publish(eventbus.BidAccepted{
			AggregatorID: in.DeviceID,
			BESSID:       s.inv.DeviceID,
			FinalPrice:   eval.SalePrice,
			EnergyAmount: eval.Energy,
		})
		s.maybeEmitEnergyDepleted()
	}

	return &etp.Message{
		MessageType:          etp.BidAccept,
		MessageID:            in.MessageID,
		DeviceID:             s.inv.DeviceID,
		TTL:                  defaultTTL,
		SalePrice:            eval.SalePrice,
		RequiredEnergyAmount: eval.Energy,
		TerminationCode:      etp.TermNormal,
	}
}

func (s *Server) maybeEmitEnergyDepleted() {
	if s.inv.AvailableEnergy() > 0 {
		return
	}
	snap := s.inv.Snapshot()
	pct := 0.0
	if snap.TotalCapacity > 0 {
		pct = snap.CurrentLevel / snap.TotalCapacity * 100
	}
	s.bus.Publish(eventbus.EnergyDepleted{
		BESSID:           snap.DeviceID,
		FinalEnergy:      snap.CurrentLevel,
		EnergyPercentage: pct,
	})
}
