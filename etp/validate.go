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

package etp

// Validate checks the decode-time invariants: message_type <= 9,
// percentage_for_sale in [0,100], battery_health_status_code <= 3, and
// every energy/price quantity non-negative. A message failing
// validation must never be processed by the caller.
func Validate(m *Message) error {
	if uint8(m.MessageType) > maxMessageType {
		return newError(KindValidation, "message_type %d exceeds maximum %d", m.MessageType, maxMessageType)
	}
	if m.BidPrice < 0 {
		return newError(KindValidation, "bid_price %v is negative", m.BidPrice)
	}
	if m.SalePrice < 0 {
		return newError(KindValidation, "sale_price %v is negative", m.SalePrice)
	}
	if m.EnergyTotal < 0 {
		return newError(KindValidation, "energy_total %v is negative", m.EnergyTotal)
	}
	if m.PercentageForSale < 0 || m.PercentageForSale > 100 {
		return newError(KindValidation, "percentage_for_sale %v out of range [0,100]", m.PercentageForSale)
	}
	if m.RequiredEnergyAmount < 0 {
		return newError(KindValidation, "required_energy_amount %v is negative", m.RequiredEnergyAmount)
	}
	if m.RemainingBatteryEnergy < 0 {
		return newError(KindValidation, "remaining_battery_energy %v is negative", m.RemainingBatteryEnergy)
	}
	if m.BatteryHealthStatusCode > HealthPoor {
		return newError(KindValidation, "battery_health_status_code %d out of range [0,3]", m.BatteryHealthStatusCode)
	}
	if m.DischargeRate < 0 {
		return newError(KindValidation, "discharge_rate %v is negative", m.DischargeRate)
	}
	return nil
}

// ValidateForTransmit additionally requires ttl >= 1, the invariant
// that holds for any message about to go out on the wire. Decoded
// messages that have already reached ttl == 0 are valid but expired
// (IsExpired), so this check is separate from Validate.
func ValidateForTransmit(m *Message) error {
	if err := Validate(m); err != nil {
		return err
	}
	if m.TTL < 1 {
		return newError(KindValidation, "ttl %d must be >= 1 for transmission", m.TTL)
	}
	return nil
}
