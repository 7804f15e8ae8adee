// Package pumpfuntest builds pump.fun log lines and account data for tests.
package pumpfuntest

import (
	"encoding/base64"
	"encoding/binary"

	"github.com/mr-tron/base58"

	"solana-signal-engine/internal/pumpfun"
)

var createEventDiscriminator = []byte{27, 114, 169, 77, 222, 235, 99, 118}

// Address returns a deterministic base58 address made of 32 copies of b.
func Address(b byte) string {
	k := make([]byte, 32)
	for i := range k {
		k[i] = b
	}
	return base58.Encode(k)
}

// CreateLogs returns the log lines of a create transaction emitting ev.
// Addresses in ev must be valid base58 public keys.
func CreateLogs(ev pumpfun.CreateEvent) []string {
	data := append([]byte{}, createEventDiscriminator...)
	data = appendString(data, ev.Name)
	data = appendString(data, ev.Symbol)
	data = appendString(data, ev.URI)
	for _, addr := range []string{ev.Mint, ev.BondingCurve, ev.User} {
		data = append(data, mustDecode(addr)...)
	}
	return []string{
		"Program " + pumpfun.ProgramID + " invoke [1]",
		"Program log: Instruction: Create",
		"Program data: " + base64.StdEncoding.EncodeToString(data),
		"Program " + pumpfun.ProgramID + " success",
	}
}

// InstructionLogs returns the log lines of a pump.fun instruction without events.
func InstructionLogs(instruction string) []string {
	return []string{
		"Program " + pumpfun.ProgramID + " invoke [1]",
		"Program log: Instruction: " + instruction,
		"Program " + pumpfun.ProgramID + " success",
	}
}

// BondingCurveData encodes bonding curve account data.
func BondingCurveData(bc pumpfun.BondingCurve) []byte {
	data := make([]byte, 8, 8+5*8+1)
	for _, v := range []uint64{
		bc.VirtualTokenReserves,
		bc.VirtualSolReserves,
		bc.RealTokenReserves,
		bc.RealSolReserves,
		bc.TokenTotalSupply,
	} {
		data = binary.LittleEndian.AppendUint64(data, v)
	}
	if bc.Complete {
		return append(data, 1)
	}
	return append(data, 0)
}

func appendString(data []byte, s string) []byte {
	data = binary.LittleEndian.AppendUint32(data, uint32(len(s)))
	return append(data, s...)
}

func mustDecode(addr string) []byte {
	b, err := base58.Decode(addr)
	if err != nil || len(b) != 32 {
		panic("pumpfuntest: invalid address " + addr)
	}
	return b
}
