// Package pumpfun decodes pump.fun program logs and accounts.
package pumpfun

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	bin "github.com/gagliardetto/binary"
	"github.com/mr-tron/base58"

	"solana-signal-engine/internal/domain"
	"solana-signal-engine/internal/solana"
)

// ProgramID is the pump.fun bonding curve program.
const ProgramID = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"

const (
	programDataPrefix = "Program data: "
	instructionPrefix = "Program log: Instruction: "
	bondingCurveSeed  = "bonding-curve"

	maxNameLen   = 64
	maxSymbolLen = 32
	maxURILen    = 256
)

// createEventDiscriminator is the Anchor event discriminator of CreateEvent.
var createEventDiscriminator = []byte{27, 114, 169, 77, 222, 235, 99, 118}

// ErrNoCreateEvent is returned when logs carry no decodable CreateEvent.
var ErrNoCreateEvent = errors.New("no create event in logs")

// CreateEvent is the event emitted by the pump.fun create instruction.
type CreateEvent struct {
	Name         string
	Symbol       string
	URI          string
	Mint         string
	BondingCurve string
	User         string // creator wallet
}

// IsCreate reports whether the logs contain a pump.fun create instruction.
func IsCreate(logs []string) bool {
	return InstructionKind(logs) == domain.SignerCreate
}

// InstructionKind classifies a transaction by the first pump.fun instruction
// found inside a pump.fun invocation frame.
func InstructionKind(logs []string) domain.SignerKind {
	depth := 0
	for _, line := range logs {
		switch {
		case strings.HasPrefix(line, "Program "+ProgramID+" invoke"):
			depth++
			continue
		case strings.HasPrefix(line, "Program "+ProgramID+" success"),
			strings.HasPrefix(line, "Program "+ProgramID+" failed"):
			if depth > 0 {
				depth--
			}
			continue
		}
		if depth == 0 || !strings.HasPrefix(line, instructionPrefix) {
			continue
		}

		switch strings.TrimPrefix(line, instructionPrefix) {
		case "Create", "CreateV2":
			return domain.SignerCreate
		case "Buy", "BuyExactSolIn":
			return domain.SignerBuy
		case "Sell":
			return domain.SignerSell
		}
	}
	return domain.SignerOther
}

// ParseCreateEvent decodes the first CreateEvent found in "Program data:" logs.
func ParseCreateEvent(logs []string) (*CreateEvent, error) {
	for _, line := range logs {
		if !strings.HasPrefix(line, programDataPrefix) {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(line, programDataPrefix))
		if err != nil || len(data) < len(createEventDiscriminator) {
			continue
		}
		if !bytes.Equal(data[:8], createEventDiscriminator) {
			continue
		}
		return decodeCreateEvent(data[8:])
	}
	return nil, ErrNoCreateEvent
}

// rawCreateEvent is the borsh layout of CreateEvent after its discriminator.
type rawCreateEvent struct {
	Name         string
	Symbol       string
	URI          string
	Mint         [32]byte
	BondingCurve [32]byte
	User         [32]byte
}

func decodeCreateEvent(data []byte) (*CreateEvent, error) {
	var raw rawCreateEvent
	if err := bin.NewBorshDecoder(data).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode create event: %w", err)
	}
	for _, f := range []struct {
		name  string
		value string
		max   int
	}{
		{"name", raw.Name, maxNameLen},
		{"symbol", raw.Symbol, maxSymbolLen},
		{"uri", raw.URI, maxURILen},
	} {
		if len(f.value) > f.max {
			return nil, fmt.Errorf("decode create event: %s length %d exceeds %d", f.name, len(f.value), f.max)
		}
	}
	return &CreateEvent{
		Name:         strings.TrimRight(raw.Name, "\x00"),
		Symbol:       strings.TrimRight(raw.Symbol, "\x00"),
		URI:          strings.TrimRight(raw.URI, "\x00"),
		Mint:         base58.Encode(raw.Mint[:]),
		BondingCurve: base58.Encode(raw.BondingCurve[:]),
		User:         base58.Encode(raw.User[:]),
	}, nil
}

// BondingCurveAddress derives the bonding curve account of mint. The curve
// holds the pre-migration liquidity, so it is the mint's LP address.
func BondingCurveAddress(mint string) (string, error) {
	mintBytes, err := solana.DecodeAddress(mint)
	if err != nil {
		return "", err
	}
	addr, _, err := solana.FindProgramAddress([][]byte{[]byte(bondingCurveSeed), mintBytes}, ProgramID)
	if err != nil {
		return "", fmt.Errorf("derive bonding curve: %w", err)
	}
	return addr, nil
}

// BondingCurve is the decoded state of a bonding curve account.
type BondingCurve struct {
	VirtualTokenReserves uint64
	VirtualSolReserves   uint64
	RealTokenReserves    uint64
	RealSolReserves      uint64
	TokenTotalSupply     uint64
	Complete             bool // set once the curve migrated to an AMM
}

// DecodeBondingCurve decodes bonding curve account data (8-byte account
// discriminator followed by five u64 fields and a bool).
func DecodeBondingCurve(data []byte) (*BondingCurve, error) {
	const size = 8 + 5*8 + 1
	if len(data) < size {
		return nil, fmt.Errorf("bonding curve account too short: %d bytes", len(data))
	}
	var bc BondingCurve
	if err := bin.NewBorshDecoder(data[8:size]).Decode(&bc); err != nil {
		return nil, fmt.Errorf("decode bonding curve: %w", err)
	}
	return &bc, nil
}
