package pumpfun

import (
	"encoding/base64"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-signal-engine/internal/domain"
	"solana-signal-engine/internal/solana"
)

func key(b byte) []byte {
	k := make([]byte, 32)
	for i := range k {
		k[i] = b
	}
	return k
}

func borshString(s string) []byte {
	out := make([]byte, 4, 4+len(s))
	binary.LittleEndian.PutUint32(out, uint32(len(s)))
	return append(out, s...)
}

func createEventLog(name, symbol, uri string, mint, curve, user []byte) string {
	data := append([]byte{}, createEventDiscriminator...)
	data = append(data, borshString(name)...)
	data = append(data, borshString(symbol)...)
	data = append(data, borshString(uri)...)
	data = append(data, mint...)
	data = append(data, curve...)
	data = append(data, user...)
	return programDataPrefix + base64.StdEncoding.EncodeToString(data)
}

func createLogs(dataLine string) []string {
	return []string{
		"Program ComputeBudget111111111111111111111111111111 invoke [1]",
		"Program ComputeBudget111111111111111111111111111111 success",
		"Program " + ProgramID + " invoke [1]",
		"Program log: Instruction: Create",
		"Program TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA invoke [2]",
		"Program TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA success",
		dataLine,
		"Program " + ProgramID + " success",
	}
}

func TestParseCreateEvent(t *testing.T) {
	logs := createLogs(createEventLog("Dog Wif Hat", "WIF", "https://ipfs.io/x", key(1), key(2), key(3)))

	ev, err := ParseCreateEvent(logs)
	require.NoError(t, err)
	assert.Equal(t, "Dog Wif Hat", ev.Name)
	assert.Equal(t, "WIF", ev.Symbol)
	assert.Equal(t, "https://ipfs.io/x", ev.URI)
	assert.Equal(t, base58.Encode(key(1)), ev.Mint)
	assert.Equal(t, base58.Encode(key(2)), ev.BondingCurve)
	assert.Equal(t, base58.Encode(key(3)), ev.User)
	assert.True(t, IsCreate(logs))
}

func TestParseCreateEvent_Errors(t *testing.T) {
	_, err := ParseCreateEvent([]string{"Program log: Instruction: Buy"})
	assert.ErrorIs(t, err, ErrNoCreateEvent)

	// Truncated after the strings.
	data := append([]byte{}, createEventDiscriminator...)
	data = append(data, borshString("A")...)
	data = append(data, borshString("B")...)
	data = append(data, borshString("C")...)
	data = append(data, key(1)[:10]...)
	_, err = ParseCreateEvent([]string{programDataPrefix + base64.StdEncoding.EncodeToString(data)})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoCreateEvent)

	// Oversized symbol length.
	data = append([]byte{}, createEventDiscriminator...)
	data = append(data, borshString("A")...)
	data = append(data, 0xff, 0xff, 0, 0)
	_, err = ParseCreateEvent([]string{programDataPrefix + base64.StdEncoding.EncodeToString(data)})
	assert.Error(t, err)

	// Complete event whose symbol is longer than the program allows.
	data = append([]byte{}, createEventDiscriminator...)
	data = append(data, borshString("A")...)
	data = append(data, borshString(strings.Repeat("S", maxSymbolLen+1))...)
	data = append(data, borshString("C")...)
	for i := byte(1); i <= 3; i++ {
		data = append(data, key(i)...)
	}
	_, err = ParseCreateEvent([]string{programDataPrefix + base64.StdEncoding.EncodeToString(data)})
	assert.ErrorContains(t, err, "symbol length 33 exceeds 32")
}

func TestParseCreateEvent_SkipsOtherEvents(t *testing.T) {
	other := programDataPrefix + base64.StdEncoding.EncodeToString([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9})
	logs := []string{other, createEventLog("N", "S", "U", key(4), key(5), key(6))}

	ev, err := ParseCreateEvent(logs)
	require.NoError(t, err)
	assert.Equal(t, "S", ev.Symbol)
}

func TestInstructionKind(t *testing.T) {
	invoke := "Program " + ProgramID + " invoke [1]"
	success := "Program " + ProgramID + " success"

	tests := []struct {
		name string
		logs []string
		want domain.SignerKind
	}{
		{"buy", []string{invoke, "Program log: Instruction: Buy", success}, domain.SignerBuy},
		{"sell", []string{invoke, "Program log: Instruction: Sell", success}, domain.SignerSell},
		{"create then buy", []string{invoke, "Program log: Instruction: Create", success, invoke, "Program log: Instruction: Buy", success}, domain.SignerCreate},
		{"outside pump frame", []string{"Program log: Instruction: Buy"}, domain.SignerOther},
		{"other program", []string{"Program JUP6 invoke [1]", "Program log: Instruction: Route", "Program JUP6 success"}, domain.SignerOther},
		{"nested cpi", []string{"Program JUP6 invoke [1]", "Program " + ProgramID + " invoke [2]", "Program log: Instruction: Sell", success, "Program JUP6 success"}, domain.SignerSell},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InstructionKind(tt.logs))
		})
	}
}

func TestBondingCurveAddress(t *testing.T) {
	mint := base58.Encode(key(9))

	addr, err := BondingCurveAddress(mint)
	require.NoError(t, err)
	assert.True(t, solana.IsValidAddress(addr))
	assert.NotEqual(t, mint, addr)

	raw, err := base58.Decode(addr)
	require.NoError(t, err)
	assert.False(t, solana.IsOnCurve(raw))

	_, err = BondingCurveAddress("not-a-key")
	assert.Error(t, err)
}

func TestDecodeBondingCurve(t *testing.T) {
	data := make([]byte, 8+5*8+1)
	for i, v := range []uint64{1_073_000_000_000_000, 30_000_000_000, 793_100_000_000_000, 0, 1_000_000_000_000_000} {
		binary.LittleEndian.PutUint64(data[8+i*8:], v)
	}
	data[48] = 1

	bc, err := DecodeBondingCurve(data)
	require.NoError(t, err)
	assert.Equal(t, uint64(30_000_000_000), bc.VirtualSolReserves)
	assert.Equal(t, uint64(1_000_000_000_000_000), bc.TokenTotalSupply)
	assert.True(t, bc.Complete)

	_, err = DecodeBondingCurve(data[:20])
	assert.Error(t, err)
}
