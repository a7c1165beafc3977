package controlloop

import (
	"testing"

	"github.com/georgi-georgiev/dbgmesh/internal/debugproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatInstructions(t *testing.T) {
	out := FormatInstructions([]debugproto.Instruction{
		{Address: 0x401000, Symbol: "main.exe!main", Bytes: []byte{0x55, 0x48, 0x89}, Mnemonic: "push", OpStr: "rbp"},
	})

	require.Len(t, out, 1)
	assert.Equal(t, "0x401000", out[0].Address)
	assert.Equal(t, "main.exe!main", out[0].Symbol)
	assert.Equal(t, "55 48 89", out[0].Bytes)
	assert.Equal(t, "push", out[0].Mnemonic)
	assert.Equal(t, "rbp", out[0].OpStr)
}

func TestFormatInstructionsEmptyBytes(t *testing.T) {
	out := FormatInstructions([]debugproto.Instruction{{Address: 0x401000}})
	require.Len(t, out, 1)
	assert.Equal(t, "", out[0].Bytes)
}

func TestFormatFrames(t *testing.T) {
	out := FormatFrames([]debugproto.CallStackFrame{
		{FrameNumber: 0, InstructionPtr: 0x401000, StackPointer: 0x1000, FramePointer: 0x1010, SymbolInfo: "main.exe!main"},
	})

	require.Len(t, out, 1)
	assert.Equal(t, 0, out[0].FrameNumber)
	assert.Equal(t, "0x401000", out[0].InstructionPtr)
	assert.Equal(t, "0x1000", out[0].StackPointer)
	assert.Equal(t, "0x1010", out[0].FramePointer)
	assert.Equal(t, "main.exe!main", out[0].SymbolInfo)
}
