package controlloop

import (
	"fmt"
	"strings"

	"github.com/georgi-georgiev/dbgmesh/internal/debugproto"
)

// DisassembledInstruction is the UI-facing rendering of one server-reported
// instruction: addresses as "0x"-prefixed uppercase hex, raw bytes as
// space-separated uppercase hex pairs (spec §8 S3).
type DisassembledInstruction struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol,omitempty"`
	Bytes    string `json:"bytes"`
	Mnemonic string `json:"mnemonic"`
	OpStr    string `json:"op_str"`
}

// FormatInstructions renders a disassembly response for the front-end.
func FormatInstructions(in []debugproto.Instruction) []DisassembledInstruction {
	out := make([]DisassembledInstruction, len(in))
	for i, ins := range in {
		out[i] = DisassembledInstruction{
			Address:  fmt.Sprintf("0x%X", ins.Address),
			Symbol:   ins.Symbol,
			Bytes:    formatByteString(ins.Bytes),
			Mnemonic: ins.Mnemonic,
			OpStr:    ins.OpStr,
		}
	}
	return out
}

func formatByteString(b []byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02X", v)
	}
	return strings.Join(parts, " ")
}

// CallStackFrameView is the hex-formatted rendering of one unwound frame.
type CallStackFrameView struct {
	FrameNumber    int    `json:"frame_number"`
	InstructionPtr string `json:"instruction_pointer"`
	StackPointer   string `json:"stack_pointer"`
	FramePointer   string `json:"frame_pointer"`
	SymbolInfo     string `json:"symbol_info,omitempty"`
}

// FormatFrames renders a call-stack response for the front-end.
func FormatFrames(in []debugproto.CallStackFrame) []CallStackFrameView {
	out := make([]CallStackFrameView, len(in))
	for i, f := range in {
		out[i] = CallStackFrameView{
			FrameNumber:    f.FrameNumber,
			InstructionPtr: fmt.Sprintf("0x%X", f.InstructionPtr),
			StackPointer:   fmt.Sprintf("0x%X", f.StackPointer),
			FramePointer:   fmt.Sprintf("0x%X", f.FramePointer),
			SymbolInfo:     f.SymbolInfo,
		}
	}
	return out
}

// SymbolShortName extracts the name portion of a "<module>!<name>" display
// string; a display string without "!" round-trips as a whole (spec §8
// round-trip test).
func SymbolShortName(display string) string {
	if idx := strings.LastIndex(display, "!"); idx >= 0 {
		return display[idx+1:]
	}
	return display
}
