package debugproto

import "fmt"

// Arch tags which register layout a ThreadContext carries.
type Arch string

const (
	ArchX64   Arch = "x64"
	ArchArm64 Arch = "arm64"
)

// X64Context is the general-purpose register file for an x86-64 thread.
// Every field is a fixed-width, 0x-prefixed hex string: 18 characters for
// the 64-bit registers and rip, 10 for eflags.
type X64Context struct {
	Rax    string `json:"rax"`
	Rbx    string `json:"rbx"`
	Rcx    string `json:"rcx"`
	Rdx    string `json:"rdx"`
	Rsi    string `json:"rsi"`
	Rdi    string `json:"rdi"`
	Rbp    string `json:"rbp"`
	Rsp    string `json:"rsp"`
	Rip    string `json:"rip"`
	R8     string `json:"r8"`
	R9     string `json:"r9"`
	R10    string `json:"r10"`
	R11    string `json:"r11"`
	R12    string `json:"r12"`
	R13    string `json:"r13"`
	R14    string `json:"r14"`
	R15    string `json:"r15"`
	EFlags string `json:"eflags"`
}

// Arm64Context is the general-purpose register file for an AArch64 thread.
type Arm64Context struct {
	X0   string `json:"x0"`
	X1   string `json:"x1"`
	X2   string `json:"x2"`
	X3   string `json:"x3"`
	X4   string `json:"x4"`
	X5   string `json:"x5"`
	X6   string `json:"x6"`
	X7   string `json:"x7"`
	X8   string `json:"x8"`
	X9   string `json:"x9"`
	X10  string `json:"x10"`
	X11  string `json:"x11"`
	X12  string `json:"x12"`
	X13  string `json:"x13"`
	X14  string `json:"x14"`
	X15  string `json:"x15"`
	X16  string `json:"x16"`
	X17  string `json:"x17"`
	X18  string `json:"x18"`
	X19  string `json:"x19"`
	X20  string `json:"x20"`
	X21  string `json:"x21"`
	X22  string `json:"x22"`
	X23  string `json:"x23"`
	X24  string `json:"x24"`
	X25  string `json:"x25"`
	X26  string `json:"x26"`
	X27  string `json:"x27"`
	X28  string `json:"x28"`
	X29  string `json:"x29"`
	X30  string `json:"x30"`
	Sp   string `json:"sp"`
	Pc   string `json:"pc"`
	Cpsr string `json:"cpsr"`
}

// ThreadContext is the tagged register snapshot surfaced to the UI. Exactly
// one of X64/Arm64 is set, selected by Arch.
type ThreadContext struct {
	Arch  Arch          `json:"arch"`
	X64   *X64Context   `json:"x64,omitempty"`
	Arm64 *Arm64Context `json:"arm64,omitempty"`
}

// hex64 formats a 64-bit register value as an 18-character 0x-prefixed hex
// string, e.g. 0x0000000000401000.
func hex64(v uint64) string {
	return fmt.Sprintf("0x%016x", v)
}

// hex32 formats a 32-bit flags register as a 10-character 0x-prefixed hex
// string, e.g. 0x00000246.
func hex32(v uint32) string {
	return fmt.Sprintf("0x%08x", v)
}

// RawX64Registers is the unserialized form of the registers the debug
// server reports for an x86-64 thread.
type RawX64Registers struct {
	Rax, Rbx, Rcx, Rdx, Rsi, Rdi, Rbp, Rsp, Rip uint64
	R8, R9, R10, R11, R12, R13, R14, R15        uint64
	EFlags                                      uint32
}

// RawArm64Registers is the unserialized form of the registers the debug
// server reports for an AArch64 thread.
type RawArm64Registers struct {
	X      [31]uint64
	Sp, Pc uint64
	Cpsr   uint32
}

// NewX64Context converts raw register values into their fixed-width hex
// string representation.
func NewX64Context(r RawX64Registers) *ThreadContext {
	return &ThreadContext{
		Arch: ArchX64,
		X64: &X64Context{
			Rax:    hex64(r.Rax),
			Rbx:    hex64(r.Rbx),
			Rcx:    hex64(r.Rcx),
			Rdx:    hex64(r.Rdx),
			Rsi:    hex64(r.Rsi),
			Rdi:    hex64(r.Rdi),
			Rbp:    hex64(r.Rbp),
			Rsp:    hex64(r.Rsp),
			Rip:    hex64(r.Rip),
			R8:     hex64(r.R8),
			R9:     hex64(r.R9),
			R10:    hex64(r.R10),
			R11:    hex64(r.R11),
			R12:    hex64(r.R12),
			R13:    hex64(r.R13),
			R14:    hex64(r.R14),
			R15:    hex64(r.R15),
			EFlags: hex32(r.EFlags),
		},
	}
}

// NewArm64Context converts raw register values into their fixed-width hex
// string representation.
func NewArm64Context(r RawArm64Registers) *ThreadContext {
	c := &Arm64Context{
		Sp:   hex64(r.Sp),
		Pc:   hex64(r.Pc),
		Cpsr: hex32(r.Cpsr),
	}

	regs := []*string{
		&c.X0, &c.X1, &c.X2, &c.X3, &c.X4, &c.X5, &c.X6, &c.X7,
		&c.X8, &c.X9, &c.X10, &c.X11, &c.X12, &c.X13, &c.X14, &c.X15,
		&c.X16, &c.X17, &c.X18, &c.X19, &c.X20, &c.X21, &c.X22, &c.X23,
		&c.X24, &c.X25, &c.X26, &c.X27, &c.X28, &c.X29, &c.X30,
	}
	for i, dst := range regs {
		*dst = hex64(r.X[i])
	}

	return &ThreadContext{Arch: ArchArm64, Arm64: c}
}

// PC returns the context's program counter as a hex string (rip for X64,
// pc for Arm64), or "" if the context is nil.
func (c *ThreadContext) PC() string {
	if c == nil {
		return ""
	}
	switch c.Arch {
	case ArchX64:
		if c.X64 != nil {
			return c.X64.Rip
		}
	case ArchArm64:
		if c.Arm64 != nil {
			return c.Arm64.Pc
		}
	}
	return ""
}
