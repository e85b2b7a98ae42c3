package jit

import "github.com/klauspost/cpuid/v2"

// HostCaps records the subset of host CPU features relevant to a future
// native codegen backend: the execution engine here is a portable
// interpreter, but the dispatch and register-spill strategy it models
// (wide load/store of the register-file buffer) is exactly what a real
// JIT backend would want to widen when the host supports it.
type HostCaps struct {
	AVX2      bool
	SSE2      bool
	CacheLine int
}

// DetectHostCaps queries the running CPU once via cpuid.
func DetectHostCaps() HostCaps {
	return HostCaps{
		AVX2:      cpuid.CPU.Supports(cpuid.AVX2),
		SSE2:      cpuid.CPU.Supports(cpuid.SSE2),
		CacheLine: cpuid.CPU.CacheLine,
	}
}
