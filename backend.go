package omr

import (
	"runtime"

	"github.com/klauspost/cpuid/v2"
)

// Backend reports the hardware capabilities relevant to a scan. The ring
// arithmetic kernels live in the underlying lattice library and select
// their own code paths; Backend surfaces what they have to work with so
// that callers can size worker pools and log the execution environment.
type Backend struct {
	// CPU is the detected processor brand string.
	CPU string
	// VectorBits is the widest usable vector ISA, in bits.
	VectorBits int
	// Threads is the suggested number of scan workers.
	Threads int
}

// DetectBackend inspects the host CPU.
func DetectBackend() Backend {

	bits := 64
	switch {
	case cpuid.CPU.Has(cpuid.AVX512F):
		bits = 512
	case cpuid.CPU.Has(cpuid.AVX2):
		bits = 256
	case cpuid.CPU.Has(cpuid.SSE2) || cpuid.CPU.Has(cpuid.ASIMD):
		bits = 128
	}

	return Backend{
		CPU:        cpuid.CPU.BrandName,
		VectorBits: bits,
		Threads:    runtime.NumCPU(),
	}
}
