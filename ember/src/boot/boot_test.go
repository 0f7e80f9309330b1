package boot

import (
	"testing"

	"defs"
	"mem"
)

func TestParseCommandLineRecognizesMaxCPUsAndMemoryLimit(t *testing.T) {
	cfg := ParseCommandLine("quiet kernel.smp.maxcpus=4 kernel.memory-limit-mb=256 kernel.debug")
	if cfg.MaxCPUs != 4 {
		t.Fatalf("expected MaxCPUs=4, got %d", cfg.MaxCPUs)
	}
	if !cfg.HasMemoryLimit || cfg.MemoryLimitMB != 256 {
		t.Fatalf("expected memory limit 256MB, got %+v", cfg)
	}
	if _, ok := cfg.Flags["debug"]; !ok {
		t.Fatalf("expected kernel.debug to be recorded as a boolean flag")
	}
}

func TestParseCommandLineIgnoresNonKernelTokens(t *testing.T) {
	cfg := ParseCommandLine("root=/dev/sda1 kernel.smp.maxcpus=2")
	if len(cfg.Flags) != 1 {
		t.Fatalf("expected only one kernel.* flag recorded, got %+v", cfg.Flags)
	}
	if cfg.MaxCPUs != 2 {
		t.Fatalf("expected MaxCPUs=2, got %d", cfg.MaxCPUs)
	}
}

func TestInitFeedsEveryRegionIntoArenas(t *testing.T) {
	phys := &mem.Physmem_t{}
	regions := []Region{
		{Name: "low", Base: 0, NPages: 16, Priority: 0, Flags: mem.ArenaLowMem},
		{Name: "high", Base: 0x100000, NPages: 32, Priority: 1, Flags: mem.ArenaHighMem},
	}
	cfg := &Config{MaxCPUs: 2, Flags: map[string]string{}}
	ncpu, err := Init(regions, cfg, phys)
	if err != defs.Ok {
		t.Fatalf("Init: %v", err)
	}
	if ncpu != 2 {
		t.Fatalf("expected ncpu=2, got %d", ncpu)
	}
	if got := phys.CountTotalPages(); got != 48 {
		t.Fatalf("expected 48 total pages across both arenas, got %d", got)
	}
}

func TestInitHonorsMemoryLimitBySplittingEvenly(t *testing.T) {
	phys := &mem.Physmem_t{}
	regions := []Region{
		{Name: "low", Base: 0, NPages: 256, Priority: 0, Flags: mem.ArenaLowMem},
		{Name: "high", Base: 0x100000, NPages: 256, Priority: 1, Flags: mem.ArenaHighMem},
	}
	// 1 MB is 256 pages, half of the 512 the two regions hold.
	cfg := &Config{MaxCPUs: 1, HasMemoryLimit: true, MemoryLimitMB: 1, Flags: map[string]string{}}
	_, err := Init(regions, cfg, phys)
	if err != defs.Ok {
		t.Fatalf("Init: %v", err)
	}
	if got := phys.CountTotalPages(); got >= 512 {
		t.Fatalf("expected memory-limit-mb to shrink the total below 512 pages, got %d", got)
	}
}
