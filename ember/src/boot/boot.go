// Package boot turns the two things a bootloader hands the kernel --
// a list of physical memory regions and a single command-line string
// -- into a running mem.Physmem_t and a parsed set of kernel.* flags.
// It recognizes kernel.smp.maxcpus and kernel.memory-limit-mb by name;
// every other kernel.* flag is kept, unparsed, for whoever asks for it
// by key, the same "pass through what you don't understand yet" shape
// the teacher's argument handling uses elsewhere in this tree.
package boot

import (
	"defs"
	"mem"
	"sched"
	"ustr"
)

// Region is one contiguous physical memory range as reported by the
// bootloader, before it has been turned into a mem.ArenaInfo.
type Region struct {
	Name     string
	Base     mem.Pa_t
	NPages   int
	Priority int
	Flags    mem.ArenaFlags
}

// Config is the parsed form of the boot command line: the two flags
// this package gives special meaning to, plus every kernel.* flag
// verbatim for anyone downstream that wants one by name.
type Config struct {
	MaxCPUs        int
	MemoryLimitMB  int64
	HasMemoryLimit bool
	Flags          map[string]string
}

// ParseCommandLine splits line on whitespace (via ustr.Fields) and
// keeps every kernel.key=value or kernel.key token, matching
// original_source's pmm.rs/mp.rs command-line grammar: a flag with no
// '=' is recorded with an empty value (a boolean switch).
func ParseCommandLine(line string) *Config {
	cfg := &Config{MaxCPUs: 1, Flags: make(map[string]string)}
	const prefix = "kernel."
	for _, f := range ustr.MkUstrSlice([]byte(line)).Fields() {
		tok := f.String()
		rest, ok := hasPrefix(tok, prefix)
		if !ok {
			continue
		}
		key, val, hasVal := splitEq(rest)
		if hasVal {
			cfg.Flags[key] = val
		} else {
			cfg.Flags[key] = ""
		}
		switch key {
		case "smp.maxcpus":
			if n, ok := atoiPositive(val); ok {
				cfg.MaxCPUs = n
			}
		case "memory-limit-mb":
			if n, ok := atoiPositive(val); ok {
				cfg.MemoryLimitMB = int64(n)
				cfg.HasMemoryLimit = true
			}
		}
	}
	return cfg
}

func hasPrefix(s, prefix string) (string, bool) {
	u := ustr.MkUstrSlice([]byte(s))
	p := ustr.MkUstrSlice([]byte(prefix))
	if !u.HasPrefix(p) {
		return "", false
	}
	return u.TrimPrefix(p).String(), true
}

func splitEq(s string) (key, val string, hasVal bool) {
	u := ustr.MkUstrSlice([]byte(s))
	k, v, ok := u.SplitN('=')
	if !ok {
		return s, "", false
	}
	return k.String(), v.String(), true
}

func atoiPositive(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

// splitEvenly implements the "even split between the lowest and
// highest arena" memory-limit heuristic: a memory-limit-mb request
// narrower than the total region set trims pages off the lowest- and
// highest-priority arenas by equal page counts, rather than off any
// one arena entirely. This is not load-bearing -- a boot with no
// memory-limit-mb flag ignores it completely -- it exists only so the
// flag has some observable effect instead of being silently accepted
// and dropped.
func splitEvenly(regions []Region, limitPages int) []Region {
	total := 0
	for _, r := range regions {
		total += r.NPages
	}
	if limitPages <= 0 || limitPages >= total || len(regions) == 0 {
		return regions
	}
	trim := total - limitPages
	out := make([]Region, len(regions))
	copy(out, regions)
	lo, hi := 0, len(out)-1
	for trim > 0 {
		if lo == hi {
			n := out[lo].NPages
			if n > trim {
				n = trim
			}
			out[lo].NPages -= n
			trim -= n
			continue
		}
		half := (trim + 1) / 2
		if half > out[lo].NPages {
			half = out[lo].NPages
		}
		out[lo].NPages -= half
		trim -= half
		if trim == 0 {
			break
		}
		half = trim
		if half > out[hi].NPages {
			half = out[hi].NPages
		}
		out[hi].NPages -= half
		trim -= half
		lo++
		hi--
	}
	return out
}

// Init feeds every region into phys, honoring cfg's memory-limit-mb if
// set, and returns the CPU count to bring up (clamped to at least 1).
// This mirrors original_source's pmm.rs arena-carving followed by
// mp.rs's CPU bring-up ordering: memory is always made available
// before any CPU is started so early per-CPU allocations never race
// arena registration.
func Init(regions []Region, cfg *Config, phys *mem.Physmem_t) (int, defs.Err_t) {
	if cfg.HasMemoryLimit {
		const pageBytes = 1 << 12
		limitPages := int(cfg.MemoryLimitMB * (1 << 20) / pageBytes)
		regions = splitEvenly(regions, limitPages)
	}
	for _, r := range regions {
		if r.NPages <= 0 {
			continue
		}
		info := mem.ArenaInfo{
			Name:     r.Name,
			Base:     r.Base,
			NPages:   r.NPages,
			Priority: r.Priority,
			Flags:    r.Flags,
		}
		if err := phys.AddArena(info); err != defs.Ok {
			return 0, err
		}
	}
	ncpu := cfg.MaxCPUs
	if ncpu < 1 {
		ncpu = 1
	}
	return ncpu, defs.Ok
}

// BringUp starts the scheduler's per-CPU state for ncpu processors,
// the last step of boot before the first thread is ever enqueued.
func BringUp(ncpu int) {
	sched.Init(ncpu)
}
