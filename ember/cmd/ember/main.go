// Command ember drives the bring-up sequence a bootloader hands off
// to: parse the command line, register the physical memory regions it
// describes, start the per-CPU scheduler state, and spawn the root
// job/process that the first syscalls arrive in. It exists to give
// boot, mem, sched, proc, and scall one real caller that exercises the
// whole dependency chain end to end, the software-simulation
// equivalent of the assembly stub that hands off to a real kernel's
// entry point.
package main

import (
	"fmt"
	"os"

	"boot"
	"defs"
	"mem"
	"proc"
	"scall"
)

// regions is a placeholder memory map standing in for whatever a real
// bootloader would report (e820 on amd64, a device-tree /memory node
// on arm64/riscv64). Sized generously enough for the fixed-size test
// arenas this tree's own package tests use to never collide with it.
var regions = []boot.Region{
	{Name: "low", Base: 0x100000, NPages: 4096, Priority: 0, Flags: mem.ArenaLowMem},
	{Name: "high", Base: 0x10000000, NPages: 16384, Priority: 1, Flags: mem.ArenaHighMem},
}

func run(cmdline string) (*proc.Job_t, *proc.Process_t, defs.Err_t) {
	cfg := boot.ParseCommandLine(cmdline)
	phys := mem.Phys
	ncpu, err := boot.Init(regions, cfg, phys)
	if err != defs.Ok {
		return nil, nil, err
	}
	boot.BringUp(ncpu)

	root := proc.NewJob("root")
	init := proc.NewProcess("init", root)
	return root, init, defs.Ok
}

func main() {
	cmdline := ""
	if len(os.Args) > 1 {
		cmdline = os.Args[1]
	}
	_, init, err := run(cmdline)
	if err != defs.Ok {
		fmt.Fprintf(os.Stderr, "ember: boot failed: %v\n", err)
		os.Exit(1)
	}

	var d scall.Dispatcher
	r := d.DebugStats(init)
	fmt.Printf("ember: booted, init pid=%d, debug_stats profile bytes=%d\n", init.Pid, r.Encode())
}
