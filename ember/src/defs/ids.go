package defs

// Pid_t identifies a process for the lifetime of the kernel.
type Pid_t int64

// Tid_t identifies a thread for the lifetime of the kernel. Thread IDs
// are never reused within a boot, which lets waiters and debuggers
// refer to a thread that has already exited without ambiguity.
type Tid_t int64

// Handle_t is the small, opaque integer a user process sees. Value 0
// is reserved as the invalid-handle sentinel and is never returned by
// a handle-minting syscall.
type Handle_t uint32

// InvalidHandle is the sentinel handle value. Closing it is always a
// no-op that returns Ok.
const InvalidHandle Handle_t = 0

// SameRights, when passed to duplicate/replace, means "preserve the
// rights of the source handle" instead of intersecting with a mask.
const SameRights Handle_t = 0x8000_0000

// ObjType_t tags the concrete kind of a kernel object so generic code
// (the handle table, the wait/signal machinery) can treat every object
// uniformly while type-specific syscalls can still reject the wrong
// kind (WrongType).
type ObjType_t uint8

const (
	ObjNone ObjType_t = iota
	ObjProcess
	ObjThread
	ObjVMO
	ObjVMAR
	ObjChannel
	ObjFifo
	ObjEvent
	ObjEventPair
	ObjTimer
	ObjJob
	ObjPort
)

var objTypeNames = [...]string{
	ObjNone:      "none",
	ObjProcess:   "process",
	ObjThread:    "thread",
	ObjVMO:       "vmo",
	ObjVMAR:      "vmar",
	ObjChannel:   "channel",
	ObjFifo:      "fifo",
	ObjEvent:     "event",
	ObjEventPair: "eventpair",
	ObjTimer:     "timer",
	ObjJob:       "job",
	ObjPort:      "port",
}

func (t ObjType_t) String() string {
	if int(t) < len(objTypeNames) && objTypeNames[t] != "" {
		return objTypeNames[t]
	}
	return "unknown"
}
