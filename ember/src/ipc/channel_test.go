package ipc

import (
	"testing"
	"time"

	"defs"
	"object"
	"sched"
)

// stubRef is the narrowest possible object.Ref_i, just enough to track
// whether Unref was ever called so tests can assert Close() released a
// dropped message's handles instead of leaking them.
type stubRef struct {
	unrefed bool
}

func (s *stubRef) ObjType() defs.ObjType_t   { return defs.ObjVMO }
func (s *stubRef) Ref()                      {}
func (s *stubRef) Unref() (defs.Err_t, bool) { s.unrefed = true; return defs.Ok, true }

func TestChannelWriteThenReadRoundtrips(t *testing.T) {
	a, b, err := NewChannelPair()
	if err != defs.Ok {
		t.Fatalf("NewChannelPair: %v", err)
	}
	ref := &stubRef{}
	msg := Message_t{Data: []byte("hello"), Handles: []TransferredHandle{{Ref: ref, Rights: defs.RightRead}}}
	if err := a.Write(msg); err != defs.Ok {
		t.Fatalf("Write: %v", err)
	}
	th := sched.NewThread(1, nil)
	th.SetRunning()
	got, err := b.Read(th)
	if err != defs.Ok || string(got.Data) != "hello" || len(got.Handles) != 1 || got.Handles[0].Ref != object.Ref_i(ref) {
		t.Fatalf("Read returned %+v err=%v", got, err)
	}
}

func TestChannelCloseReleasesDroppedHandles(t *testing.T) {
	a, b, _ := NewChannelPair()
	ref := &stubRef{}
	if err := a.Write(Message_t{Data: []byte("x"), Handles: []TransferredHandle{{Ref: ref, Rights: defs.RightRead}}}); err != defs.Ok {
		t.Fatalf("Write: %v", err)
	}
	b.Close()
	if !ref.unrefed {
		t.Fatalf("expected Close to release the dropped message's handle")
	}
}

func TestChannelReadBlocksUntilWrite(t *testing.T) {
	a, b, _ := NewChannelPair()
	th := sched.NewThread(1, nil)
	th.SetRunning()

	type result struct {
		m   Message_t
		err defs.Err_t
	}
	done := make(chan result, 1)
	go func() {
		m, err := b.Read(th)
		done <- result{m, err}
	}()
	time.Sleep(10 * time.Millisecond)
	a.Write(Message_t{Data: []byte("x")})

	select {
	case r := <-done:
		if r.err != defs.Ok || string(r.m.Data) != "x" {
			t.Fatalf("expected to read the written message, got %+v err=%v", r.m, r.err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Read never returned after Write")
	}
}

func TestChannelCloseSignalsPeerClosed(t *testing.T) {
	a, b, _ := NewChannelPair()
	a.Close()
	if !b.Signals().Has(defs.SigPeerClosed) {
		t.Fatalf("expected PeerClosed signaled on b after a.Close()")
	}
	th := sched.NewThread(1, nil)
	th.SetRunning()
	_, err := b.Read(th)
	if err != defs.PeerClosed {
		t.Fatalf("expected Read on a closed, empty peer to return PeerClosed, got %v", err)
	}
}

func TestChannelPeekLenReportsSizeWithoutConsuming(t *testing.T) {
	a, b, _ := NewChannelPair()
	if _, _, ok := b.PeekLen(); ok {
		t.Fatalf("expected PeekLen on an empty queue to report not-ok")
	}
	a.Write(Message_t{Data: []byte("hello"), Handles: []TransferredHandle{{Ref: &stubRef{}, Rights: defs.RightRead}, {Ref: &stubRef{}, Rights: defs.RightRead}}})
	dataLen, handleLen, ok := b.PeekLen()
	if !ok || dataLen != 5 || handleLen != 2 {
		t.Fatalf("expected dataLen=5 handleLen=2 ok=true, got dataLen=%d handleLen=%d ok=%v", dataLen, handleLen, ok)
	}
	// Still there: PeekLen must not have consumed it.
	th := sched.NewThread(1, nil)
	th.SetRunning()
	got, err := b.Read(th)
	if err != defs.Ok || string(got.Data) != "hello" {
		t.Fatalf("expected the message to still be readable after PeekLen, got %+v err=%v", got, err)
	}
}

func TestChannelWriteAfterPeerCloseFails(t *testing.T) {
	a, b, _ := NewChannelPair()
	b.Close()
	if err := a.Write(Message_t{Data: []byte("x")}); err != defs.PeerClosed {
		t.Fatalf("expected PeerClosed writing to a closed peer, got %v", err)
	}
}
