package object

import (
	"testing"

	"defs"
)

type fakeObj struct {
	Object_t
	closed int
}

func newFakeObj() *fakeObj {
	f := &fakeObj{}
	f.Object_t = NewObject(defs.ObjEvent, f)
	return f
}

func (f *fakeObj) Close() defs.Err_t {
	f.closed++
	return defs.Ok
}

func TestInsertLookupClose(t *testing.T) {
	ht := &HandleTable_t{}
	o := newFakeObj()
	h, err := ht.Insert(o, defs.RightSignal|defs.RightWait|defs.RightDuplicate)
	if err != defs.Ok {
		t.Fatalf("Insert: %v", err)
	}
	if h == defs.InvalidHandle {
		t.Fatalf("expected a non-sentinel handle")
	}
	ref, rights, err := ht.Lookup(h)
	if err != defs.Ok || ref != o {
		t.Fatalf("Lookup mismatch: err=%v ref=%v", err, ref)
	}
	if !rights.Has(defs.RightSignal) {
		t.Fatalf("expected RightSignal")
	}
	if err := ht.Close(h); err != defs.Ok {
		t.Fatalf("Close: %v", err)
	}
	if o.closed != 1 {
		t.Fatalf("expected payload Close to fire once, got %d", o.closed)
	}
	if _, _, err := ht.Lookup(h); err != defs.BadHandle {
		t.Fatalf("expected BadHandle after close, got %v", err)
	}
}

func TestCheckEnforcesTypeAndRights(t *testing.T) {
	ht := &HandleTable_t{}
	o := newFakeObj()
	h, _ := ht.Insert(o, defs.RightSignal)

	if _, err := ht.Check(h, defs.ObjEvent, defs.RightWait); err != defs.AccessDenied {
		t.Fatalf("expected AccessDenied for a right not held, got %v", err)
	}
	if _, err := ht.Check(h, defs.ObjTimer, defs.RightSignal); err != defs.WrongType {
		t.Fatalf("expected WrongType, got %v", err)
	}
	if _, err := ht.Check(h, defs.ObjEvent, defs.RightSignal); err != defs.Ok {
		t.Fatalf("expected Ok, got %v", err)
	}
}

func TestDuplicateNarrowsRightsAndSharesObject(t *testing.T) {
	ht := &HandleTable_t{}
	o := newFakeObj()
	h, _ := ht.Insert(o, defs.RightSignal|defs.RightWait|defs.RightDuplicate)

	dh, err := ht.Duplicate(h, defs.Handle_t(defs.RightSignal))
	if err != defs.Ok {
		t.Fatalf("Duplicate: %v", err)
	}
	_, rights, _ := ht.Lookup(dh)
	if rights.Has(defs.RightWait) {
		t.Fatalf("duplicate must not carry a right absent from the mask")
	}
	if !rights.Has(defs.RightSignal) {
		t.Fatalf("duplicate should carry RightSignal")
	}

	ht.Close(h)
	if o.closed != 0 {
		t.Fatalf("object must survive while the duplicate handle is live")
	}
	ht.Close(dh)
	if o.closed != 1 {
		t.Fatalf("object should close once the last handle goes, got %d closes", o.closed)
	}
}

func TestDuplicateWithoutRightIsDenied(t *testing.T) {
	ht := &HandleTable_t{}
	o := newFakeObj()
	h, _ := ht.Insert(o, defs.RightSignal)
	if _, err := ht.Duplicate(h, defs.SameRights); err != defs.AccessDenied {
		t.Fatalf("expected AccessDenied without RightDuplicate, got %v", err)
	}
}

func TestReplaceReducesRightsInPlace(t *testing.T) {
	ht := &HandleTable_t{}
	o := newFakeObj()
	h, _ := ht.Insert(o, defs.RightSignal|defs.RightWait)

	nh, err := ht.Replace(h, defs.Handle_t(defs.RightSignal))
	if err != defs.Ok {
		t.Fatalf("Replace: %v", err)
	}
	if _, _, err := ht.Lookup(h); err != defs.BadHandle {
		t.Fatalf("old handle must no longer resolve")
	}
	_, rights, err := ht.Lookup(nh)
	if err != defs.Ok || rights.Has(defs.RightWait) {
		t.Fatalf("replaced handle should only carry the masked rights")
	}
	if o.closed != 0 {
		t.Fatalf("replace must not close the underlying object")
	}
}

func TestTransferRemovesWithoutClosing(t *testing.T) {
	ht := &HandleTable_t{}
	o := newFakeObj()
	h, _ := ht.Insert(o, defs.RightSignal|defs.RightTransfer)

	ref, rights, err := ht.Transfer(h)
	if err != defs.Ok || ref != o {
		t.Fatalf("Transfer: err=%v ref=%v", err, ref)
	}
	if !rights.Has(defs.RightSignal) {
		t.Fatalf("expected transferred rights to include RightSignal")
	}
	if o.closed != 0 {
		t.Fatalf("transfer must not close the object")
	}
	if _, _, err := ht.Lookup(h); err != defs.BadHandle {
		t.Fatalf("handle must be gone from the source table")
	}

	other := &HandleTable_t{}
	nh, err := other.Insert(ref, rights)
	if err != defs.Ok {
		t.Fatalf("Insert into destination table: %v", err)
	}
	if _, _, err := other.Lookup(nh); err != defs.Ok {
		t.Fatalf("expected the transferred object to resolve in the destination table")
	}
}

func TestTransferWithoutRightIsDenied(t *testing.T) {
	ht := &HandleTable_t{}
	o := newFakeObj()
	h, _ := ht.Insert(o, defs.RightSignal)
	if _, _, err := ht.Transfer(h); err != defs.AccessDenied {
		t.Fatalf("expected AccessDenied without RightTransfer, got %v", err)
	}
}

func TestCloseAllReleasesEveryHandle(t *testing.T) {
	ht := &HandleTable_t{}
	objs := make([]*fakeObj, 4)
	for i := range objs {
		objs[i] = newFakeObj()
		if _, err := ht.Insert(objs[i], defs.RightSignal); err != defs.Ok {
			t.Fatalf("Insert: %v", err)
		}
	}
	if n := ht.Count(); n != 4 {
		t.Fatalf("expected 4 live handles, got %d", n)
	}
	ht.CloseAll()
	for i, o := range objs {
		if o.closed != 1 {
			t.Fatalf("object %d not closed by CloseAll", i)
		}
	}
	if n := ht.Count(); n != 0 {
		t.Fatalf("expected an empty table after CloseAll, got %d", n)
	}
}

func TestHandleTableExhaustion(t *testing.T) {
	ht := &HandleTable_t{}
	var last defs.Err_t
	n := 0
	for {
		o := newFakeObj()
		_, err := ht.Insert(o, defs.RightSignal)
		if err != defs.Ok {
			last = err
			break
		}
		n++
	}
	if last != defs.NoResources {
		t.Fatalf("expected NoResources once the table fills, got %v", last)
	}
}
