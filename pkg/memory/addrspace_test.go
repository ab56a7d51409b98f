package memory

import (
	"testing"

	"scarlet/pkg/errors/kernerr"
	"scarlet/pkg/hostarch"
)

func TestSbrkGrowsAndShrinks(t *testing.T) {
	as := NewAddressSpace(1<<20, 0x1000)
	end, err := as.Sbrk(0x1000)
	if err != nil || end != 0x2000 {
		t.Fatalf("Sbrk(0x1000) = (%x, %v), want (0x2000, nil)", end, err)
	}
	end, err = as.Sbrk(-0x1000)
	if err != nil || end != 0x1000 {
		t.Fatalf("Sbrk(-0x1000) = (%x, %v), want (0x1000, nil)", end, err)
	}
}

func TestSbrkRejectsBelowStart(t *testing.T) {
	as := NewAddressSpace(1<<20, 0x1000)
	if _, err := as.Sbrk(-1); !kernerr.Is(err, kernerr.KindNoSpace) {
		t.Fatalf("expected KindNoSpace, got %v", err)
	}
}

func TestCopyOutInRoundTrip(t *testing.T) {
	as := NewAddressSpace(1<<20, 0x1000)
	want := []byte("hello kernel")
	if err := as.CopyOut(0x10, want); err != nil {
		t.Fatalf("CopyOut: %v", err)
	}
	got := make([]byte, len(want))
	if err := as.CopyIn(0x10, got); err != nil {
		t.Fatalf("CopyIn: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCopyOutFaultsOnOverflow(t *testing.T) {
	as := NewAddressSpace(16, 0x0)
	if err := as.CopyOut(10, []byte("toolong!!!")); !kernerr.Is(err, kernerr.KindFault) {
		t.Fatalf("expected Fault, got %v", err)
	}
}

func TestCopyInStringRequiresTerminator(t *testing.T) {
	as := NewAddressSpace(1<<20, 0)
	if err := as.CopyOut(0, []byte("noterm")); err != nil {
		t.Fatal(err)
	}
	if _, err := as.CopyInString(0, 4); err == nil {
		t.Fatal("expected error when no NUL terminator within maxLen")
	}
	if err := as.CopyOut(0, []byte("ok\x00")); err != nil {
		t.Fatal(err)
	}
	s, err := as.CopyInString(0, 10)
	if err != nil || s != "ok" {
		t.Fatalf("CopyInString = (%q, %v), want (ok, nil)", s, err)
	}
}

func TestMapAnonymousRejectsOverlap(t *testing.T) {
	as := NewAddressSpace(1<<20, 0x1000)
	if _, err := as.MapAnonymous(hostarch.Addr(0x20000), 0x1000); err != nil {
		t.Fatal(err)
	}
	if _, err := as.MapAnonymous(hostarch.Addr(0x20000), 0x1000); !kernerr.Is(err, kernerr.KindAlreadyExists) {
		t.Fatalf("expected AlreadyExists on overlapping fixed map, got %v", err)
	}
}

func TestMapAnonymousAutoPlacementAvoidsOverlap(t *testing.T) {
	as := NewAddressSpace(1<<20, 0x1000)
	a, err := as.MapAnonymous(0, 0x1000)
	if err != nil {
		t.Fatal(err)
	}
	b, err := as.MapAnonymous(0, 0x1000)
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatalf("expected distinct auto-placed regions, got both at %x", a)
	}
}

func TestUnmapThenRemap(t *testing.T) {
	as := NewAddressSpace(1<<20, 0x1000)
	addr, err := as.MapAnonymous(hostarch.Addr(0x30000), 0x1000)
	if err != nil {
		t.Fatal(err)
	}
	if err := as.Unmap(addr, 0x1000); err != nil {
		t.Fatal(err)
	}
	if _, err := as.MapAnonymous(addr, 0x1000); err != nil {
		t.Fatalf("expected remap to succeed after unmap, got %v", err)
	}
}

func TestForkCopiesContentsIndependently(t *testing.T) {
	as := NewAddressSpace(1<<20, 0x1000)
	if err := as.CopyOut(0x10, []byte("parent")); err != nil {
		t.Fatal(err)
	}
	child := as.Fork()
	if err := child.CopyOut(0x10, []byte("child!")); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, 6)
	as.CopyIn(0x10, got)
	if string(got) != "parent" {
		t.Fatalf("parent mutated by child fork: %q", got)
	}
}
