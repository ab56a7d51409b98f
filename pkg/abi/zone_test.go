package abi

import (
	"testing"

	"scarlet/pkg/errors/kernerr"
)

func TestResolveReturnsZoneWhenContained(t *testing.T) {
	m := NewZoneMap()
	inst := &stubInstance{name: "xv6-riscv64"}
	if err := m.Register(0x1000, 0x1000, inst); err != nil {
		t.Fatal(err)
	}
	got, ok := m.Resolve(0x1800)
	if !ok || got != inst {
		t.Fatalf("Resolve(0x1800) = (%v, %v), want the registered instance", got, ok)
	}
	if _, ok := m.Resolve(0x3000); ok {
		t.Fatal("expected no zone to cover 0x3000")
	}
}

func TestRegisterRejectsZeroLength(t *testing.T) {
	m := NewZoneMap()
	if err := m.Register(0x1000, 0, &stubInstance{}); !kernerr.Is(err, kernerr.KindInvalidArgument) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestRegisterRejectsOverflow(t *testing.T) {
	m := NewZoneMap()
	err := m.Register(^uint64(0)-10, 100, &stubInstance{})
	if !kernerr.Is(err, kernerr.KindInvalidArgument) {
		t.Fatalf("expected InvalidArgument on overflow, got %v", err)
	}
}

func TestOverlapByOneByteRejected(t *testing.T) {
	m := NewZoneMap()
	if err := m.Register(0x1000, 0x1000, &stubInstance{}); err != nil {
		t.Fatal(err)
	}
	if err := m.Register(0x1FFF, 0x10, &stubInstance{}); !kernerr.Is(err, kernerr.KindAlreadyExists) {
		t.Fatalf("expected AlreadyExists for one-byte overlap, got %v", err)
	}
}

func TestAbuttingZonesAccepted(t *testing.T) {
	m := NewZoneMap()
	if err := m.Register(0x1000, 0x1000, &stubInstance{}); err != nil {
		t.Fatal(err)
	}
	if err := m.Register(0x2000, 0x1000, &stubInstance{}); err != nil {
		t.Fatalf("expected abutting zone to be accepted, got %v", err)
	}
}

func TestUnregisterThenResolveFallsBack(t *testing.T) {
	m := NewZoneMap()
	m.Register(0x1000, 0x1000, &stubInstance{name: "xv6-riscv64"})
	if err := m.Unregister(0x1000); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Resolve(0x1800); ok {
		t.Fatal("expected no zone after unregister")
	}
	if err := m.Unregister(0x1000); !kernerr.Is(err, kernerr.KindNotFound) {
		t.Fatalf("expected NotFound on double-unregister, got %v", err)
	}
}

func TestRegisterUnregisterRoundTripIsNoOp(t *testing.T) {
	m := NewZoneMap()
	m.Register(0x1000, 0x1000, &stubInstance{name: "xv6-riscv64"})
	m.Unregister(0x1000)
	if m.Len() != 0 {
		t.Fatalf("expected empty zone map after round trip, got %d zones", m.Len())
	}
}

func TestCloneProducesDistinctABIInstances(t *testing.T) {
	m := NewZoneMap()
	inst := &stubInstance{name: "xv6-riscv64"}
	m.Register(0x1000, 0x1000, inst)

	clone := m.Clone()
	origZones := m.Zones()
	cloneZones := clone.Zones()
	if len(origZones) != len(cloneZones) {
		t.Fatalf("zone count mismatch: %d vs %d", len(origZones), len(cloneZones))
	}
	if origZones[0].Start != cloneZones[0].Start || origZones[0].Len != cloneZones[0].Len {
		t.Fatalf("cloned zone range mismatch: %+v vs %+v", origZones[0], cloneZones[0])
	}
	if origZones[0].ABI == cloneZones[0].ABI {
		t.Fatal("expected clone's ABI instance to be a distinct object")
	}
}
