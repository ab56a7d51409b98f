package abi

import (
	"testing"

	"scarlet/pkg/arch"
	"scarlet/pkg/context"
	"scarlet/pkg/errors/kernerr"
)

type stubInstance struct {
	name  string
	calls *int
}

func (s *stubInstance) Name() string { return s.name }

func (s *stubInstance) HandleSyscall(ctx context.Context, tf *arch.TrapFrame) (uintptr, error) {
	if s.calls != nil {
		*s.calls++
	}
	return 0, nil
}

func (s *stubInstance) Clone() Instance {
	return &stubInstance{name: s.name}
}

func newRegistryWithStub(t *testing.T, name string) *Registry {
	t.Helper()
	r := NewRegistry()
	if err := r.Register(name, func() Instance { return &stubInstance{name: name} }, func(h Header) bool {
		return h.OSABI == 0xAB
	}); err != nil {
		t.Fatal(err)
	}
	return r
}

func TestRegisterIdempotentByName(t *testing.T) {
	r := newRegistryWithStub(t, "scarlet")
	err := r.Register("scarlet", func() Instance { return &stubInstance{name: "scarlet"} }, nil)
	if !kernerr.Is(err, kernerr.KindAlreadyExists) {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}
}

func TestInstantiateUnknownFails(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Instantiate("nope"); !kernerr.Is(err, kernerr.KindUnknownAbi) {
		t.Fatalf("expected UnknownAbi, got %v", err)
	}
}

func TestDetectMatchesRegisteredDetector(t *testing.T) {
	r := newRegistryWithStub(t, "scarlet")
	name, ok := r.Detect(Header{OSABI: 0xAB})
	if !ok || name != "scarlet" {
		t.Fatalf("Detect = (%q, %v), want (scarlet, true)", name, ok)
	}
	if _, ok := r.Detect(Header{OSABI: 0x00}); ok {
		t.Fatal("expected no match for unrelated OSABI")
	}
}

func TestInstantiateReturnsIndependentInstances(t *testing.T) {
	r := newRegistryWithStub(t, "scarlet")
	a, err := r.Instantiate("scarlet")
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Instantiate("scarlet")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("expected distinct instances per Instantiate call")
	}
}
