package fake

import (
	"slices"
	"testing"
)

func TestCallRecorder_Record(t *testing.T) {
	var r CallRecorder

	r.record("ContainerStop", "a", 1)
	r.record("ContainerRemove", "b")
	r.record("ContainerStop", "c")

	if all := r.Calls(""); len(all) != 3 {
		t.Fatalf("expected 3 calls, got %d", len(all))
	}

	stops := r.Calls("ContainerStop")
	if len(stops) != 2 {
		t.Fatalf("expected 2 ContainerStop calls, got %d", len(stops))
	}
	if stops[0].Args[0] != "a" {
		t.Errorf("expected first ContainerStop arg 'a', got %v", stops[0].Args[0])
	}

	if none := r.Calls("ContainerRun"); len(none) != 0 {
		t.Errorf("expected 0 ContainerRun calls, got %d", len(none))
	}
}

func TestCallRecorder_Methods(t *testing.T) {
	var r CallRecorder
	r.record("ContainerInspect")
	r.record("ContainerLogs")
	r.record("ContainerStop")

	if got, want := r.Methods(), []string{"ContainerInspect", "ContainerLogs", "ContainerStop"}; !slices.Equal(got, want) {
		t.Errorf("Methods() = %v, want %v", got, want)
	}
	if got, want := r.Methods("ContainerInspect", "ContainerStop"), []string{"ContainerInspect", "ContainerStop"}; !slices.Equal(got, want) {
		t.Errorf("Methods(filter) = %v, want %v", got, want)
	}
}

func TestCallRecorder_Reset(t *testing.T) {
	var r CallRecorder
	r.record("ContainerStop")
	r.Reset()
	if len(r.Calls("")) != 0 {
		t.Fatal("expected no calls after reset")
	}
}
