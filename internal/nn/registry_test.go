package nn

import (
	"errors"
	"math"
	"testing"
)

func TestRegisterAndGetActivation(t *testing.T) {
	resetActivationRegistryForTests()
	t.Cleanup(resetActivationRegistryForTests)

	if err := RegisterActivation("quad", func(x float64) float64 { return x * x }); err != nil {
		t.Fatalf("register activation: %v", err)
	}
	fn, err := GetActivation("quad")
	if err != nil {
		t.Fatalf("get activation: %v", err)
	}
	if got := fn(3); got != 9 {
		t.Fatalf("unexpected activation result: got=%f want=9", got)
	}
}

func TestRegisterActivationValidation(t *testing.T) {
	resetActivationRegistryForTests()
	t.Cleanup(resetActivationRegistryForTests)

	if err := RegisterActivation("", func(x float64) float64 { return x }); err == nil {
		t.Fatal("expected empty name error")
	}
	if err := RegisterActivation("nil", nil); err == nil {
		t.Fatal("expected nil function error")
	}
	if err := RegisterActivation(ActivationTanh, math.Tanh); !errors.Is(err, ErrActivationExists) {
		t.Fatalf("expected ErrActivationExists, got: %v", err)
	}
}

func TestGetActivationNotFound(t *testing.T) {
	_, err := GetActivation("missing")
	if !errors.Is(err, ErrActivationNotFound) {
		t.Fatalf("expected ErrActivationNotFound, got: %v", err)
	}
}

func TestBuiltInActivations(t *testing.T) {
	tests := []struct {
		name string
		x    float64
		want float64
	}{
		{name: ActivationBinary, x: 0.5, want: 0},
		{name: ActivationBinary, x: 0.51, want: 1},
		{name: ActivationBinary, x: -3, want: 0},
		{name: ActivationReLU, x: -1, want: 0},
		{name: ActivationReLU, x: 3, want: 3},
		{name: ActivationTanh, x: 0, want: 0},
		{name: "identity", x: 2.5, want: 2.5},
		{name: "sigmoid", x: 0, want: 0.5},
	}
	for _, tc := range tests {
		fn, err := GetActivation(tc.name)
		if err != nil {
			t.Fatalf("get %s: %v", tc.name, err)
		}
		if got := fn(tc.x); math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("%s(%f): got=%f want=%f", tc.name, tc.x, got, tc.want)
		}
	}
}

func TestListActivationsSorted(t *testing.T) {
	names := ListActivations()
	for i := 1; i < len(names); i++ {
		if names[i-1] > names[i] {
			t.Fatalf("activations not sorted: %v", names)
		}
	}
}
