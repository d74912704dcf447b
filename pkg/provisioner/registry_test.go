package provisioner

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

// mockAdapter is a test implementation of the Adapter interface.
type mockAdapter struct {
	name string
}

func (m *mockAdapter) Name() string {
	return m.name
}

func (m *mockAdapter) Plan(ctx context.Context, req Request) (*PlanResult, error) {
	return &PlanResult{}, nil
}

func (m *mockAdapter) Apply(ctx context.Context, req Request) (*ApplyResult, error) {
	return &ApplyResult{}, nil
}

func (m *mockAdapter) Destroy(ctx context.Context, req Request) (*DestroyResult, error) {
	return &DestroyResult{}, nil
}

func (m *mockAdapter) Report(ctx context.Context, req Request) (*ReportResult, error) {
	return &ReportResult{}, nil
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	r.Register("test", func() (Adapter, error) {
		return &mockAdapter{name: "test"}, nil
	})

	if _, ok := r.factories["test"]; !ok {
		t.Error("expected adapter 'test' to be registered")
	}
}

func TestRegistry_Open(t *testing.T) {
	r := NewRegistry()

	r.Register("test", func() (Adapter, error) {
		return &mockAdapter{name: "test"}, nil
	})

	adapter, err := r.Open("test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if adapter.Name() != "test" {
		t.Errorf("expected adapter name 'test', got %q", adapter.Name())
	}
}

func TestRegistry_Open_NotFound(t *testing.T) {
	r := NewRegistry()

	_, err := r.Open("nonexistent")
	if err == nil {
		t.Error("expected error for non-existent driver type")
	}

	if err.Error() != "unknown driver type: nonexistent" {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestRegistry_Open_FactoryError(t *testing.T) {
	r := NewRegistry()

	r.Register("failing", func() (Adapter, error) {
		return nil, errors.New("factory error")
	})

	_, err := r.Open("failing")
	if err == nil {
		t.Error("expected error from factory")
	}

	if err.Error() != "factory error" {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestRegistry_List(t *testing.T) {
	r := NewRegistry()

	r.Register("beta", func() (Adapter, error) { return &mockAdapter{name: "beta"}, nil })
	r.Register("alpha", func() (Adapter, error) { return &mockAdapter{name: "alpha"}, nil })

	got := r.List()
	want := []string{"alpha", "beta"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}
