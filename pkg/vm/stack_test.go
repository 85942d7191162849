package vm

import (
	"errors"
	"reflect"
	"testing"
)

func TestBase(t *testing.T) {
	s := NewStack(20)
	// frame at 10 links to 15, 15 links to 19
	_ = s.Store(10, 15)
	_ = s.Store(15, 19)

	tests := []struct {
		level, base, want int
	}{
		{0, 10, 10},
		{0, 3, 3},
		{1, 10, 15},
		{2, 10, 19},
		{1, 15, 19},
	}
	for _, tt := range tests {
		got, err := Base(tt.level, tt.base, s)
		if err != nil {
			t.Fatalf("Base(%d, %d) failed: %v", tt.level, tt.base, err)
		}
		if got != tt.want {
			t.Errorf("Base(%d, %d): expected %d, got %d", tt.level, tt.base, tt.want, got)
		}
	}
}

func TestBase_OutOfRange(t *testing.T) {
	s := NewStack(20)
	_ = s.Store(10, 42)

	if _, err := Base(2, 10, s); !errors.Is(err, ErrStackBounds) {
		t.Errorf("expected ErrStackBounds for link outside memory, got %v", err)
	}
	if _, err := Base(1, 20, s); !errors.Is(err, ErrStackBounds) {
		t.Errorf("expected ErrStackBounds for base outside memory, got %v", err)
	}
	if _, err := Base(-1, 10, s); !errors.Is(err, ErrStackBounds) {
		t.Errorf("expected ErrStackBounds for negative level, got %v", err)
	}
}

func TestStack_LoadStore(t *testing.T) {
	s := NewStack(4)
	if s.Cap() != 4 {
		t.Fatalf("expected cap 4, got %d", s.Cap())
	}
	if err := s.Store(3, -9); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if v, err := s.Load(3); err != nil || v != -9 {
		t.Errorf("expected -9, got %d (%v)", v, err)
	}
	for _, addr := range []int{-1, 4} {
		if err := s.Store(addr, 1); !errors.Is(err, ErrStackBounds) {
			t.Errorf("Store(%d): expected ErrStackBounds, got %v", addr, err)
		}
		if _, err := s.Load(addr); !errors.Is(err, ErrStackBounds) {
			t.Errorf("Load(%d): expected ErrStackBounds, got %v", addr, err)
		}
	}

	s.Reset()
	if v, _ := s.Load(3); v != 0 {
		t.Errorf("expected zero after Reset, got %d", v)
	}
}

func TestStack_Live(t *testing.T) {
	s := NewStack(5)
	for addr := 0; addr < 5; addr++ {
		_ = s.Store(addr, int64(addr*10))
	}

	if got := s.Live(2); !reflect.DeepEqual(got, []int64{40, 30, 20}) {
		t.Errorf("expected [40 30 20], got %v", got)
	}
	if got := s.Live(5); len(got) != 0 {
		t.Errorf("expected no live cells, got %v", got)
	}
	if got := s.Live(-3); len(got) != 5 {
		t.Errorf("expected all cells, got %v", got)
	}
}

func TestRegisterFile(t *testing.T) {
	rf := NewRegisterFile()
	for i := 0; i < NumRegisters; i++ {
		if err := rf.Set(i, int64(i+100)); err != nil {
			t.Fatalf("Set(%d) failed: %v", i, err)
		}
	}
	if v, _ := rf.Get(6); v != 106 {
		t.Errorf("expected R6 = 106, got %d", v)
	}
	if err := rf.Set(7, 1); !errors.Is(err, ErrInvalidRegister) {
		t.Errorf("expected ErrInvalidRegister, got %v", err)
	}
	if _, err := rf.Get(-1); !errors.Is(err, ErrInvalidRegister) {
		t.Errorf("expected ErrInvalidRegister, got %v", err)
	}
	rf.Reset()
	if rf.R != [NumRegisters]int64{} {
		t.Errorf("expected zeroed registers, got %v", rf.R)
	}
}
