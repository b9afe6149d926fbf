package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/looplab/fsm"
)

func doorMachine(opened *int) Machine {
	return func(initial string) *fsm.FSM {
		return fsm.NewFSM(initial,
			fsm.Events{
				{Name: "open", Src: []string{"closed"}, Dst: "open"},
				{Name: "close", Src: []string{"open"}, Dst: "closed"},
			},
			fsm.Callbacks{
				"enter_open": WrapEvent(func(ctx context.Context, e *fsm.Event) error {
					*opened++
					return nil
				}),
				"before_close": WrapEvent(func(ctx context.Context, e *fsm.Event) error {
					if len(e.Args) > 0 && e.Args[0] == "jammed" {
						return errors.New("door jammed")
					}
					return nil
				}),
			},
		)
	}
}

func TestFire(t *testing.T) {
	opened := 0
	m := doorMachine(&opened)
	ctx := context.Background()

	state, err := m.Fire(ctx, "closed", "open")
	if err != nil || state != "open" {
		t.Fatalf("Fire(open) = %q, %v", state, err)
	}
	if opened != 1 {
		t.Fatalf("enter callback ran %d times, want 1", opened)
	}

	if _, err := m.Fire(ctx, "closed", "close"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Fire(close from closed) error = %v, want ErrInvalidTransition", err)
	}
	if _, err := m.Fire(ctx, "closed", "explode"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Fire(unknown) error = %v, want ErrInvalidTransition", err)
	}

	state, err = m.Fire(ctx, "open", "close", "jammed")
	if err == nil || errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("guard error = %v, want callback error", err)
	}
	if state != "open" {
		t.Fatalf("state after failed guard = %q, want open", state)
	}
}

func TestAllowed(t *testing.T) {
	m := doorMachine(new(int))
	if !m.Allowed("open", "close") || m.Allowed("closed", "close") {
		t.Fatalf("Allowed() mismatch")
	}
}
