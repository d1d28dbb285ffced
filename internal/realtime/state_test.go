package realtime

import "testing"

func TestInitialState(t *testing.T) {
	m := newMachine(nil)
	if m.Current() != Disconnected {
		t.Errorf("initial state = %s, want DISCONNECTED", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Disconnected, Connecting},
		{Connecting, Connected},
		{Connecting, Reconnecting},
		{Connected, Reconnecting},
		{Connected, Disconnected},
		{Reconnecting, Connecting},
		{Reconnecting, Disconnected},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := newMachine(nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransition(t *testing.T) {
	m := newMachine(nil)
	if err := m.Transition(Connected); err == nil {
		t.Error("Transition(DISCONNECTED -> CONNECTED) should fail; must go through CONNECTING")
	}
	if m.Current() != Disconnected {
		t.Errorf("state = %s, want DISCONNECTED (should not have changed)", m.Current())
	}
}

// TestDropReconnectCycle walks the full outage lifecycle:
// CONNECTED → RECONNECTING → CONNECTING → CONNECTED.
func TestDropReconnectCycle(t *testing.T) {
	m := newMachine(nil)
	walkTo(t, m, Connected)

	steps := []State{Reconnecting, Connecting, Connected}
	for _, s := range steps {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
	if m.Current() != Connected {
		t.Errorf("final state = %s, want CONNECTED", m.Current())
	}
}

func TestTransitionNotifies(t *testing.T) {
	var gotFrom, gotTo State
	m := newMachine(func(from, to State) {
		gotFrom, gotTo = from, to
	})
	if err := m.Transition(Connecting); err != nil {
		t.Fatal(err)
	}
	if gotFrom != Disconnected || gotTo != Connecting {
		t.Errorf("notified %s -> %s, want DISCONNECTED -> CONNECTING", gotFrom, gotTo)
	}
}

func TestFailedTransitionDoesNotNotify(t *testing.T) {
	calls := 0
	m := newMachine(func(State, State) { calls++ })
	_ = m.Transition(Connected) // invalid from DISCONNECTED
	if calls != 0 {
		t.Errorf("notify called %d times on failed transition, want 0", calls)
	}
}

// walkTo transitions the machine to a target state via a legal path.
func walkTo(t *testing.T, m *machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Disconnected: {},
		Connecting:   {Connecting},
		Connected:    {Connecting, Connected},
		Reconnecting: {Connecting, Connected, Reconnecting},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
