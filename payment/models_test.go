package payment

import (
	"testing"

	"github.com/marcbria/omp/types"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusQueued, StatusCompleted, true},
		{StatusQueued, StatusAbandoned, true},
		{StatusCompleted, StatusQueued, false},
		{StatusCompleted, StatusAbandoned, false},
		{StatusAbandoned, StatusQueued, false},
		{StatusAbandoned, StatusCompleted, false},
		{StatusQueued, StatusQueued, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.allowed {
				t.Errorf("CanTransition: got %v, want %v", got, tt.allowed)
			}
		})
	}
}

func TestTerminal(t *testing.T) {
	if StatusQueued.Terminal() {
		t.Error("queued must not be terminal")
	}
	if !StatusCompleted.Terminal() || !StatusAbandoned.Terminal() {
		t.Error("completed and abandoned must be terminal")
	}
}

func TestNewIntent(t *testing.T) {
	in := New("user_1", "pubf_x:file_y:r1", types.USD(500))

	if in.Status != StatusQueued {
		t.Errorf("new intent status: got %s, want %s", in.Status, StatusQueued)
	}
	if in.ID.IsNil() {
		t.Error("new intent must have an ID")
	}
	if in.CompletedAt != nil || in.AbandonedAt != nil {
		t.Error("new intent must not carry terminal timestamps")
	}

	other := New("user_1", "pubf_x:file_y:r1", types.USD(500))
	if other.ID.String() == in.ID.String() {
		t.Error("each attempt must create a distinct intent")
	}
}
