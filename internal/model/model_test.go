package model

import "testing"

func TestRedemptionStatusCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    RedemptionStatus
		to      RedemptionStatus
		allowed bool
	}{
		{
			name:    "pending to processing",
			from:    RedemptionStatusPending,
			to:      RedemptionStatusProcessing,
			allowed: true,
		},
		{
			name:    "pending to fulfilled",
			from:    RedemptionStatusPending,
			to:      RedemptionStatusFulfilled,
			allowed: true,
		},
		{
			name:    "pending to cancelled",
			from:    RedemptionStatusPending,
			to:      RedemptionStatusCancelled,
			allowed: true,
		},
		{
			name:    "processing to fulfilled",
			from:    RedemptionStatusProcessing,
			to:      RedemptionStatusFulfilled,
			allowed: true,
		},
		{
			name:    "processing to failed",
			from:    RedemptionStatusProcessing,
			to:      RedemptionStatusFailed,
			allowed: true,
		},
		{
			name:    "processing to processing",
			from:    RedemptionStatusProcessing,
			to:      RedemptionStatusProcessing,
			allowed: false,
		},
		{
			name:    "fulfilled to cancelled",
			from:    RedemptionStatusFulfilled,
			to:      RedemptionStatusCancelled,
			allowed: false,
		},
		{
			name:    "failed to processing",
			from:    RedemptionStatusFailed,
			to:      RedemptionStatusProcessing,
			allowed: false,
		},
		{
			name:    "cancelled to fulfilled",
			from:    RedemptionStatusCancelled,
			to:      RedemptionStatusFulfilled,
			allowed: false,
		},
		{
			name:    "pending to pending",
			from:    RedemptionStatusPending,
			to:      RedemptionStatusPending,
			allowed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.from.CanTransition(tt.to)
			if got != tt.allowed {
				t.Fatalf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
			}
		})
	}
}

func TestRedemptionStatusTerminal(t *testing.T) {
	terminal := []RedemptionStatus{RedemptionStatusFulfilled, RedemptionStatusFailed, RedemptionStatusCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Fatalf("status %s must be terminal", s)
		}
	}

	active := []RedemptionStatus{RedemptionStatusPending, RedemptionStatusProcessing}
	for _, s := range active {
		if s.Terminal() {
			t.Fatalf("status %s must not be terminal", s)
		}
	}
}

func TestTerminalStatusRejectsAllTransitions(t *testing.T) {
	all := []RedemptionStatus{
		RedemptionStatusPending,
		RedemptionStatusProcessing,
		RedemptionStatusFulfilled,
		RedemptionStatusFailed,
		RedemptionStatusCancelled,
	}

	for _, from := range all {
		if !from.Terminal() {
			continue
		}
		for _, to := range all {
			if from.CanTransition(to) {
				t.Fatalf("terminal status %s must reject transition to %s", from, to)
			}
		}
	}
}
