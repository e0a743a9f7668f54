package models

import "testing"

func TestStatusTransitions(t *testing.T) {
	legal := [][2]RideStatus{
		{StatusRequested, StatusAccepted},
		{StatusAccepted, StatusOngoing},
		{StatusOngoing, StatusCompleted},
		{StatusRequested, StatusCancelled},
		{StatusAccepted, StatusCancelled},
		{StatusOngoing, StatusCancelled},
	}
	for _, p := range legal {
		if !p[0].CanTransitionTo(p[1]) {
			t.Fatalf("expected %s -> %s to be legal", p[0], p[1])
		}
	}

	illegal := [][2]RideStatus{
		{StatusRequested, StatusOngoing},
		{StatusAccepted, StatusRequested},
		{StatusOngoing, StatusAccepted},
		{StatusCompleted, StatusCancelled},
		{StatusCancelled, StatusRequested},
	}
	for _, p := range illegal {
		if p[0].CanTransitionTo(p[1]) {
			t.Fatalf("expected %s -> %s to be illegal", p[0], p[1])
		}
	}
}

func TestTerminal(t *testing.T) {
	if !StatusCompleted.Terminal() || !StatusCancelled.Terminal() {
		t.Fatal("completed and cancelled must be terminal")
	}
	if StatusRequested.Terminal() {
		t.Fatal("requested is not terminal")
	}
	if RideStatus("bogus").Terminal() {
		t.Fatal("unknown status is not terminal")
	}
}

func TestWithoutOTPLeavesOriginal(t *testing.T) {
	r := &Ride{ID: "r1", OTP: "483920"}
	cp := r.WithoutOTP()
	if cp.OTP != "" {
		t.Fatalf("expected blank otp, got %q", cp.OTP)
	}
	if r.OTP != "483920" {
		t.Fatalf("original otp changed to %q", r.OTP)
	}
}
