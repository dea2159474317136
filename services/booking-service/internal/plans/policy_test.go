package plans

import "testing"

func TestLimitsForTier(t *testing.T) {
	if LimitsForTier("free").MaxMonthlyAppointments != 100 {
		t.Fatal("free tier cap changed")
	}
	if LimitsForTier("pro").Tier != "pro" {
		t.Fatal("pro tier not recognized")
	}
	if LimitsForTier("unknown").Tier != "free" {
		t.Fatal("unknown tiers must fall back to free")
	}
}

func TestAllowed(t *testing.T) {
	cases := []struct {
		count, max int
		want       bool
	}{
		{0, 100, true},
		{99, 100, true},
		{100, 100, false},
		{101, 100, false},
		{5000, 0, true},  // zero cap means unlimited
		{5000, -1, true}, // negative treated the same
	}
	for _, tc := range cases {
		if got := Allowed(tc.count, tc.max); got != tc.want {
			t.Errorf("Allowed(%d, %d) = %v, want %v", tc.count, tc.max, got, tc.want)
		}
	}
}
