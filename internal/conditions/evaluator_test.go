package conditions

import "testing"

func threshold(v float64) *float64 { return &v }

func TestNeedsRerouting(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		obs   Weather
		found bool
		want  bool
	}{
		{"absent observation", Weather{WindSpeed: 40, Precipitation: 40}, false, false},
		{"calm", Weather{WindSpeed: 3, Precipitation: 0}, true, false},
		{"wind at limit", Weather{WindSpeed: 15}, true, false},
		{"wind above limit", Weather{WindSpeed: 15.1}, true, true},
		{"rain at limit", Weather{Precipitation: 5}, true, false},
		{"rain above limit", Weather{Precipitation: 5.2}, true, true},
	}
	for _, tc := range cases {
		if got := NeedsRerouting(tc.obs, tc.found); got != tc.want {
			t.Errorf("%s: NeedsRerouting = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestMaintenanceDue(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		eq   Equipment
		want bool
	}{
		{"reached threshold", Equipment{UsageHours: 1000, MaintenanceThreshold: threshold(1000)}, true},
		{"below threshold", Equipment{UsageHours: 999, MaintenanceThreshold: threshold(1000)}, false},
		{"nil threshold", Equipment{UsageHours: 5000}, false},
		{"zero threshold", Equipment{UsageHours: 5000, MaintenanceThreshold: threshold(0)}, false},
	}
	for _, tc := range cases {
		if got := MaintenanceDue(tc.eq); got != tc.want {
			t.Errorf("%s: MaintenanceDue = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestReorderDue(t *testing.T) {
	t.Parallel()

	if !ReorderDue(Consumable{Quantity: 10, ReorderThreshold: 10}) {
		t.Fatalf("expected reorder at threshold")
	}
	if ReorderDue(Consumable{Quantity: 11, ReorderThreshold: 10}) {
		t.Fatalf("did not expect reorder above threshold")
	}
}
