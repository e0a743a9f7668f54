package fare

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/example/ride-hailing/internal/models"
)

func TestFareExampleScenario(t *testing.T) {
	c := NewCalculator(nil)
	got, err := c.Fare(models.VehicleCar, 5000, 900)
	if err != nil {
		t.Fatalf("fare: %v", err)
	}
	if got != 125 {
		t.Fatalf("expected 125, got %d", got)
	}
}

func TestQuoteAllClasses(t *testing.T) {
	q := NewCalculator(nil).Quote(5000, 900)
	want := Quote{
		models.VehicleCar:  125,
		models.VehicleAuto: 85,
		models.VehicleMoto: 58, // 57.5 rounds half away from zero
	}
	for class, fare := range want {
		if q[class] != fare {
			t.Fatalf("%s: expected %d, got %d", class, fare, q[class])
		}
	}
}

func TestFareIsDeterministic(t *testing.T) {
	c := NewCalculator(nil)
	q := c.Quote(12345, 1234)
	for _, class := range models.VehicleClasses {
		f, err := c.Fare(class, 12345, 1234)
		if err != nil {
			t.Fatalf("fare: %v", err)
		}
		if f != q[class] {
			t.Fatalf("%s: quote %d differs from direct fare %d", class, q[class], f)
		}
	}
}

func TestFareUnknownClass(t *testing.T) {
	if _, err := NewCalculator(nil).Fare("bus", 1000, 60); err == nil {
		t.Fatal("expected error for unknown class")
	}
}

func TestLoadTableOverridesAndKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fares.yaml")
	body := "rates:\n  car:\n    base: 50\n    per_km: 12\n    per_minute: 2\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	tbl, err := LoadTable(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tbl[models.VehicleCar].Base != 50 {
		t.Fatalf("expected car base 50, got %v", tbl[models.VehicleCar].Base)
	}
	if tbl[models.VehicleMoto] != DefaultTable()[models.VehicleMoto] {
		t.Fatalf("moto rate should keep default")
	}
}

func TestLoadTableRejectsUnknownClass(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fares.yaml")
	if err := os.WriteFile(path, []byte("rates:\n  bus:\n    base: 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTable(path); err == nil {
		t.Fatal("expected error for unknown class")
	}
}
