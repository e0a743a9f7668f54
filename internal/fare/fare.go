package fare

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/example/ride-hailing/internal/models"
)

// Rate is one row of the fare table.
type Rate struct {
	Base      float64 `yaml:"base" json:"base"`
	PerKm     float64 `yaml:"per_km" json:"per_km"`
	PerMinute float64 `yaml:"per_minute" json:"per_minute"`
}

// Table maps each vehicle class to its rate.
type Table map[models.VehicleClass]Rate

// Quote is the fare for every vehicle class over one route.
type Quote map[models.VehicleClass]int64

func DefaultTable() Table {
	return Table{
		models.VehicleCar:  {Base: 30, PerKm: 10, PerMinute: 3.0},
		models.VehicleAuto: {Base: 15, PerKm: 8, PerMinute: 2.0},
		models.VehicleMoto: {Base: 10, PerKm: 5, PerMinute: 1.5},
	}
}

type tableFile struct {
	Rates map[string]Rate `yaml:"rates"`
}

// LoadTable reads a YAML rate table. Classes missing from the file keep
// their default rate.
func LoadTable(path string) (Table, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fare table: %w", err)
	}
	var f tableFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse fare table %s: %w", path, err)
	}
	t := DefaultTable()
	for name, rate := range f.Rates {
		class := models.VehicleClass(name)
		if !class.Valid() {
			return nil, fmt.Errorf("fare table %s: unknown vehicle class %q", path, name)
		}
		if rate.Base < 0 || rate.PerKm < 0 || rate.PerMinute < 0 {
			return nil, fmt.Errorf("fare table %s: negative rate for %q", path, name)
		}
		t[class] = rate
	}
	return t, nil
}

// Calculator prices routes. It holds no mutable state and is safe for
// concurrent use.
type Calculator struct {
	table Table
}

func NewCalculator(t Table) *Calculator {
	if t == nil {
		t = DefaultTable()
	}
	return &Calculator{table: t}
}

// Fare returns round(base + perKm*km + perMinute*minutes) for class.
func (c *Calculator) Fare(class models.VehicleClass, distanceMeters, durationSeconds float64) (int64, error) {
	rate, ok := c.table[class]
	if !ok {
		return 0, fmt.Errorf("no rate for vehicle class %q", class)
	}
	km := distanceMeters / 1000
	minutes := durationSeconds / 60
	return int64(math.Round(rate.Base + rate.PerKm*km + rate.PerMinute*minutes)), nil
}

// Quote prices the route for every known vehicle class.
func (c *Calculator) Quote(distanceMeters, durationSeconds float64) Quote {
	q := make(Quote, len(models.VehicleClasses))
	for _, class := range models.VehicleClasses {
		if f, err := c.Fare(class, distanceMeters, durationSeconds); err == nil {
			q[class] = f
		}
	}
	return q
}
