// Package sysfs backs the platform boundary with Linux thermal zones and
// scheduler utilization clamps.
package sysfs

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"codeberg.org/mutker/thermhint/internal/errors"
)

const (
	DefaultRoot = "/sys/class/thermal"

	// Used when a zone publishes no passive, hot or critical trip point.
	defaultSevereMilliC = 95000
	criticalMargin      = 0.9
)

// Zone is one thermal_zone* directory.
type Zone struct {
	Name string
	Type string
	path string
	// severe is the temperature, in millidegrees, that maps to headroom 1.0.
	severe int64
}

// DiscoverZones lists the thermal zones under root.
func DiscoverZones(root string) ([]Zone, error) {
	errFactory := errors.New()

	matches, err := filepath.Glob(filepath.Join(root, "thermal_zone*"))
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrThermalReadFailed, err)
	}
	sort.Strings(matches)

	var zones []Zone
	for _, dir := range matches {
		if _, err := os.Stat(filepath.Join(dir, "temp")); err != nil {
			continue
		}
		zones = append(zones, Zone{
			Name:   filepath.Base(dir),
			Type:   readString(filepath.Join(dir, "type")),
			path:   dir,
			severe: severeThreshold(dir),
		})
	}

	if len(zones) == 0 {
		return nil, errFactory.WithData(errors.ErrCapabilityAbsent, struct {
			Root string
		}{Root: root})
	}

	return zones, nil
}

// Temperature returns the zone temperature in millidegrees Celsius.
func (z Zone) Temperature() (int64, error) {
	v, err := readInt(filepath.Join(z.path, "temp"))
	if err != nil {
		return 0, errors.New().Wrap(errors.ErrThermalReadFailed, err)
	}
	return v, nil
}

// Headroom is the current temperature relative to the severe threshold.
func (z Zone) Headroom() (float32, error) {
	t, err := z.Temperature()
	if err != nil {
		return 0, err
	}
	if t < 0 {
		t = 0
	}
	return float32(float64(t) / float64(z.severe)), nil
}

// severeThreshold picks the lowest passive or hot trip point, falling back to
// a fraction of the critical trip.
func severeThreshold(dir string) int64 {
	types, _ := filepath.Glob(filepath.Join(dir, "trip_point_*_type"))

	var lowest, critical int64
	for _, typePath := range types {
		tempPath := strings.TrimSuffix(typePath, "_type") + "_temp"
		temp, err := readInt(tempPath)
		if err != nil || temp <= 0 {
			continue
		}

		switch readString(typePath) {
		case "passive", "hot":
			if lowest == 0 || temp < lowest {
				lowest = temp
			}
		case "critical":
			critical = temp
		}
	}

	switch {
	case lowest > 0:
		return lowest
	case critical > 0:
		return int64(float64(critical) * criticalMargin)
	default:
		return defaultSevereMilliC
	}
}

func readString(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func readInt(path string) (int64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
}
