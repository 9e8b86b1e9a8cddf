package platform

import "fmt"

// ThermalStatus is the platform's ordinal throttling level.
type ThermalStatus int32

const (
	StatusError     ThermalStatus = -1
	StatusNone      ThermalStatus = 0
	StatusLight     ThermalStatus = 1
	StatusModerate  ThermalStatus = 2
	StatusSevere    ThermalStatus = 3
	StatusCritical  ThermalStatus = 4
	StatusEmergency ThermalStatus = 5
	StatusShutdown  ThermalStatus = 6
)

var statusNames = map[ThermalStatus]string{
	StatusError:     "error",
	StatusNone:      "none",
	StatusLight:     "light",
	StatusModerate:  "moderate",
	StatusSevere:    "severe",
	StatusCritical:  "critical",
	StatusEmergency: "emergency",
	StatusShutdown:  "shutdown",
}

func (s ThermalStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int32(s))
}

// Throttled reports whether the platform is actively limiting performance.
func (s ThermalStatus) Throttled() bool {
	return s >= StatusModerate
}

// Headroom of 1.0 corresponds to StatusSevere.
var headroomBounds = []struct {
	below  float32
	status ThermalStatus
}{
	{0.70, StatusNone},
	{0.85, StatusLight},
	{1.00, StatusModerate},
	{1.10, StatusSevere},
	{1.20, StatusCritical},
	{1.30, StatusEmergency},
}

// StatusFromHeadroom maps a headroom value onto a thermal status.
func StatusFromHeadroom(headroom float32) ThermalStatus {
	if headroom < 0 {
		return StatusError
	}
	for _, b := range headroomBounds {
		if headroom < b.below {
			return b.status
		}
	}
	return StatusShutdown
}
