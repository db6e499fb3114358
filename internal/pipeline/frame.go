package pipeline

import (
	"image"
	"time"
)

// Frame is one camera frame pushed into the pipeline.
type Frame struct {
	Image     image.Image
	Timestamp time.Time
	Metadata  map[string]string
}

// DeviceClass coarsely ranks the capture device; weaker or
// higher-resolution devices skip more frames to stay within budget.
type DeviceClass string

const (
	DeviceClassHigh DeviceClass = "high"
	DeviceClassMid  DeviceClass = "mid"
	DeviceClassLow  DeviceClass = "low"
)

// skipStride returns the admission stride for a device class: process one
// of every N admitted frames.
func skipStride(class DeviceClass) int {
	switch class {
	case DeviceClassLow:
		return 3
	case DeviceClassMid:
		return 2
	default:
		return 1
	}
}
