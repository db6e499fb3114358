package detector

import (
	"errors"
	"fmt"
)

// GeometryGate bounds candidate boxes to the shape of an elongated serial
// label before NMS runs. All values are tuned for 12-character engraved or
// printed serial text and are retunable through configuration.
type GeometryGate struct {
	MinAspectRatio float64 // width/height lower bound
	MaxAspectRatio float64 // width/height upper bound
	MinNormHeight  float64 // box height / frame height lower bound
	MaxNormHeight  float64 // box height / frame height upper bound
	MinPixelWidth  float64 // absolute minimum box width in pixels
	MinPixelHeight float64 // absolute minimum box height in pixels
}

// DefaultGeometryGate returns gate bounds for serial-label text.
func DefaultGeometryGate() GeometryGate {
	return GeometryGate{
		MinAspectRatio: 7.5,
		MaxAspectRatio: 20.0,
		MinNormHeight:  0.012,
		MaxNormHeight:  0.05,
		MinPixelWidth:  20,
		MinPixelHeight: 8,
	}
}

// FusionConfig controls fusing detector boxes with OCR-reported word boxes.
type FusionConfig struct {
	Enabled      bool    // fuse with recognizer word boxes when available
	IoUThreshold float64 // minimum IoU to count as an overlap
	Boost        float64 // confidence multiplier for overlapping detections
	DropUnfused  bool    // drop detections with no OCR overlap
}

// DefaultFusionConfig returns fusion defaults.
func DefaultFusionConfig() FusionConfig {
	return FusionConfig{
		Enabled:      true,
		IoUThreshold: 0.3,
		Boost:        1.2,
		DropUnfused:  false,
	}
}

// Config holds configuration for the region detector.
type Config struct {
	InputSize     int          // letterbox target size (default: 416)
	ConfThreshold float64      // minimum raw detection confidence (default: 0.5)
	NMSThreshold  float64      // IoU threshold for non-maximum suppression
	Gate          GeometryGate // geometry gates applied before NMS
	Fusion        FusionConfig // OCR box fusion
	NumThreads    int          // intra-op threads for the scoring model
}

// DefaultConfig returns a default detector configuration.
func DefaultConfig() Config {
	return Config{
		InputSize:     416,
		ConfThreshold: 0.5,
		NMSThreshold:  0.45,
		Gate:          DefaultGeometryGate(),
		Fusion:        DefaultFusionConfig(),
		NumThreads:    0,
	}
}

// Validate checks configuration sanity.
func (c Config) Validate() error {
	if c.InputSize <= 0 {
		return fmt.Errorf("input size must be > 0, got %d", c.InputSize)
	}
	if c.ConfThreshold < 0 || c.ConfThreshold > 1 {
		return fmt.Errorf("confidence threshold must be in [0,1], got %f", c.ConfThreshold)
	}
	if c.NMSThreshold <= 0 || c.NMSThreshold >= 1 {
		return fmt.Errorf("NMS threshold must be in (0,1), got %f", c.NMSThreshold)
	}
	if c.Gate.MinAspectRatio >= c.Gate.MaxAspectRatio {
		return errors.New("geometry gate aspect ratio bounds are inverted")
	}
	if c.Gate.MinNormHeight >= c.Gate.MaxNormHeight {
		return errors.New("geometry gate normalized height bounds are inverted")
	}
	return nil
}
