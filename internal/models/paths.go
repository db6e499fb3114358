// Package models resolves the on-disk locations of the trained scoring
// models consumed by the pipeline. The pipeline treats each model as an
// opaque scoring function; this package only knows where the files live.
package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Model file name constants to avoid typos and ensure consistency.
const (
	// RegionDetector locates serial-bearing rectangles in a frame.
	RegionDetector = "serial_region_det.onnx"
	// TextRecognizer reads the characters out of a cropped region.
	TextRecognizer = "serial_text_rec.onnx"
	// FormatClassifier scores serial-likelihood of a candidate string.
	FormatClassifier = "serial_format_clf.onnx"
	// CharClassifier disambiguates single glyph crops.
	CharClassifier = "serial_char_clf.onnx"
)

// Model roles, used as registry keys and in degraded-capability reporting.
const (
	RoleDetector   = "detector"
	RoleRecognizer = "recognizer"
	RoleClassifier = "classifier"
	RoleCharModel  = "charmodel"
)

// Default models directory.
const DefaultModelsDir = "models"

// Environment variable for models directory override.
const EnvModelsDir = "SERIALSCAN_MODELS_DIR"

// findProjectRoot finds the project root by looking for go.mod.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", errors.New("could not find project root (go.mod not found)")
}

// GetModelsDir returns the models directory path.
// Priority: 1. explicit modelsDir parameter, 2. environment variable,
// 3. project root + default.
func GetModelsDir(modelsDir string) string {
	if modelsDir != "" {
		return modelsDir
	}
	if envDir := os.Getenv(EnvModelsDir); envDir != "" {
		return envDir
	}
	if projectRoot, err := findProjectRoot(); err == nil {
		return filepath.Join(projectRoot, DefaultModelsDir)
	}
	return DefaultModelsDir
}

// GetDetectorModelPath returns the region detection model path.
func GetDetectorModelPath(modelsDir string) string {
	return filepath.Join(GetModelsDir(modelsDir), RegionDetector)
}

// GetRecognizerModelPath returns the text recognition model path.
func GetRecognizerModelPath(modelsDir string) string {
	return filepath.Join(GetModelsDir(modelsDir), TextRecognizer)
}

// GetClassifierModelPath returns the format classification model path.
func GetClassifierModelPath(modelsDir string) string {
	return filepath.Join(GetModelsDir(modelsDir), FormatClassifier)
}

// GetCharModelPath returns the character classification model path.
func GetCharModelPath(modelsDir string) string {
	return filepath.Join(GetModelsDir(modelsDir), CharClassifier)
}

// PathForRole maps a model role to its file path.
func PathForRole(modelsDir, role string) (string, error) {
	switch role {
	case RoleDetector:
		return GetDetectorModelPath(modelsDir), nil
	case RoleRecognizer:
		return GetRecognizerModelPath(modelsDir), nil
	case RoleClassifier:
		return GetClassifierModelPath(modelsDir), nil
	case RoleCharModel:
		return GetCharModelPath(modelsDir), nil
	default:
		return "", fmt.Errorf("unknown model role: %s", role)
	}
}

// ValidateModelFile checks whether a model file exists and is readable.
func ValidateModelFile(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", path)
	}
	if err != nil {
		return fmt.Errorf("model file not accessible: %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("model path is a directory: %s", path)
	}
	return nil
}
