package liveness

import (
	"fmt"
	"sync"
)

var (
	detectorMu      sync.RWMutex
	defaultDetector Detector
)

// RegisterDetector installs the process-wide face detector. Detection
// packages call this from init; the last registration wins.
func RegisterDetector(d Detector) {
	detectorMu.Lock()
	defer detectorMu.Unlock()
	defaultDetector = d
}

// DefaultDetector returns the registered face detector.
func DefaultDetector() (Detector, error) {
	detectorMu.RLock()
	defer detectorMu.RUnlock()
	if defaultDetector == nil {
		return nil, fmt.Errorf("no face detector registered: link a detection package that calls liveness.RegisterDetector")
	}
	return defaultDetector, nil
}
