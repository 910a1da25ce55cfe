package pdfkit

import (
	"fmt"
	"sync"
)

var (
	engineMu      sync.RWMutex
	defaultEngine Engine
)

// RegisterEngine installs the process-wide PDF engine. Toolkit packages call
// this from init, in the manner of database/sql drivers; the last
// registration wins.
func RegisterEngine(e Engine) {
	engineMu.Lock()
	defer engineMu.Unlock()
	defaultEngine = e
}

// DefaultEngine returns the registered PDF engine.
func DefaultEngine() (Engine, error) {
	engineMu.RLock()
	defer engineMu.RUnlock()
	if defaultEngine == nil {
		return nil, fmt.Errorf("no PDF engine registered: link a toolkit package that calls pdfkit.RegisterEngine")
	}
	return defaultEngine, nil
}
