package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	fileValues   map[string]string
	fileValuesMu sync.RWMutex
)

// LoadFile reads a flat YAML map of variable names to values, e.g.
//
//	API_BASE_URL: https://api.moviesir.cloud
//	SESSION_WINDOW: "3600000"
func LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("[config LoadFile] read %s: %w", path, err)
	}
	values := map[string]string{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("[config LoadFile] parse %s: %w", path, err)
	}
	fileValuesMu.Lock()
	fileValues = values
	fileValuesMu.Unlock()
	return nil
}

// ResetFile drops any loaded overlay
func ResetFile() {
	fileValuesMu.Lock()
	fileValues = nil
	fileValuesMu.Unlock()
}

func fileValue(key string) (string, bool) {
	fileValuesMu.RLock()
	defer fileValuesMu.RUnlock()
	v, ok := fileValues[key]
	return v, ok && v != ""
}
