package utils

import (
	"fmt"
	"math/rand"
	"os"
)

// CreateFolder creates the directory (and parents) if it does not exist.
func CreateFolder(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("failed to create folder %q: %w", path, err)
		}
	}
	return nil
}

// GenerateUniqueID returns a random 32-bit identifier for file naming.
func GenerateUniqueID() uint32 {
	return rand.Uint32()
}
