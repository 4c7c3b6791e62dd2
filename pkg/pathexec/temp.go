package pathexec

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// tempSuffix separates in-flight staging files from final names. Stale
// temporaries from a crashed run are recognizable by this pattern.
const tempSuffix = ".janus-tmp-"

// tempSibling returns a unique staging path next to finalPath. The 16 hex
// characters of randomness keep concurrent executors from colliding.
func tempSibling(finalPath string) (string, error) {
	var raw [8]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("failed to generate temporary name: %w", err)
	}
	return finalPath + tempSuffix + hex.EncodeToString(raw[:]), nil
}
