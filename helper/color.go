package helper

import (
	"fmt"
	"math/rand/v2"
)

// RandomColor returns a random hex color code, e.g. for a new concept.
func RandomColor() string {
	return fmt.Sprintf("#%06x", rand.IntN(0xFFFFFF+1))
}
