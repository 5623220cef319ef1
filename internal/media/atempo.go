package media

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	atempoMin = 0.5
	atempoMax = 2.0
)

// AtempoFilter builds an ffmpeg audio filter that scales tempo by speed.
// Older ffmpeg builds clamp a single atempo stage to [0.5, 2.0], so factors
// outside that range become a chain of stages whose product is speed.
func AtempoFilter(speed float64) (string, error) {
	if speed <= 0 || math.IsNaN(speed) || math.IsInf(speed, 0) {
		return "", fmt.Errorf("invalid tempo factor %v", speed)
	}
	var stages []string
	remaining := speed
	for remaining > atempoMax {
		stages = append(stages, "atempo="+FormatSpeed(atempoMax))
		remaining /= atempoMax
	}
	for remaining < atempoMin {
		stages = append(stages, "atempo="+FormatSpeed(atempoMin))
		remaining /= atempoMin
	}
	stages = append(stages, "atempo="+FormatSpeed(remaining))
	return strings.Join(stages, ","), nil
}

// FormatSpeed renders a factor with the shortest exact decimal form: 2.0 is
// "2" and 1.5 is "1.5".
func FormatSpeed(speed float64) string {
	return strconv.FormatFloat(speed, 'f', -1, 64)
}
