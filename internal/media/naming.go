package media

import "strings"

// SpeedOutputPath derives the tempo-adjusted file name from the primary
// output: output.mp3 with factor 2 becomes output_speed2.mp3.
func SpeedOutputPath(output string, speed float64) string {
	suffix := "_speed" + FormatSpeed(speed) + ".mp3"
	if strings.HasSuffix(output, ".mp3") {
		return strings.TrimSuffix(output, ".mp3") + suffix
	}
	return output + suffix
}
