package abav1

import (
	"regexp"
	"strconv"
	"strings"
)

// sampleRe matches crf-search output, both the per-iteration form
// ("- crf 28 VMAF 95.10 predicted video stream size 753.72 MiB (21%) taking
// 31 minutes") and the final winner line printed without the leading dash.
var sampleRe = regexp.MustCompile(`(?i)^(-\s+)?crf\s+([0-9.]+)\s+VMAF\s+([0-9.]+)\s+predicted\s+(?:video\s+stream\s+|full\s+)?size\s+([0-9.]+)\s*([KMGT]?i?B)\s+\(([0-9.]+)%\)`)

var (
	percentRe = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)\s*%`)
	fpsRe     = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)\s*fps`)
	etaRe     = regexp.MustCompile(`eta\s+([0-9]+)\s*(seconds?|minutes?|hours?|s|m|h)\b`)
)

func parseSampleLine(line string) (sample Sample, final bool, ok bool) {
	m := sampleRe.FindStringSubmatch(line)
	if m == nil {
		return Sample{}, false, false
	}
	crf, errCRF := strconv.ParseFloat(m[2], 64)
	vmaf, errVMAF := strconv.ParseFloat(m[3], 64)
	size, errSize := strconv.ParseFloat(m[4], 64)
	percent, errPct := strconv.ParseFloat(m[6], 64)
	if errCRF != nil || errVMAF != nil || errSize != nil || errPct != nil {
		return Sample{}, false, false
	}
	sample = Sample{
		CRF:                  crf,
		VMAF:                 vmaf,
		PredictedSizeBytes:   int64(size * unitMultiplier(m[5])),
		PredictedSizePercent: percent,
	}
	return sample, m[1] == "", true
}

func parseProgressLine(line string) (EncodeProgress, bool) {
	// Sample lines and the "Encoded 1.15 GiB (24%)" completion summary carry
	// percentages of their own; neither is a progress update.
	if sampleRe.MatchString(line) || strings.HasPrefix(line, "Encoded") {
		return EncodeProgress{}, false
	}
	pm := percentRe.FindStringSubmatch(line)
	if pm == nil {
		return EncodeProgress{}, false
	}
	percent, err := strconv.ParseFloat(pm[1], 64)
	if err != nil || percent < 0 || percent > 100 {
		return EncodeProgress{}, false
	}

	progress := EncodeProgress{Percent: percent}
	if fm := fpsRe.FindStringSubmatch(line); fm != nil {
		progress.FPS, _ = strconv.ParseFloat(fm[1], 64)
	}
	if em := etaRe.FindStringSubmatch(line); em != nil {
		n, _ := strconv.Atoi(em[1])
		switch em[2][0] {
		case 'h':
			progress.ETASeconds = n * 3600
		case 'm':
			progress.ETASeconds = n * 60
		default:
			progress.ETASeconds = n
		}
	}
	return progress, true
}

func unitMultiplier(unit string) float64 {
	switch strings.ToUpper(strings.TrimSpace(unit)) {
	case "B":
		return 1
	case "KB", "KIB":
		return 1 << 10
	case "MB", "MIB":
		return 1 << 20
	case "GB", "GIB":
		return 1 << 30
	case "TB", "TIB":
		return 1 << 40
	default:
		return 1
	}
}
