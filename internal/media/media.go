// Package media inspects video containers with ffprobe.
//
// Probe shells out to ffprobe and distills its JSON report into the compact
// Info the pipeline stores on queue items. The raw stream and format
// documents stay private; stages only consume Info.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"squeeze/internal/services"
)

// BinaryName is the ffprobe executable resolved from PATH.
const BinaryName = "ffprobe"

var commandContext = exec.CommandContext

// Info is the distilled ffprobe report for one video file.
type Info struct {
	VideoCodec      string  `json:"video_codec"`
	PixelFormat     string  `json:"pixel_format"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	DurationSeconds float64 `json:"duration_seconds"`
	SizeBytes       int64   `json:"size_bytes"`
	BitrateKbps     int64   `json:"bitrate_kbps"`
	FormatName      string  `json:"format_name"`
	VideoStreams    int     `json:"video_streams"`
	AudioStreams    int     `json:"audio_streams"`
}

// HasVideo reports whether the container carries at least one real video
// stream (cover art excluded).
func (i *Info) HasVideo() bool {
	return i != nil && i.VideoStreams > 0
}

// report mirrors the ffprobe JSON document.
type report struct {
	Streams []stream `json:"streams"`
	Format  format   `json:"format"`
}

type stream struct {
	Index       int    `json:"index"`
	CodecName   string `json:"codec_name"`
	CodecType   string `json:"codec_type"`
	PixFmt      string `json:"pix_fmt"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	BitRate     string `json:"bit_rate"`
	Disposition struct {
		AttachedPic int `json:"attached_pic"`
	} `json:"disposition"`
}

type format struct {
	Filename   string `json:"filename"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
	FormatName string `json:"format_name"`
}

// Probe executes ffprobe against the provided path and returns the distilled
// report. Command failures carry the invocation and captured output for the
// failure ledger.
func Probe(ctx context.Context, binary, path string) (*Info, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = BinaryName
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, services.Wrap(services.ErrValidation, "media", "probe", "empty source path", nil)
	}

	args := []string{"-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path}
	cmd := commandContext(ctx, binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		marker := services.ErrExternalTool
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			marker = services.ErrTimeout
		}
		cmdErr := services.NewCommandError(binary+" "+strings.Join(args, " "), output, err)
		return nil, services.Wrap(marker, "media", "ffprobe", "inspect failed", cmdErr)
	}

	info, err := parseReport(output)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "media", "ffprobe", "parse report", err)
	}
	return info, nil
}

func parseReport(data []byte) (*Info, error) {
	var doc report
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	info := &Info{FormatName: strings.TrimSpace(doc.Format.FormatName)}
	info.DurationSeconds = parseFloat(doc.Format.Duration)
	if size := parseFloat(doc.Format.Size); size > 0 {
		info.SizeBytes = int64(size)
	}
	if rate := parseFloat(doc.Format.BitRate); rate > 0 {
		info.BitrateKbps = int64(rate / 1000)
	}

	for _, s := range doc.Streams {
		switch {
		case strings.EqualFold(s.CodecType, "video"):
			if s.Disposition.AttachedPic == 1 {
				// Embedded cover art, not a video track.
				continue
			}
			info.VideoStreams++
			if info.VideoCodec == "" {
				info.VideoCodec = strings.TrimSpace(s.CodecName)
				info.PixelFormat = strings.TrimSpace(s.PixFmt)
				info.Width = s.Width
				info.Height = s.Height
			}
		case strings.EqualFold(s.CodecType, "audio"):
			info.AudioStreams++
		}
	}
	return info, nil
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(parsed) || parsed < 0 {
		return 0
	}
	return parsed
}
