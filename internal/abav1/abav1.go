// Package abav1 wraps the ab-av1 command line tool.
//
// CrfSearch streams sample lines as ab-av1 probes CRF values against the
// VMAF target; Encode streams progress updates while the final encode runs.
// Both capture bounded output so command failures carry reproducible context.
package abav1

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"squeeze/internal/services"
)

// BinaryName is the ab-av1 executable resolved from PATH.
const BinaryName = "ab-av1"

var commandContext = exec.CommandContext

// Client defines ab-av1 behaviour so stages can be tested with fakes.
type Client interface {
	CrfSearch(ctx context.Context, params SearchParams, onSample func(Sample)) (*SearchResult, error)
	Encode(ctx context.Context, params EncodeParams, onProgress func(EncodeProgress)) error
}

// Option configures the CLI client.
type Option func(*CLI)

// WithBinary overrides the default binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if strings.TrimSpace(binary) != "" {
			c.binary = strings.TrimSpace(binary)
		}
	}
}

// CLI invokes the real ab-av1 binary.
type CLI struct {
	binary string
}

// NewCLI constructs a CLI client using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: BinaryName}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

var _ Client = (*CLI)(nil)

// SearchParams drives one crf-search invocation.
type SearchParams struct {
	Input      string
	TargetVMAF float64
	MinCRF     int
	MaxCRF     int
	Preset     int
	// Threads bounds encoder parallelism via the svt lp parameter. Zero
	// leaves the tool's own default in place.
	Threads int
}

// EncodeParams drives one encode invocation at a fixed CRF.
type EncodeParams struct {
	Input   string
	Output  string
	CRF     float64
	Preset  int
	Threads int
}

// Sample is one crf-search measurement as reported by ab-av1.
type Sample struct {
	CRF                float64
	VMAF               float64
	PredictedSizeBytes int64
	// PredictedSizePercent is the predicted output size as a share of the
	// source, as printed by ab-av1.
	PredictedSizePercent float64
}

// SavingsPercent converts the predicted size share into predicted savings.
func (s Sample) SavingsPercent() float64 {
	return 100 - s.PredictedSizePercent
}

// SearchResult carries every sample plus the winner ab-av1 settled on.
type SearchResult struct {
	Best    Sample
	Samples []Sample
}

// EncodeProgress is one parsed progress update from the encode output.
type EncodeProgress struct {
	Percent    float64
	FPS        float64
	ETASeconds int
}

// CrfSearch runs ab-av1 crf-search and reports each sample as it appears.
// The returned result includes the winning sample; a search that exhausts the
// CRF range without reaching the target fails with the tool's output attached.
func (c *CLI) CrfSearch(ctx context.Context, params SearchParams, onSample func(Sample)) (*SearchResult, error) {
	input := strings.TrimSpace(params.Input)
	if input == "" {
		return nil, services.Wrap(services.ErrValidation, "abav1", "crf-search", "input path required", nil)
	}

	args := []string{"crf-search", "-i", input}
	if params.TargetVMAF > 0 {
		args = append(args, "--min-vmaf", formatFloat(params.TargetVMAF))
	}
	if params.MinCRF > 0 {
		args = append(args, "--min-crf", strconv.Itoa(params.MinCRF))
	}
	if params.MaxCRF > 0 {
		args = append(args, "--max-crf", strconv.Itoa(params.MaxCRF))
	}
	if params.Preset > 0 {
		args = append(args, "--preset", strconv.Itoa(params.Preset))
	}
	if params.Threads > 0 {
		args = append(args, "--svt", fmt.Sprintf("lp=%d", params.Threads))
	}

	result := &SearchResult{}
	sawBest := false
	err := c.stream(ctx, "crf-search", args, func(line string) {
		sample, final, ok := parseSampleLine(line)
		if !ok {
			return
		}
		result.Samples = append(result.Samples, sample)
		if final {
			result.Best = sample
			sawBest = true
		}
		if onSample != nil {
			onSample(sample)
		}
	})
	if err != nil {
		return nil, err
	}
	if !sawBest {
		// Fall back to the last sample if the tool exited clean without
		// repeating a winner line.
		if len(result.Samples) == 0 {
			return nil, services.Wrap(services.ErrExternalTool, "abav1", "crf-search", "no samples reported", nil)
		}
		result.Best = result.Samples[len(result.Samples)-1]
	}
	return result, nil
}

// Encode runs ab-av1 encode at the chosen CRF, reporting parsed progress.
func (c *CLI) Encode(ctx context.Context, params EncodeParams, onProgress func(EncodeProgress)) error {
	input := strings.TrimSpace(params.Input)
	output := strings.TrimSpace(params.Output)
	if input == "" {
		return services.Wrap(services.ErrValidation, "abav1", "encode", "input path required", nil)
	}
	if output == "" {
		return services.Wrap(services.ErrValidation, "abav1", "encode", "output path required", nil)
	}
	if params.CRF <= 0 {
		return services.Wrap(services.ErrValidation, "abav1", "encode", "crf required", nil)
	}

	args := []string{"encode", "-i", input, "--crf", formatFloat(params.CRF), "-o", output}
	if params.Preset > 0 {
		args = append(args, "--preset", strconv.Itoa(params.Preset))
	}
	if params.Threads > 0 {
		args = append(args, "--svt", fmt.Sprintf("lp=%d", params.Threads))
	}

	return c.stream(ctx, "encode", args, func(line string) {
		progress, ok := parseProgressLine(line)
		if !ok {
			return
		}
		if onProgress != nil {
			onProgress(progress)
		}
	})
}

// stream launches the binary, feeds each output line to handle, and converts
// failures into classified command errors. Lines are split on both newlines
// and carriage returns so progress-bar redraws surface as lines.
func (c *CLI) stream(ctx context.Context, operation string, args []string, handle func(line string)) error {
	cmd := commandContext(ctx, c.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "abav1", operation, "stdout pipe", err)
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return services.Wrap(services.ErrExternalTool, "abav1", operation, "start ab-av1", err)
	}

	capture := newTailCapture(120)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(scanCRLines)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		capture.add(line)
		handle(line)
	}
	scanErr := scanner.Err()

	commandLine := c.binary + " " + strings.Join(args, " ")
	if err := cmd.Wait(); err != nil {
		marker := services.ErrExternalTool
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			marker = services.ErrTimeout
		}
		cmdErr := services.NewCommandError(commandLine, capture.bytes(), err)
		return services.Wrap(marker, "abav1", operation, "ab-av1 failed", cmdErr)
	}
	if scanErr != nil {
		return services.Wrap(services.ErrExternalTool, "abav1", operation, "read ab-av1 output", scanErr)
	}
	return nil
}

// scanCRLines is a bufio.SplitFunc treating both \n and \r as terminators.
func scanCRLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// tailCapture keeps the most recent output lines for failure context.
type tailCapture struct {
	limit int
	lines []string
}

func newTailCapture(limit int) *tailCapture {
	return &tailCapture{limit: limit}
}

func (t *tailCapture) add(line string) {
	t.lines = append(t.lines, line)
	if len(t.lines) > t.limit {
		t.lines = t.lines[len(t.lines)-t.limit:]
	}
}

func (t *tailCapture) bytes() []byte {
	return []byte(strings.Join(t.lines, "\n"))
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
