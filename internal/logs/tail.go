package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// followPollInterval paces rescans of the file while a follow call waits
// for new lines.
const followPollInterval = 200 * time.Millisecond

// maxLineBytes caps a single log line. Structured log records stay far
// below this; anything larger is treated as a read error.
const maxLineBytes = 512 * 1024

// TailOptions selects the slice of the log file to return. A negative
// Offset asks for the last Limit lines; a non-negative Offset resumes a
// previous call at that byte position. Follow keeps the call open for up
// to Wait when the read would otherwise come back empty.
type TailOptions struct {
	Offset int64
	Limit  int
	Follow bool
	Wait   time.Duration
}

// TailResult carries the returned lines and the byte offset at which the
// next call should resume.
type TailResult struct {
	Lines  []string
	Offset int64
}

// Tail reads lines from the log file at path according to opts. A missing
// file is not an error; the caller is restarted at offset zero so rotation
// does not break follow loops.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	if opts.Wait < 0 {
		opts.Wait = 0
	}
	result := TailResult{Offset: opts.Offset}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		result.Offset = 0
		return result, nil
	case err != nil:
		return result, fmt.Errorf("stat %s: %w", path, err)
	case info.IsDir():
		return result, fmt.Errorf("%s is a directory, not a log file", path)
	}

	var lines []string
	var next int64
	if opts.Offset < 0 {
		lines, next, err = lastLines(path, opts.Limit)
	} else {
		start := opts.Offset
		if start > info.Size() {
			start = info.Size()
		}
		lines, next, err = scanFrom(path, start)
	}
	if err != nil {
		return result, err
	}

	result.Lines = lines
	result.Offset = next
	if opts.Follow && opts.Wait > 0 && len(lines) == 0 {
		return pollForLines(ctx, path, next, opts.Wait)
	}
	return result, nil
}

// lastLines returns up to limit trailing lines and the end-of-file offset
// observed before the scan.
func lastLines(path string, limit int) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	end, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, 0, fmt.Errorf("seek %s: %w", path, err)
	}
	if limit <= 0 {
		return nil, end, nil
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, 0, fmt.Errorf("seek %s: %w", path, err)
	}

	scanner := newLineScanner(file)
	var window []string
	for scanner.Scan() {
		window = append(window, scanner.Text())
		if len(window) > limit {
			window = window[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("scan %s: %w", path, err)
	}
	return window, end, nil
}

// scanFrom reads every complete line starting at offset and reports the
// file position after the last one.
func scanFrom(path string, offset int64) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, 0, fmt.Errorf("seek %s: %w", path, err)
	}

	scanner := newLineScanner(file)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("scan %s: %w", path, err)
	}

	next, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, 0, fmt.Errorf("seek %s: %w", path, err)
	}
	return lines, next, nil
}

// pollForLines rescans the file until new lines appear, the wait budget is
// spent, or ctx is done. The result offset always reflects the last scan
// so callers resume without gaps.
func pollForLines(ctx context.Context, path string, offset int64, wait time.Duration) (TailResult, error) {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(followPollInterval)
	defer ticker.Stop()

	result := TailResult{Offset: offset}
	for {
		lines, next, err := scanFrom(path, result.Offset)
		if err != nil {
			return result, err
		}
		result.Offset = next
		if len(lines) > 0 {
			result.Lines = lines
			return result, nil
		}
		if !time.Now().Before(deadline) {
			return result, nil
		}
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-ticker.C:
		}
	}
}

func newLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 32*1024), maxLineBytes)
	return scanner
}
