package abav1

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"

	"squeeze/internal/services"
)

func setHelperCommand(t *testing.T, mode string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", fmt.Sprintf("ABAV1_HELPER_MODE=%s", mode))
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
}

func TestCrfSearchParsesSamplesAndWinner(t *testing.T) {
	setHelperCommand(t, "search-success")

	var seen []Sample
	result, err := NewCLI().CrfSearch(context.Background(), SearchParams{
		Input:      "/media/movie.mkv",
		TargetVMAF: 95,
		Preset:     6,
	}, func(s Sample) {
		seen = append(seen, s)
	})
	if err != nil {
		t.Fatalf("CrfSearch returned error: %v", err)
	}
	if len(result.Samples) != 3 {
		t.Fatalf("Samples = %d, want 3", len(result.Samples))
	}
	if len(seen) != len(result.Samples) {
		t.Fatalf("callback saw %d samples, result has %d", len(seen), len(result.Samples))
	}
	if result.Best.CRF != 24 {
		t.Fatalf("Best.CRF = %v, want 24", result.Best.CRF)
	}
	if result.Best.VMAF != 95.52 {
		t.Fatalf("Best.VMAF = %v, want 95.52", result.Best.VMAF)
	}
	if result.Best.PredictedSizeBytes != 256<<20 {
		t.Fatalf("Best.PredictedSizeBytes = %d, want %d", result.Best.PredictedSizeBytes, int64(256<<20))
	}
	if result.Best.SavingsPercent() != 80 {
		t.Fatalf("Best savings = %v, want 80", result.Best.SavingsPercent())
	}
}

func TestCrfSearchFailureCarriesOutput(t *testing.T) {
	setHelperCommand(t, "search-nofit")

	_, err := NewCLI().CrfSearch(context.Background(), SearchParams{Input: "/media/movie.mkv"}, nil)
	if err == nil {
		t.Fatal("expected error when no crf fits")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("error %v not marked as external tool failure", err)
	}
	_, output, ok := services.CommandDetail(err)
	if !ok {
		t.Fatalf("no command detail on %v", err)
	}
	if !strings.Contains(output, "Failed to find a suitable crf") {
		t.Fatalf("output %q missing tool diagnostic", output)
	}
}

func TestCrfSearchRequiresInput(t *testing.T) {
	_, err := NewCLI().CrfSearch(context.Background(), SearchParams{}, nil)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestEncodeReportsProgress(t *testing.T) {
	setHelperCommand(t, "encode-success")

	var updates []EncodeProgress
	err := NewCLI().Encode(context.Background(), EncodeParams{
		Input:  "/media/movie.mkv",
		Output: "/staging/movie.av1.mkv",
		CRF:    24,
		Preset: 4,
	}, func(p EncodeProgress) {
		updates = append(updates, p)
	})
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	if len(updates) != 3 {
		t.Fatalf("updates = %d, want 3", len(updates))
	}
	if updates[0].Percent != 12 || updates[0].FPS != 80 {
		t.Fatalf("first update = %+v, want 12%% at 80 fps", updates[0])
	}
	if updates[1].ETASeconds != 180 {
		t.Fatalf("mid update ETA = %d, want 180", updates[1].ETASeconds)
	}
	if updates[len(updates)-1].Percent != 100 {
		t.Fatalf("final update = %+v, want 100%%", updates[len(updates)-1])
	}
}

func TestEncodeValidatesParams(t *testing.T) {
	cli := NewCLI()
	if err := cli.Encode(context.Background(), EncodeParams{Output: "/out.mkv", CRF: 24}, nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("missing input: got %v", err)
	}
	if err := cli.Encode(context.Background(), EncodeParams{Input: "/in.mkv", CRF: 24}, nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("missing output: got %v", err)
	}
	if err := cli.Encode(context.Background(), EncodeParams{Input: "/in.mkv", Output: "/out.mkv"}, nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("missing crf: got %v", err)
	}
}

func TestEncodeFailureMarksExternalTool(t *testing.T) {
	setHelperCommand(t, "encode-failure")

	err := NewCLI().Encode(context.Background(), EncodeParams{
		Input:  "/media/movie.mkv",
		Output: "/staging/movie.av1.mkv",
		CRF:    24,
	}, nil)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool failure, got %v", err)
	}
}

func TestParseSampleLineVariants(t *testing.T) {
	sample, final, ok := parseSampleLine("- crf 28 VMAF 93.52 predicted video stream size 753.72 MiB (21%) taking 31 minutes")
	if !ok || final {
		t.Fatalf("dashed line: ok=%v final=%v", ok, final)
	}
	if sample.CRF != 28 || sample.PredictedSizePercent != 21 {
		t.Fatalf("dashed sample = %+v", sample)
	}

	sample, final, ok = parseSampleLine("crf 25 VMAF 95.88 predicted full size 1.05 GiB (30%) taking 31 minutes")
	if !ok || !final {
		t.Fatalf("winner line: ok=%v final=%v", ok, final)
	}
	if sample.VMAF != 95.88 {
		t.Fatalf("winner sample = %+v", sample)
	}

	if _, _, ok := parseSampleLine("ffmpeg version 7.1"); ok {
		t.Fatal("unrelated line parsed as sample")
	}
}

func TestParseProgressLine(t *testing.T) {
	progress, ok := parseProgressLine("00:01:02 [==>------] 45%, 94 fps, eta 3 minutes")
	if !ok {
		t.Fatal("progress line did not parse")
	}
	if progress.Percent != 45 || progress.FPS != 94 || progress.ETASeconds != 180 {
		t.Fatalf("progress = %+v", progress)
	}

	if _, ok := parseProgressLine("- crf 28 VMAF 93.52 predicted video stream size 753.72 MiB (21%) taking 31 minutes"); ok {
		t.Fatal("sample line parsed as progress")
	}
	if _, ok := parseProgressLine("Encoded 256.00 MiB (20%)"); ok {
		t.Fatal("completion summary parsed as progress")
	}
	if _, ok := parseProgressLine("no numbers here"); ok {
		t.Fatal("noise parsed as progress")
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	switch os.Getenv("ABAV1_HELPER_MODE") {
	case "search-success":
		fmt.Println("- crf 32 VMAF 93.76 predicted video stream size 128.00 MiB (10%) taking 2 minutes")
		fmt.Println("- crf 22 VMAF 96.80 predicted video stream size 512.00 MiB (40%) taking 2 minutes")
		fmt.Println("crf 24 VMAF 95.52 predicted video stream size 256.00 MiB (20%) taking 2 minutes")
		os.Exit(0)
	case "search-nofit":
		fmt.Println("- crf 10 VMAF 93.10 predicted video stream size 1.90 GiB (95%) taking 4 minutes")
		fmt.Fprintln(os.Stderr, "Error: Failed to find a suitable crf")
		os.Exit(1)
	case "encode-success":
		fmt.Print("00:00:10 [>--------] 12%, 80 fps, eta 5 minutes\r")
		fmt.Print("00:01:02 [==>------] 45%, 94 fps, eta 3 minutes\r")
		fmt.Println("00:02:00 [=========] 100%, 90 fps, eta 0 seconds")
		fmt.Println("Encoded 256.00 MiB (20%)")
		os.Exit(0)
	case "encode-failure":
		fmt.Fprintln(os.Stderr, "Error: ffmpeg exited with code 1")
		os.Exit(1)
	default:
		os.Exit(0)
	}
}
