package encoding

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"squeeze/internal/abav1"
	"squeeze/internal/admission"
	"squeeze/internal/config"
	"squeeze/internal/logging"
	"squeeze/internal/media"
	"squeeze/internal/queue"
	"squeeze/internal/services"
	"squeeze/internal/testsupport"
)

type fakeEncodeClient struct {
	outputBytes int
	progress    []abav1.EncodeProgress
	err         error

	gotParams abav1.EncodeParams
}

func (f *fakeEncodeClient) CrfSearch(ctx context.Context, params abav1.SearchParams, onSample func(abav1.Sample)) (*abav1.SearchResult, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeEncodeClient) Encode(ctx context.Context, params abav1.EncodeParams, onProgress func(abav1.EncodeProgress)) error {
	f.gotParams = params
	if f.err != nil {
		return f.err
	}
	for _, update := range f.progress {
		if onProgress != nil {
			onProgress(update)
		}
	}
	size := f.outputBytes
	if size <= 0 {
		size = 1 << 20
	}
	return os.WriteFile(params.Output, make([]byte, size), 0o644)
}

func stubEncodeProbe(t *testing.T, info *media.Info, err error) {
	t.Helper()
	original := encodeProbe
	encodeProbe = func(context.Context, string, string) (*media.Info, error) {
		return info, err
	}
	t.Cleanup(func() {
		encodeProbe = original
	})
}

func newTestEncoder(t *testing.T, client abav1.Client) (*Encoder, *config.Config, *queue.Store, *queue.Item) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Encoding.ValidateOutput = false
	store := testsupport.MustOpenStore(t, cfg)
	source := filepath.Join(cfg.Library.Roots[0], "movie.mp4")
	testsupport.WriteFile(t, source, 4096)
	item := testsupport.NewItem(t, store, source)
	item.SizeBytes = 8 << 20
	item.DurationSeconds = 5400
	if err := store.Update(context.Background(), item); err != nil {
		t.Fatalf("Update: %v", err)
	}
	controller := admission.NewController(cfg, logging.NewNop())
	encoder := NewEncoderWithDependencies(cfg, store, logging.NewNop(), client, controller)
	return encoder, cfg, store, item
}

func chooseCRF(t *testing.T, store *queue.Store, itemID int64, crf float64) {
	t.Helper()
	result := &queue.QualityResult{
		ItemID:                  itemID,
		CRF:                     crf,
		PredictedScore:          95.5,
		PredictedSizeBytes:      2 << 20,
		PredictedSavingsPercent: 75,
	}
	if err := store.UpsertResult(context.Background(), result); err != nil {
		t.Fatalf("UpsertResult: %v", err)
	}
	if err := store.ChooseResult(context.Background(), itemID, crf); err != nil {
		t.Fatalf("ChooseResult: %v", err)
	}
}

func TestEncoderEncodesAndReplacesSource(t *testing.T) {
	client := &fakeEncodeClient{
		progress: []abav1.EncodeProgress{
			{Percent: 45, FPS: 94, ETASeconds: 180},
			{Percent: 100, FPS: 90},
		},
	}
	encoder, cfg, store, item := newTestEncoder(t, client)
	chooseCRF(t, store, item.ID, 24)

	if err := encoder.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	finalPath := filepath.Join(filepath.Dir(item.SourcePath), "movie.mkv")
	if _, err := os.Stat(finalPath); err != nil {
		t.Fatalf("final artifact missing: %v", err)
	}
	if _, err := os.Stat(item.SourcePath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("replaced source still present (err=%v)", err)
	}
	if _, err := os.Stat(item.StagingRoot(cfg.Paths.StagingDir)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("staging root not cleaned (err=%v)", err)
	}

	if client.gotParams.CRF != 24 {
		t.Fatalf("encode CRF = %g, want 24", client.gotParams.CRF)
	}
	if client.gotParams.Threads <= 0 {
		t.Fatalf("Threads = %d, want a positive admission bound", client.gotParams.Threads)
	}

	stored, err := store.ItemByID(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("ItemByID: %v", err)
	}
	if stored.FinalPath != finalPath {
		t.Fatalf("FinalPath = %q, want %q", stored.FinalPath, finalPath)
	}
	if stored.ProgressPercent != 100 {
		t.Fatalf("ProgressPercent = %g, want 100", stored.ProgressPercent)
	}
}

func TestEncoderDeliversToOutputDir(t *testing.T) {
	client := &fakeEncodeClient{}
	encoder, cfg, store, item := newTestEncoder(t, client)
	cfg.Library.ReplaceInPlace = false
	chooseCRF(t, store, item.ID, 28)

	if err := encoder.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	finalPath := filepath.Join(cfg.Paths.OutputDir, "movie.mkv")
	if _, err := os.Stat(finalPath); err != nil {
		t.Fatalf("final artifact missing: %v", err)
	}
	if _, err := os.Stat(item.SourcePath); err != nil {
		t.Fatalf("source should be untouched: %v", err)
	}
}

func TestEncoderRequiresChosenResult(t *testing.T) {
	encoder, _, _, item := newTestEncoder(t, &fakeEncodeClient{})

	err := encoder.Execute(context.Background(), item)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "quality search") {
		t.Fatalf("error %v missing rerun diagnostic", err)
	}
}

func TestEncoderRejectsOutputWithoutSavings(t *testing.T) {
	client := &fakeEncodeClient{outputBytes: 4096}
	encoder, _, store, item := newTestEncoder(t, client)
	item.SizeBytes = 1000
	if err := store.Update(context.Background(), item); err != nil {
		t.Fatalf("Update: %v", err)
	}
	chooseCRF(t, store, item.ID, 24)

	err := encoder.Execute(context.Background(), item)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "not smaller") {
		t.Fatalf("error %v missing savings diagnostic", err)
	}
}

func TestEncoderValidatesSmallArtifact(t *testing.T) {
	client := &fakeEncodeClient{outputBytes: 1024}
	encoder, cfg, store, item := newTestEncoder(t, client)
	cfg.Encoding.ValidateOutput = true
	chooseCRF(t, store, item.ID, 24)

	err := encoder.Execute(context.Background(), item)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "small") {
		t.Fatalf("error %v missing size diagnostic", err)
	}
}

func TestEncoderValidatesStreamAndDuration(t *testing.T) {
	client := &fakeEncodeClient{outputBytes: 6 << 20}
	encoder, cfg, store, item := newTestEncoder(t, client)
	cfg.Encoding.ValidateOutput = true
	item.SizeBytes = 32 << 20
	if err := store.Update(context.Background(), item); err != nil {
		t.Fatalf("Update: %v", err)
	}
	chooseCRF(t, store, item.ID, 24)

	stubEncodeProbe(t, &media.Info{AudioStreams: 1, DurationSeconds: 5400}, nil)
	err := encoder.Execute(context.Background(), item)
	if !errors.Is(err, services.ErrValidation) || !strings.Contains(err.Error(), "video stream") {
		t.Fatalf("expected missing-stream validation error, got %v", err)
	}

	stubEncodeProbe(t, &media.Info{VideoCodec: "av1", VideoStreams: 1, DurationSeconds: 100}, nil)
	err = encoder.Execute(context.Background(), item)
	if !errors.Is(err, services.ErrValidation) || !strings.Contains(err.Error(), "deviates") {
		t.Fatalf("expected duration validation error, got %v", err)
	}

	stubEncodeProbe(t, &media.Info{VideoCodec: "av1", VideoStreams: 1, DurationSeconds: 5398}, nil)
	if err := encoder.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute returned error for valid artifact: %v", err)
	}
}

func TestEncoderPropagatesEncodeFailure(t *testing.T) {
	client := &fakeEncodeClient{
		err: services.Wrap(services.ErrExternalTool, "abav1", "encode", "encode failed", nil),
	}
	encoder, _, store, item := newTestEncoder(t, client)
	chooseCRF(t, store, item.ID, 24)

	err := encoder.Execute(context.Background(), item)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}
