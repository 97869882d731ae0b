package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hlsget/hls-downloader/internal/config"
	"github.com/hlsget/hls-downloader/internal/crypto"
	"github.com/hlsget/hls-downloader/internal/httpx"
	ioutils "github.com/hlsget/hls-downloader/internal/io"
	"github.com/hlsget/hls-downloader/internal/logging"
	"github.com/hlsget/hls-downloader/internal/manifest"
	"github.com/hlsget/hls-downloader/internal/merge"
	"github.com/hlsget/hls-downloader/internal/model"
)

// ProgressLevel indicates the severity/type of a progress message.
type ProgressLevel int

const (
	LevelInfo ProgressLevel = iota
	LevelVerbose
	LevelWarning
	LevelError
	LevelSuccess
)

// ProgressEvent represents a download progress update.
type ProgressEvent struct {
	Message string
	Level   ProgressLevel
}

// Options carries the optional collaborators of one downloader. Every
// field may be left zero.
type Options struct {
	// Key overrides fetching the manifest-declared key URI.
	Key []byte

	// IV, as raw 16 bytes or hex text, wins over any manifest IV.
	IV string

	// ManifestTransform converts a wrapper payload into manifest text.
	ManifestTransform manifest.Transform

	// Remuxer replaces the default ffmpeg stream-copy remuxer.
	Remuxer merge.Remuxer

	// RequestHooks and ResponseHooks are registered on the network
	// client per traffic class, in slice order.
	RequestHooks  map[httpx.TrafficClass][]httpx.RequestHook
	ResponseHooks map[httpx.TrafficClass][]httpx.ResponseHook

	// OnProgress receives human-readable progress events.
	OnProgress func(ProgressEvent)

	// Logger overrides the default console+file logger. The log file
	// next to the output path is not opened when set.
	Logger *zerolog.Logger
}

// Downloader drives the whole pipeline for one asset: resolve the
// manifest, fan segment fetches out under the concurrency limit, verify
// the pass was complete, retry the entire pipeline on shortfall and hand
// off to the assembler.
//
// A Downloader is single-use per run; concurrent runs against the same
// save path are not supported and must be serialized by the caller.
type Downloader struct {
	manifestURL string
	settings    *config.Settings
	asset       *model.Asset
	client      *httpx.Client
	resolver    *manifest.Resolver
	assembler   *merge.Assembler
	log         zerolog.Logger
	logCloser   io.Closer
	onProgress  func(ProgressEvent)

	retryCount int

	totalSegments int32
	doneSegments  int32
	receivedBytes int64
}

// NewDownloader creates a downloader for one manifest URL and save path.
// The final container lands at savePath + ".mp4"; working files under
// savePath + "/hls/". Settings may be nil for defaults.
func NewDownloader(manifestURL, savePath string, settings *config.Settings, opts *Options) (*Downloader, error) {
	if settings == nil {
		settings = config.DefaultSettings()
	}
	if opts == nil {
		opts = &Options{}
	}

	asset := model.NewAsset(savePath)
	if err := ioutils.EnsureDir(filepath.Dir(asset.OutputPath)); err != nil {
		return nil, err
	}

	var log zerolog.Logger
	var logCloser io.Closer
	if opts.Logger != nil {
		log = *opts.Logger
	} else {
		var err error
		log, logCloser, err = logging.New(asset.LogPath, settings.LogLevel)
		if err != nil {
			return nil, err
		}
	}
	log = log.With().Str("asset", asset.Name).Logger()

	client := httpx.NewClient(settings.Headers)
	for class, hooks := range opts.RequestHooks {
		for _, hook := range hooks {
			client.OnRequest(class, hook)
		}
	}
	for class, hooks := range opts.ResponseHooks {
		for _, hook := range hooks {
			client.OnResponse(class, hook)
		}
	}

	resolver := &manifest.Resolver{
		Client: client,
		Keys: &crypto.KeyResolver{
			Client:      client,
			OverrideKey: opts.Key,
			OverrideIV:  opts.IV,
		},
		Asset:     asset,
		Log:       log,
		Transform: opts.ManifestTransform,
		MaxDepth:  settings.MaxVariantDepth,
	}

	remuxer := opts.Remuxer
	if remuxer == nil {
		remuxer = &merge.FFmpegRemuxer{Bin: settings.FFmpegPath, Threads: settings.FFmpegThreads}
	}
	assembler := &merge.Assembler{
		Client:  client,
		Asset:   asset,
		Remuxer: remuxer,
		Log:     log,
	}

	return &Downloader{
		manifestURL: manifestURL,
		settings:    settings,
		asset:       asset,
		client:      client,
		resolver:    resolver,
		assembler:   assembler,
		log:         log,
		logCloser:   logCloser,
		onProgress:  opts.OnProgress,
	}, nil
}

// Asset exposes the computed path layout, mainly for entry points that
// want to print where the output will land.
func (d *Downloader) Asset() *model.Asset {
	return d.asset
}

// Progress returns the segment and byte counters of the current pass.
func (d *Downloader) Progress() (done, total int32, received int64) {
	return atomic.LoadInt32(&d.doneSegments),
		atomic.LoadInt32(&d.totalSegments),
		atomic.LoadInt64(&d.receivedBytes)
}

// Run executes Start and then releases the network client and log file.
func (d *Downloader) Run(ctx context.Context) (model.Status, error) {
	status, err := d.Start(ctx)
	d.Close()
	return status, err
}

// Close releases the network client's idle connections and the log file.
func (d *Downloader) Close() {
	d.client.Close()
	if d.logCloser != nil {
		d.logCloser.Close()
	}
}

// Start runs the pipeline until a terminal status. When the final output
// file already exists it returns immediately without any network access.
// On a shortfall the whole pipeline (manifest refetch included) is
// retried up to the configured bound; manifests can legitimately change
// segment URIs between fetches, so retrying only missing segments would
// chase stale URIs.
func (d *Downloader) Start(ctx context.Context) (model.Status, error) {
	if ioutils.IsNonEmptyFile(d.asset.OutputPath) {
		d.log.Info().Str("output", d.asset.OutputPath).Msg("output already exists")
		d.progress(ProgressEvent{Message: "Output already exists: " + d.asset.OutputPath, Level: LevelSuccess})
		if d.settings.DeleteWorkDir {
			if err := os.RemoveAll(d.asset.WorkDir); err != nil {
				d.log.Warn().Err(err).Msg("could not remove working directory")
			}
		}
		return model.StatusAlreadyComplete, nil
	}

	if err := ioutils.EnsureDir(d.asset.WorkDir); err != nil {
		return model.StatusUnknown, err
	}

	d.log.Info().
		Str("manifest", d.manifestURL).
		Bool("merge", d.settings.Merge).
		Bool("decrypt_segments", d.settings.DecryptSegments).
		Str("workdir", d.asset.WorkDir).
		Msg("starting download")

	for {
		status, terminal, err := d.pass(ctx)
		if terminal {
			return status, err
		}
		if ctx.Err() != nil {
			return model.StatusUnknown, ctx.Err()
		}

		if d.retryCount >= d.settings.RetryMaxCount {
			d.log.Error().Int("retries", d.retryCount).Msg("retry budget exhausted")
			d.progress(ProgressEvent{Message: "Retry budget exhausted", Level: LevelError})
			return model.StatusRetryExhausted, fmt.Errorf("still incomplete after %d retries", d.retryCount)
		}
		d.retryCount++
		d.log.Warn().
			Int("retry", d.retryCount).
			Int("retry_max", d.settings.RetryMaxCount).
			Msg("restarting pipeline")
		d.progress(ProgressEvent{
			Message: fmt.Sprintf("Retrying %d/%d", d.retryCount, d.settings.RetryMaxCount),
			Level:   LevelWarning,
		})
	}
}

// pass runs one resolve→fetch→verify(→merge) cycle. terminal is false
// only when the caller should retry the whole pipeline.
func (d *Downloader) pass(ctx context.Context) (model.Status, bool, error) {
	d.progress(ProgressEvent{Message: "Resolving manifest", Level: LevelVerbose})
	res, err := d.resolver.Resolve(ctx, d.manifestURL)
	if err != nil {
		if isFatalResolveError(err) {
			d.log.Error().Err(err).Msg("manifest resolution failed fatally")
			return model.StatusUnknown, true, err
		}
		d.log.Error().Err(err).Msg("manifest resolution failed, pass aborted")
		return model.StatusUnknown, false, nil
	}

	total := len(res.Segments)
	if total == 0 {
		d.log.Error().Msg("manifest resolved to zero segments")
		return model.StatusEmptySource, true, errors.New("manifest resolved to zero segments")
	}

	atomic.StoreInt32(&d.totalSegments, int32(total))
	atomic.StoreInt32(&d.doneSegments, 0)

	fetcher := &Fetcher{
		Client:  d.client,
		Asset:   d.asset,
		Key:     res.Key,
		Decrypt: d.settings.DecryptSegments,
		Log:     d.log,
	}

	d.progress(ProgressEvent{Message: fmt.Sprintf("Fetching %d segments", total), Level: LevelInfo})

	// Each goroutine owns exactly one index of these slices, so no
	// locking is needed. Wait() is the pass barrier: verification only
	// runs once every launched fetch has settled.
	results := make([]model.SegmentFile, total)
	filled := make([]bool, total)

	g, gctx := errgroup.WithContext(ctx)
	if d.settings.MaxConcurrentSegments > 0 {
		g.SetLimit(d.settings.MaxConcurrentSegments)
	}

	for _, seg := range res.Segments {
		seg := seg
		g.Go(func() error {
			file, ok, err := fetcher.Fetch(gctx, seg)
			if err != nil {
				// A failed segment leaves its slot empty; the verify
				// step turns that into a pipeline retry instead of
				// aborting the other fetches.
				d.log.Warn().Err(err).Int("index", seg.Index).Msg("segment fetch failed")
				return nil
			}
			if ok {
				results[seg.Index] = file
				filled[seg.Index] = true
				atomic.AddInt32(&d.doneSegments, 1)
				atomic.AddInt64(&d.receivedBytes, file.Size)
			}
			return nil
		})
	}
	_ = g.Wait() // per-segment errors never propagate; the barrier is what matters

	done := 0
	for _, ok := range filled {
		if ok {
			done++
		}
	}

	d.log.Info().
		Int("expected", total).
		Int("downloaded", done).
		Str("received", humanize.Bytes(uint64(atomic.LoadInt64(&d.receivedBytes)))).
		Msg("pass complete")

	if done == 0 {
		d.progress(ProgressEvent{Message: "No segments could be downloaded", Level: LevelError})
		return model.StatusEmptySource, true, fmt.Errorf("0 of %d segments downloaded", total)
	}
	if done != total {
		d.progress(ProgressEvent{
			Message: fmt.Sprintf("Downloaded %d/%d segments, pass incomplete", done, total),
			Level:   LevelWarning,
		})
		return model.StatusUnknown, false, nil
	}

	d.progress(ProgressEvent{Message: fmt.Sprintf("Downloaded %d/%d segments", done, total), Level: LevelInfo})

	if !d.settings.Merge {
		d.progress(ProgressEvent{Message: "Download complete (merge disabled)", Level: LevelSuccess})
		return model.StatusSuccess, true, nil
	}

	d.progress(ProgressEvent{Message: "Merging segments", Level: LevelInfo})
	if err := d.assembler.Assemble(ctx, res.Key, res.InitSegmentURL, res.HeadFile, results); err != nil {
		d.log.Error().Err(err).Msg("merge failed")
		d.progress(ProgressEvent{Message: "Merge failed: " + err.Error(), Level: LevelError})
		return model.StatusMergeFailed, true, err
	}

	if d.settings.DeleteWorkDir {
		if err := os.RemoveAll(d.asset.WorkDir); err != nil {
			d.log.Warn().Err(err).Msg("could not remove working directory")
		}
	}

	d.log.Info().Str("output", d.asset.OutputPath).Msg("download complete")
	d.progress(ProgressEvent{Message: "Complete: " + d.asset.OutputPath, Level: LevelSuccess})
	return model.StatusSuccess, true, nil
}

// isFatalResolveError separates unsupported-input and validation
// failures, which no amount of retrying can fix, from transient network
// and parse errors.
func isFatalResolveError(err error) bool {
	return errors.Is(err, manifest.ErrMultipleInitSegments) ||
		errors.Is(err, manifest.ErrVariantDepthExceeded) ||
		errors.Is(err, crypto.ErrKeyValidation)
}

func (d *Downloader) progress(event ProgressEvent) {
	if d.onProgress != nil {
		d.onProgress(event)
	}
}
