package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hlsget/hls-downloader/internal/config"
	"github.com/hlsget/hls-downloader/internal/download"
	"github.com/hlsget/hls-downloader/internal/model"
)

func main() {
	// Command line flags
	var (
		urlFlag     = flag.String("url", "", "HLS manifest URL (.m3u8) to download")
		outputFlag  = flag.String("output", "", "Save path without extension (default: derived from the URL)")
		configFlag  = flag.String("config", "", "Path to config file")
		workersFlag = flag.Int("workers", 0, "Concurrent segment downloads (overrides config)")
		retriesFlag = flag.Int("retries", -1, "Whole-pipeline retry budget (overrides config)")
		keyFlag     = flag.String("key", "", "AES key as hex, overrides the manifest key URI")
		ivFlag      = flag.String("iv", "", "AES IV as hex or raw 16 bytes, overrides the manifest IV")
		noMergeFlag = flag.Bool("no-merge", false, "Skip the ffmpeg merge, keep segment files only")
		decryptFlag = flag.Bool("decrypt", false, "Decrypt each segment at fetch time instead of at merge")
		delHlsFlag  = flag.Bool("del-hls", false, "Delete the working directory after a successful merge")
		ffmpegFlag  = flag.String("ffmpeg", "", "Path to the ffmpeg binary (overrides config)")
		verboseFlag = flag.Bool("verbose", false, "Show verbose output")
	)

	flag.Parse()

	// CLI mode - require URL
	if *urlFlag == "" && flag.NArg() == 0 {
		fmt.Println("HLS Downloader - Download HLS streams to MP4")
		fmt.Println()
		fmt.Println("Usage:")
		fmt.Println("  hls-dl -url <manifest URL> [options]")
		fmt.Println("  hls-dl <manifest URL> [options]")
		fmt.Println()
		fmt.Println("For interactive mode, use: hls-tui")
		fmt.Println()
		flag.PrintDefaults()
		os.Exit(1)
	}

	// Load config
	settings := config.DefaultSettings()
	if *configFlag != "" {
		var err error
		settings, err = config.Load(*configFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	}

	// Apply flags
	if *workersFlag > 0 {
		settings.MaxConcurrentSegments = *workersFlag
	}
	if *retriesFlag >= 0 {
		settings.RetryMaxCount = *retriesFlag
	}
	if *noMergeFlag {
		settings.Merge = false
	}
	if *decryptFlag {
		settings.DecryptSegments = true
	}
	if *delHlsFlag {
		settings.DeleteWorkDir = true
	}
	if *ffmpegFlag != "" {
		settings.FFmpegPath = *ffmpegFlag
	}
	if *verboseFlag {
		settings.LogLevel = "debug"
	}

	manifestURL := *urlFlag
	if manifestURL == "" && flag.NArg() > 0 {
		manifestURL = flag.Arg(0)
	}

	savePath := *outputFlag
	if savePath == "" {
		savePath = model.SavePathFor(manifestURL)
	}

	opts := &download.Options{
		IV: *ivFlag,
		OnProgress: func(event download.ProgressEvent) {
			if event.Level == download.LevelVerbose && !*verboseFlag {
				return
			}

			prefix := ""
			switch event.Level {
			case download.LevelError:
				prefix = "❌ "
			case download.LevelWarning:
				prefix = "⚠️  "
			case download.LevelSuccess:
				prefix = "✅ "
			case download.LevelInfo:
				prefix = "ℹ️  "
			default:
				prefix = "   "
			}

			fmt.Println(prefix + event.Message)
		},
	}
	if *keyFlag != "" {
		key, err := hex.DecodeString(*keyFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: -key must be hex: %v\n", err)
			os.Exit(1)
		}
		opts.Key = key
	}

	// Handle interrupts
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nInterrupted, cancelling...")
		cancel()
	}()

	fmt.Println("🎬 HLS Downloader")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	dl, err := download.NewDownloader(manifestURL, savePath, settings, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	status, err := dl.Run(ctx)
	if ctx.Err() != nil {
		fmt.Println("\nDownload cancelled.")
		os.Exit(130)
	}

	done, total, received := dl.Progress()
	fmt.Println()
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("Status: %s\n", status)
	if total > 0 {
		fmt.Printf("Segments: %d/%d (%.2f MB)\n", done, total, float64(received)/1024/1024)
	}
	if err != nil && !status.Succeeded() {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}

	os.Exit(exitCode(status))
}

// exitCode maps a terminal status onto a distinct process exit code so
// scripts can branch on the failure kind.
func exitCode(status model.Status) int {
	switch status {
	case model.StatusSuccess, model.StatusAlreadyComplete:
		return 0
	case model.StatusEmptySource:
		return 2
	case model.StatusRetryExhausted:
		return 3
	case model.StatusMergeFailed:
		return 4
	default:
		return 1
	}
}
