// Package config provides persistent settings for hls-downloader.
//
// Settings are stored as JSON and loaded with Load, which falls back to
// DefaultSettings when the file does not exist:
//
//	settings, err := config.Load("/home/user/.config/hls-downloader/settings.json")
//
// The zero retry/concurrency knobs map to the pipeline as follows:
// MaxConcurrentSegments of 0 means unbounded fan-out, RetryMaxCount bounds
// how many times the whole pipeline restarts after a short pass.
package config
