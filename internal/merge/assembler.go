package merge

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/hlsget/hls-downloader/internal/crypto"
	"github.com/hlsget/hls-downloader/internal/httpx"
	ioutils "github.com/hlsget/hls-downloader/internal/io"
	"github.com/hlsget/hls-downloader/internal/model"
)

// ErrEmptyOutput means the remux call returned without error but the
// output file is missing or zero bytes. Reported as a merge failure; the
// scratch file is kept for diagnosis.
var ErrEmptyOutput = errors.New("remux produced no output")

// Assembler concatenates the downloaded segment files, initialization
// segment first and then ascending index order, into the scratch stream
// and remuxes it into the final container.
//
// When a key is present, files whose Decrypted flag is false are
// decrypted while concatenating, so decryption happens exactly once
// across the fetch and merge stages.
type Assembler struct {
	Client  *httpx.Client
	Asset   *model.Asset
	Remuxer Remuxer
	Log     zerolog.Logger
}

// Assemble builds the final container. Success requires the output to
// exist as a regular file with non-zero size; the scratch concatenation
// is deleted only then.
func (a *Assembler) Assemble(ctx context.Context, key *model.KeyMaterial, initURL, headFile string, files []model.SegmentFile) error {
	if err := a.concatenate(ctx, key, initURL, headFile, files); err != nil {
		return err
	}

	a.Log.Info().Str("scratch", a.Asset.ScratchPath).Msg("segments concatenated, remuxing")
	if err := a.Remuxer.Remux(ctx, a.Asset.ScratchPath, a.Asset.OutputPath); err != nil {
		return fmt.Errorf("remux: %w", err)
	}

	if !ioutils.IsNonEmptyFile(a.Asset.OutputPath) {
		return fmt.Errorf("%w at %s", ErrEmptyOutput, a.Asset.OutputPath)
	}

	if err := ioutils.RemoveIfExists(a.Asset.ScratchPath); err != nil {
		a.Log.Warn().Err(err).Msg("could not remove scratch file")
	}

	a.Log.Info().Str("output", a.Asset.OutputPath).Msg("merge complete")
	return nil
}

func (a *Assembler) concatenate(ctx context.Context, key *model.KeyMaterial, initURL, headFile string, files []model.SegmentFile) error {
	// A scratch left over from an aborted merge would be appended to.
	if err := ioutils.RemoveIfExists(a.Asset.ScratchPath); err != nil {
		return err
	}

	scratch, err := os.OpenFile(a.Asset.ScratchPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer scratch.Close()

	if initURL != "" {
		head, err := a.fetchHead(ctx, initURL, headFile)
		if err != nil {
			return err
		}
		if _, err := scratch.Write(head); err != nil {
			return err
		}
	}

	for _, file := range files {
		data, err := os.ReadFile(file.Path)
		if err != nil {
			return fmt.Errorf("read segment %s: %w", file.Path, err)
		}
		if key != nil && !file.Decrypted {
			data, err = crypto.CBCDecrypt(data, key.Key, key.IV)
			if err != nil {
				return fmt.Errorf("decrypt segment %s: %w", file.Path, err)
			}
		}
		if _, err := scratch.Write(data); err != nil {
			return err
		}
	}

	return scratch.Close()
}

// fetchHead downloads the initialization segment and persists a copy in
// the working directory next to the other resumable files.
func (a *Assembler) fetchHead(ctx context.Context, initURL, headFile string) ([]byte, error) {
	resp, err := a.Client.Get(ctx, httpx.TrafficSegment, initURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch init segment: %w", err)
	}

	if headFile == "" {
		headFile = model.HeadFileName(initURL)
	}
	if err := ioutils.WriteFile(a.Asset.HeadPath(headFile), resp.Body); err != nil {
		return nil, err
	}

	return resp.Body, nil
}
