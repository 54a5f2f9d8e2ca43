package library

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"

	"github.com/jscyril/golang_midi_player/api"
	"github.com/jscyril/golang_midi_player/internal/audio"
	playerrors "github.com/jscyril/golang_midi_player/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Scanner walks directories and reads song metadata on a bounded pool
type Scanner struct {
	workers    int
	metaReader *MetadataReader
}

// NewScanner creates a new file scanner
func NewScanner(workers int) *Scanner {
	if workers <= 0 {
		workers = 4
	}
	return &Scanner{
		workers:    workers,
		metaReader: NewMetadataReader(),
	}
}

// SupportedFormats returns the extensions the scanner picks up
func (s *Scanner) SupportedFormats() []string {
	return audio.SupportedFormats()
}

// Scan walks paths and streams songs and per-file errors. Both channels
// close once every file has been read or ctx is cancelled; callers must
// drain both.
func (s *Scanner) Scan(ctx context.Context, paths []string) (<-chan *api.Song, <-chan error) {
	songs := make(chan *api.Song, 100)
	errs := make(chan error, 10)

	g, gctx := errgroup.WithContext(ctx)
	// One slot belongs to the walker.
	g.SetLimit(s.workers + 1)

	report := func(path string, err error) {
		select {
		case errs <- &playerrors.ScanError{Path: path, Err: err}:
		case <-gctx.Done():
		}
	}

	g.Go(func() error {
		for _, root := range paths {
			err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
				if err != nil {
					report(p, err)
					return nil
				}
				if gctx.Err() != nil {
					return gctx.Err()
				}
				if d.IsDir() || !audio.IsSupported(p) {
					return nil
				}

				g.Go(func() error {
					song, err := s.metaReader.Read(p)
					if err != nil {
						report(p, err)
						return nil
					}
					select {
					case songs <- song:
						return nil
					case <-gctx.Done():
						return gctx.Err()
					}
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	go func() {
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			select {
			case errs <- err:
			default:
			}
		}
		close(songs)
		close(errs)
	}()

	return songs, errs
}

// ScanFile scans a single file and returns a Song
func (s *Scanner) ScanFile(filePath string) (*api.Song, error) {
	if !audio.IsSupported(filePath) {
		return nil, playerrors.ErrInvalidFormat
	}
	return s.metaReader.Read(filePath)
}
