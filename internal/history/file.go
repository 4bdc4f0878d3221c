package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"
)

// filePlay is one entry of a listening-history export.
type filePlay struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Artist          string     `json:"artist"`
	Album           string     `json:"album"`
	ArtworkURL      string     `json:"artwork_url"`
	LastPlayed      *time.Time `json:"last_played"`
	DurationSeconds float64    `json:"duration_seconds"`
}

// File reads plays from a JSON export: an array of objects, most recent
// first, whose last_played field (RFC 3339) is optional.
type File struct {
	Path string
}

// NewFile returns a provider reading path.
func NewFile(path string) *File {
	return &File{Path: path}
}

func (f *File) Name() string { return "file" }

// IsAuthorized reports whether the export file is readable.
func (f *File) IsAuthorized() bool {
	if f.Path == "" {
		return false
	}
	fh, err := os.Open(f.Path)
	if err != nil {
		return false
	}
	fh.Close()
	return true
}

// RequestAuthorization has nothing to ask for; it only checks the file.
func (f *File) RequestAuthorization(context.Context) (bool, error) {
	return f.IsAuthorized(), nil
}

func (f *File) FetchRecent(ctx context.Context) ([]Play, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
		return nil, fmt.Errorf("%w: %w", ErrNotAuthorized, err)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Path, err)
	}

	var entries []filePlay
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.Path, err)
	}

	plays := make([]Play, 0, len(entries))
	for _, e := range entries {
		if e.Title == "" || e.Artist == "" {
			continue
		}
		plays = append(plays, Play{
			Title:      e.Title,
			Artist:     e.Artist,
			Album:      e.Album,
			ArtworkURL: e.ArtworkURL,
			LastPlayed: e.LastPlayed,
			Duration:   time.Duration(e.DurationSeconds * float64(time.Second)),
			SourceID:   e.ID,
		})
	}
	return plays, nil
}

var _ Provider = (*File)(nil)
