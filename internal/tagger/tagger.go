package tagger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2"
	"github.com/datallboy/gotube/internal/domain"
)

// ID3 writes title and artist frames into finished MP3 files.
type ID3 struct{}

func New() *ID3 {
	return &ID3{}
}

// Tag updates TIT2/TPE1 in place. Files that are not .mp3 are left alone.
func (t *ID3) Tag(path string, meta domain.TrackMeta) error {
	if !strings.EqualFold(filepath.Ext(path), ".mp3") {
		return nil
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("tag %s: %w", path, err)
		}
		return fmt.Errorf("failed to read tags from %s: %w", path, err)
	}
	defer tag.Close()

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)

	if meta.Title != "" {
		tag.SetTitle(meta.Title)
	}
	if meta.Artist != "" {
		tag.SetArtist(meta.Artist)
	}

	if err := tag.Save(); err != nil {
		return fmt.Errorf("failed to save tags to %s: %w", path, err)
	}
	return nil
}
