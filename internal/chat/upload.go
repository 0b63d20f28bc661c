package chat

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/zulandar/hoxy/internal/api"
)

const (
	// MaxImages is the most images accepted in one upload.
	MaxImages = 10
	// MaxImageBytes is the size limit for each image.
	MaxImageBytes = 10 << 20
)

var (
	ErrNoImages      = errors.New("chat: no images selected")
	ErrTooManyImages = fmt.Errorf("chat: at most %d images per upload", MaxImages)
	ErrImageTooLarge = fmt.Errorf("chat: image exceeds %d MB", MaxImageBytes>>20)
	ErrNotImage      = errors.New("chat: file is not an image")
)

// PrepareImages checks upload limits and fills in each file's content type
// from its bytes. The input slice is not modified.
func PrepareImages(files []api.ImageFile) ([]api.ImageFile, error) {
	if len(files) == 0 {
		return nil, ErrNoImages
	}
	if len(files) > MaxImages {
		return nil, ErrTooManyImages
	}
	out := make([]api.ImageFile, len(files))
	for i, f := range files {
		if len(f.Data) > MaxImageBytes {
			return nil, fmt.Errorf("%w: %s", ErrImageTooLarge, f.Name)
		}
		mt := mimetype.Detect(f.Data)
		if !strings.HasPrefix(mt.String(), "image/") {
			return nil, fmt.Errorf("%w: %s (%s)", ErrNotImage, f.Name, mt.String())
		}
		f.ContentType = mt.String()
		out[i] = f
	}
	return out, nil
}

// PreviewURL returns a data URL for showing an image before the upload
// completes.
func PreviewURL(f api.ImageFile) string {
	ct := f.ContentType
	if ct == "" {
		ct = mimetype.Detect(f.Data).String()
	}
	return "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(f.Data)
}
