package images

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"net/http"
	"strings"
)

// Placeholder is substituted for any image that cannot be resolved: a 1x1 white PNG.
const Placeholder = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAIAAACQd1PeAAAADElEQVR4nGP4//8/AAX+Av4N70a4AAAAAElFTkSuQmCC"

var ErrNotDataURL = errors.New("images: not a base64 data url")

// DecodeDataURL returns the payload and declared MIME type of a data URL. A bare
// base64 string is accepted and its type sniffed.
func DecodeDataURL(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	var mime string
	if strings.HasPrefix(s, "data:") {
		idx := strings.IndexByte(s, ',')
		if idx < 0 {
			return nil, "", ErrNotDataURL
		}
		meta := s[len("data:"):idx]
		if !strings.HasSuffix(meta, ";base64") {
			return nil, "", ErrNotDataURL
		}
		mime = strings.TrimSuffix(meta, ";base64")
		s = s[idx+1:]
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		if alt, altErr := base64.URLEncoding.DecodeString(s); altErr == nil {
			data = alt
		} else {
			return nil, "", fmt.Errorf("decode base64: %w", err)
		}
	}
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	return data, mime, nil
}

// EncodeDataURL wraps raw image bytes in a base64 data URL with a sniffed type.
func EncodeDataURL(raw []byte) string {
	return "data:" + http.DetectContentType(raw) + ";base64," + base64.StdEncoding.EncodeToString(raw)
}

// Picture is a decoded image re-encoded as baseline JPEG, which both export
// backends embed without further conversion.
type Picture struct {
	JPEG   []byte
	Width  int
	Height int
}

// Normalize decodes a data URL (PNG, JPEG or GIF) and flattens it onto white.
func Normalize(dataURL string) (Picture, error) {
	raw, _, err := DecodeDataURL(dataURL)
	if err != nil {
		return Picture{}, err
	}
	return NormalizeBytes(raw)
}

// NormalizeBytes is Normalize for raw image bytes.
func NormalizeBytes(raw []byte) (Picture, error) {
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return Picture{}, fmt.Errorf("decode image: %w", err)
	}
	b := src.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return Picture{}, errors.New("images: empty image")
	}

	flat := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(flat, flat.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(flat, flat.Bounds(), src, b.Min, draw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flat, &jpeg.Options{Quality: 90}); err != nil {
		return Picture{}, fmt.Errorf("encode jpeg: %w", err)
	}
	return Picture{JPEG: buf.Bytes(), Width: b.Dx(), Height: b.Dy()}, nil
}

// Fit scales w x h down so neither side exceeds max, keeping the aspect ratio.
func Fit(w, h, max float64) (float64, float64) {
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	scale := 1.0
	if w > max {
		scale = max / w
	}
	if h*scale > max {
		scale = max / h
	}
	return w * scale, h * scale
}
