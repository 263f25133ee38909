// Package signature turns the LOA signature image reference stored on a PCP
// lead into a bounded PNG preview.
package signature

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	stddraw "image/draw"
	_ "image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"strings"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

const (
	MaxWidth  = 600
	MaxHeight = 200
	maxBytes  = 8 << 20
)

var (
	ErrNoImage     = errors.New("no signature image on file")
	ErrUnsupported = errors.New("unsupported signature image reference")
)

// Load resolves ref, a data URL or an http(s) URL, to the raw image bytes.
func Load(ctx context.Context, client *http.Client, ref string) ([]byte, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return nil, ErrNoImage
	case strings.HasPrefix(ref, "data:"):
		return DecodeDataURL(ref)
	case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
		if _, err := url.Parse(ref); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
		}
		return fetch(ctx, client, ref)
	default:
		// Some records carry bare base64 without the data: prefix.
		if raw, err := base64.StdEncoding.DecodeString(ref); err == nil {
			return raw, nil
		}
		return nil, ErrUnsupported
	}
}

func fetch(ctx context.Context, client *http.Client, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch signature image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch signature image: HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBytes))
}

// DecodeDataURL decodes data:[<mediatype>][;base64],<data>.
func DecodeDataURL(ref string) ([]byte, error) {
	rest, ok := strings.CutPrefix(ref, "data:")
	if !ok {
		return nil, ErrUnsupported
	}
	meta, data, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, fmt.Errorf("%w: missing data separator", ErrUnsupported)
	}
	if !strings.HasSuffix(meta, ";base64") {
		decoded, err := url.PathUnescape(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
		}
		return []byte(decoded), nil
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		if raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(data, "=")); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
		}
	}
	return raw, nil
}

// Preview decodes a PNG, JPEG or WebP image and returns a PNG that fits in
// MaxWidth x MaxHeight on a white background. Smaller images are not enlarged.
func Preview(raw []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		decoded, webpErr := webp.Decode(bytes.NewReader(raw))
		if webpErr != nil {
			return nil, fmt.Errorf("decode signature image: %w", err)
		}
		img = decoded
	}

	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, errors.New("invalid image dimensions")
	}
	width, height := Fit(bounds.Dx(), bounds.Dy())

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	stddraw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, stddraw.Src)
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, xdraw.Over, nil)

	var out bytes.Buffer
	if err := png.Encode(&out, dst); err != nil {
		return nil, fmt.Errorf("encode preview: %w", err)
	}
	return out.Bytes(), nil
}

// Fit scales width x height down to the preview box keeping the aspect ratio.
func Fit(width, height int) (int, int) {
	if width <= MaxWidth && height <= MaxHeight {
		return width, height
	}
	scale := min(float64(MaxWidth)/float64(width), float64(MaxHeight)/float64(height))
	w := max(1, int(float64(width)*scale+0.5))
	h := max(1, int(float64(height)*scale+0.5))
	return min(w, MaxWidth), min(h, MaxHeight)
}
