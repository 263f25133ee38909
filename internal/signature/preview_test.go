package signature

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
)

func samplePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.Black)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode sample: %v", err)
	}
	return buf.Bytes()
}

func decodedSize(t *testing.T, data []byte) (int, int) {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode preview: %v", err)
	}
	return img.Bounds().Dx(), img.Bounds().Dy()
}

func TestFit(t *testing.T) {
	cases := []struct{ w, h, wantW, wantH int }{
		{300, 100, 300, 100},
		{1200, 400, 600, 200},
		{1200, 100, 600, 50},
		{400, 800, 100, 200},
	}
	for _, c := range cases {
		if w, h := Fit(c.w, c.h); w != c.wantW || h != c.wantH {
			t.Fatalf("Fit(%d,%d) = %d,%d want %d,%d", c.w, c.h, w, h, c.wantW, c.wantH)
		}
	}
}

func TestPreviewScalesDown(t *testing.T) {
	out, err := Preview(samplePNG(t, 1200, 400))
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if w, h := decodedSize(t, out); w != 600 || h != 200 {
		t.Fatalf("unexpected preview size %dx%d", w, h)
	}
}

func TestPreviewRejectsGarbage(t *testing.T) {
	if _, err := Preview([]byte("not an image")); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestLoadDataURL(t *testing.T) {
	raw := samplePNG(t, 10, 10)
	ref := "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw)
	got, err := Load(context.Background(), http.DefaultClient, ref)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Fatalf("data url did not round trip")
	}
}

func TestLoadHTTP(t *testing.T) {
	raw := samplePNG(t, 20, 20)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sig.png" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(raw)
	}))
	defer srv.Close()

	got, err := Load(context.Background(), srv.Client(), srv.URL+"/sig.png")
	if err != nil || !bytes.Equal(got, raw) {
		t.Fatalf("unexpected load result: %v", err)
	}
	if _, err := Load(context.Background(), srv.Client(), srv.URL+"/missing.png"); err == nil {
		t.Fatalf("expected error for 404")
	}
}

func TestLoadEmptyAndUnsupported(t *testing.T) {
	if _, err := Load(context.Background(), http.DefaultClient, "  "); !errors.Is(err, ErrNoImage) {
		t.Fatalf("expected no image error, got %v", err)
	}
	if _, err := Load(context.Background(), http.DefaultClient, "ftp://x/y.png"); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
	if _, err := DecodeDataURL("data:image/png;base64"); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected missing separator error, got %v", err)
	}
}
