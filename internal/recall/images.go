package recall

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/image/draw"
)

// imagePaths returns <root>/YYYY/MM/DD and the HH-MM-SS file name for t (UTC).
func imagePaths(root string, t time.Time) (dir, name string) {
	t = t.UTC()
	dir = filepath.Join(root, t.Format("2006"), t.Format("01"), t.Format("02"))
	return dir, t.Format("15-04-05")
}

// freeName returns base.png, or base-N.png when captures land in the same second.
func freeName(dir, base string) string {
	name := base + ".png"
	for i := 1; ; i++ {
		if _, err := os.Stat(filepath.Join(dir, name)); os.IsNotExist(err) {
			return name
		}
		name = fmt.Sprintf("%s-%d.png", base, i)
	}
}

// fitWithin scales (w, h) down to fit inside (maxW, maxH), keeping the
// aspect ratio. Images already small enough keep their size.
func fitWithin(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	scale := float64(maxW) / float64(w)
	if s := float64(maxH) / float64(h); s < scale {
		scale = s
	}
	tw := int(float64(w)*scale + 0.5)
	th := int(float64(h)*scale + 0.5)
	if tw < 1 {
		tw = 1
	}
	if th < 1 {
		th = 1
	}
	return tw, th
}

func thumbnail(src image.Image, maxW, maxH int) image.Image {
	b := src.Bounds()
	tw, th := fitWithin(b.Dx(), b.Dy(), maxW, maxH)
	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writePNG encodes img to path. A partial file is removed on failure.
func writePNG(path string, img image.Image) error {
	data, err := encodePNG(img)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		os.Remove(path)
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
