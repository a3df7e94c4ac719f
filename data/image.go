package data

import (
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/tiff"
	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"github.com/sugarme/gotch/ts"
	"golang.org/x/image/draw"
)

// ReadImage decodes a png, jpeg or tiff file.
func ReadImage(filename string) (image.Image, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png", ".jpg", ".jpeg":
		return imaging.Open(filename, imaging.AutoOrientation(true))
	case ".tiff", ".tif":
		f, err := os.Open(filename)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return tiff.Decode(f)
	default:
		return nil, fmt.Errorf("unsupported image format: %q", filepath.Ext(filename))
	}
}

// Resize scales img to w x h. Frames use Lanczos3; masks use nearest
// neighbour so they stay binary.
func Resize(img image.Image, w, h int, mask bool) image.Image {
	if img.Bounds().Dx() == w && img.Bounds().Dy() == h {
		return img
	}
	interp := resize.Lanczos3
	if mask {
		interp = resize.NearestNeighbor
	}
	return resize.Resize(uint(w), uint(h), img, interp)
}

// toNRGBA copies img into a zero-origin NRGBA image.
func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Copy(dst, image.Point{}, img, b, draw.Src, nil)
	return dst
}

// ImageTensor converts img to a [3,H,W] float tensor in [0,1].
func ImageTensor(img image.Image) *ts.Tensor {
	src := toNRGBA(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	plane := w * h

	vals := make([]float32, 3*plane)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := src.NRGBAAt(x, y)
			i := y*w + x
			vals[i] = float32(c.R) / 255
			vals[plane+i] = float32(c.G) / 255
			vals[2*plane+i] = float32(c.B) / 255
		}
	}

	return ts.MustOfSlice(vals).MustView([]int64{3, int64(h), int64(w)}, true)
}

// MaskTensor converts a mask image to a [1,H,W] float tensor: gray level
// divided by 255.
func MaskTensor(img image.Image) *ts.Tensor {
	gray := imaging.Grayscale(img)
	w, h := gray.Rect.Dx(), gray.Rect.Dy()

	vals := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			vals[y*w+x] = float32(gray.NRGBAAt(x, y).R) / 255
		}
	}

	return ts.MustOfSlice(vals).MustView([]int64{1, int64(h), int64(w)}, true)
}

// MaskImage converts a [1,H,W] or [H,W] probability mask to an 8-bit gray
// image. With threshold > 0 pixels are binarized to 0 or 255.
func MaskImage(mask *ts.Tensor, threshold float64) (*image.Gray, error) {
	size := mask.MustSize()
	if len(size) == 3 && size[0] == 1 {
		size = size[1:]
	}
	if len(size) != 2 {
		return nil, fmt.Errorf("mask image: expected [1,H,W] or [H,W], got %v", mask.MustSize())
	}
	h, w := int(size[0]), int(size[1])

	flat := mask.MustDetach(false).MustContiguous(true).MustView([]int64{-1}, true)
	vals := flat.Float64Values()
	flat.MustDrop()

	img := image.NewGray(image.Rect(0, 0, w, h))
	for i, v := range vals {
		switch {
		case threshold > 0 && v > threshold:
			v = 1
		case threshold > 0:
			v = 0
		}
		img.Pix[i] = uint8(math.Round(math.Max(0, math.Min(1, v)) * 255))
	}
	return img, nil
}

// SaveMask writes mask to filename; the format follows the extension.
func SaveMask(filename string, mask *ts.Tensor, threshold float64) error {
	img, err := MaskImage(mask, threshold)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".tiff", ".tif":
		f, err := os.Create(filename)
		if err != nil {
			return err
		}
		if err := tiff.Encode(f, img, nil); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	default:
		return imaging.Save(img, filename)
	}
}
