// Package imaging measures particle images.
//
// The in-flow camera produces small grayscale crops with one particle
// against a light background. The measurement pipeline is: Otsu threshold,
// morphological closing to bridge thin gaps, largest connected component,
// then shape and intensity descriptors of that region.
package imaging

import (
	"errors"
	"image"
	"image/draw"
	"image/png"
	"io"
)

// ErrNoRegion reports an image where thresholding found no foreground.
var ErrNoRegion = errors.New("no foreground region detected")

// DecodeGray reads a PNG image and converts it to 8-bit grayscale.
func DecodeGray(r io.Reader) (*image.Gray, error) {
	src, err := png.Decode(r)
	if err != nil {
		return nil, err
	}
	if gray, ok := src.(*image.Gray); ok {
		return gray, nil
	}
	bounds := src.Bounds()
	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, src, bounds.Min, draw.Src)
	return gray, nil
}

// Otsu computes the threshold maximizing between-class variance of the
// grayscale histogram.
func Otsu(img *image.Gray) uint8 {
	var histogram [256]int
	bounds := img.Bounds()
	total := bounds.Dx() * bounds.Dy()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			histogram[img.GrayAt(x, y).Y]++
		}
	}

	var sum float64
	for level, count := range histogram {
		sum += float64(level) * float64(count)
	}

	var sumBackground, weightBackground float64
	best := 0.0
	threshold := uint8(0)
	for level := 0; level < 256; level++ {
		weightBackground += float64(histogram[level])
		if weightBackground == 0 {
			continue
		}
		weightForeground := float64(total) - weightBackground
		if weightForeground == 0 {
			break
		}
		sumBackground += float64(level) * float64(histogram[level])
		meanBackground := sumBackground / weightBackground
		meanForeground := (sum - sumBackground) / weightForeground
		between := weightBackground * weightForeground *
			(meanBackground - meanForeground) * (meanBackground - meanForeground)
		if between > best {
			best = between
			threshold = uint8(level)
		}
	}
	return threshold
}

// Bitmap is a binary mask over an image of the given dimensions.
type Bitmap struct {
	W, H int
	Bits []bool
}

// NewBitmap allocates an empty mask.
func NewBitmap(w, h int) *Bitmap {
	return &Bitmap{W: w, H: h, Bits: make([]bool, w*h)}
}

// At reports the mask value; out-of-range coordinates are background.
func (b *Bitmap) At(x, y int) bool {
	if x < 0 || y < 0 || x >= b.W || y >= b.H {
		return false
	}
	return b.Bits[y*b.W+x]
}

// Set marks one mask pixel.
func (b *Bitmap) Set(x, y int, v bool) {
	b.Bits[y*b.W+x] = v
}

// Threshold builds a foreground mask of pixels darker than or equal to the
// threshold. Particles are dark on a light background.
func Threshold(img *image.Gray, threshold uint8) *Bitmap {
	bounds := img.Bounds()
	mask := NewBitmap(bounds.Dx(), bounds.Dy())
	for y := 0; y < mask.H; y++ {
		for x := 0; x < mask.W; x++ {
			mask.Set(x, y, img.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y <= threshold)
		}
	}
	return mask
}

// Dilate grows the mask by one pixel with a 3x3 structuring element.
func Dilate(mask *Bitmap) *Bitmap {
	out := NewBitmap(mask.W, mask.H)
	for y := 0; y < mask.H; y++ {
		for x := 0; x < mask.W; x++ {
			if neighborhoodAny(mask, x, y) {
				out.Set(x, y, true)
			}
		}
	}
	return out
}

// Erode shrinks the mask by one pixel with a 3x3 structuring element.
func Erode(mask *Bitmap) *Bitmap {
	out := NewBitmap(mask.W, mask.H)
	for y := 0; y < mask.H; y++ {
		for x := 0; x < mask.W; x++ {
			if neighborhoodAll(mask, x, y) {
				out.Set(x, y, true)
			}
		}
	}
	return out
}

// Close performs dilation followed by erosion, bridging one-pixel gaps so a
// particle outline segments as one region.
func Close(mask *Bitmap) *Bitmap {
	return Erode(Dilate(mask))
}

func neighborhoodAny(mask *Bitmap, x, y int) bool {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if mask.At(x+dx, y+dy) {
				return true
			}
		}
	}
	return false
}

func neighborhoodAll(mask *Bitmap, x, y int) bool {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if !mask.At(x+dx, y+dy) {
				return false
			}
		}
	}
	return true
}

// Region is one 8-connected foreground component.
type Region struct {
	Pixels []image.Point
	Bounds image.Rectangle
}

// Area is the pixel count of the region.
func (r *Region) Area() int { return len(r.Pixels) }

// Regions labels 8-connected components of the mask.
func Regions(mask *Bitmap) []*Region {
	visited := make([]bool, len(mask.Bits))
	var regions []*Region
	var stack []image.Point

	for y := 0; y < mask.H; y++ {
		for x := 0; x < mask.W; x++ {
			idx := y*mask.W + x
			if visited[idx] || !mask.Bits[idx] {
				continue
			}
			region := &Region{Bounds: image.Rect(x, y, x+1, y+1)}
			stack = append(stack[:0], image.Pt(x, y))
			visited[idx] = true
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				region.Pixels = append(region.Pixels, p)
				region.Bounds = region.Bounds.Union(image.Rect(p.X, p.Y, p.X+1, p.Y+1))
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						nx, ny := p.X+dx, p.Y+dy
						if nx < 0 || ny < 0 || nx >= mask.W || ny >= mask.H {
							continue
						}
						nidx := ny*mask.W + nx
						if visited[nidx] || !mask.Bits[nidx] {
							continue
						}
						visited[nidx] = true
						stack = append(stack, image.Pt(nx, ny))
					}
				}
			}
			regions = append(regions, region)
		}
	}
	return regions
}

// LargestRegion returns the biggest component, the particle by assumption.
func LargestRegion(mask *Bitmap) (*Region, error) {
	regions := Regions(mask)
	if len(regions) == 0 {
		return nil, ErrNoRegion
	}
	largest := regions[0]
	for _, region := range regions[1:] {
		if region.Area() > largest.Area() {
			largest = region
		}
	}
	return largest, nil
}
