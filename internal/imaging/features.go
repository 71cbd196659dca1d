package imaging

import (
	"image"
	"math"
	"sort"
)

// Features are the per-particle shape and intensity descriptors exported as
// img_ columns.
type Features struct {
	Area               float64
	FilledArea         float64
	Perimeter          float64
	MajorAxisLength    float64
	MinorAxisLength    float64
	Eccentricity       float64
	EquivalentDiameter float64
	Solidity           float64
	Extent             float64
	Width              float64
	Height             float64
	MeanIntensity      float64
	MinIntensity       float64
	MaxIntensity       float64
	StdIntensity       float64
}

// Measure computes the descriptors of one region against the source image.
func Measure(region *Region, img *image.Gray) Features {
	area := float64(region.Area())
	features := Features{
		Area:               area,
		FilledArea:         float64(filledArea(region)),
		Perimeter:          perimeter(region),
		EquivalentDiameter: math.Sqrt(4 * area / math.Pi),
		Width:              float64(region.Bounds.Dx()),
		Height:             float64(region.Bounds.Dy()),
	}

	boxArea := float64(region.Bounds.Dx() * region.Bounds.Dy())
	if boxArea > 0 {
		features.Extent = area / boxArea
	}

	measureAxes(region, &features)
	measureIntensity(region, img, &features)

	if hullArea := convexHullArea(region); hullArea > 0 {
		features.Solidity = math.Min(area/hullArea, 1)
	} else {
		features.Solidity = 1
	}
	return features
}

// measureAxes derives ellipse axes and eccentricity from the normalized
// second central moments, matching the usual region-properties convention.
func measureAxes(region *Region, features *Features) {
	n := float64(region.Area())
	if n == 0 {
		return
	}
	var cx, cy float64
	for _, p := range region.Pixels {
		cx += float64(p.X)
		cy += float64(p.Y)
	}
	cx /= n
	cy /= n

	var mxx, myy, mxy float64
	for _, p := range region.Pixels {
		dx := float64(p.X) - cx
		dy := float64(p.Y) - cy
		mxx += dx * dx
		myy += dy * dy
		mxy += dx * dy
	}
	// 1/12 is the variance of a unit pixel; it keeps single-pixel regions
	// from degenerating to zero-length axes.
	mxx = mxx/n + 1.0/12.0
	myy = myy/n + 1.0/12.0
	mxy /= n

	common := math.Sqrt((mxx-myy)*(mxx-myy) + 4*mxy*mxy)
	l1 := (mxx + myy + common) / 2
	l2 := (mxx + myy - common) / 2
	if l2 < 0 {
		l2 = 0
	}

	features.MajorAxisLength = 4 * math.Sqrt(l1)
	features.MinorAxisLength = 4 * math.Sqrt(l2)
	if l1 > 0 {
		features.Eccentricity = math.Sqrt(1 - l2/l1)
	}
}

func measureIntensity(region *Region, img *image.Gray, features *Features) {
	if region.Area() == 0 || img == nil {
		return
	}
	bounds := img.Bounds()
	minV, maxV := math.MaxFloat64, -math.MaxFloat64
	var sum, sumSq float64
	for _, p := range region.Pixels {
		v := float64(img.GrayAt(bounds.Min.X+p.X, bounds.Min.Y+p.Y).Y)
		sum += v
		sumSq += v * v
		minV = math.Min(minV, v)
		maxV = math.Max(maxV, v)
	}
	n := float64(region.Area())
	features.MeanIntensity = sum / n
	features.MinIntensity = minV
	features.MaxIntensity = maxV
	variance := sumSq/n - features.MeanIntensity*features.MeanIntensity
	if variance > 0 {
		features.StdIntensity = math.Sqrt(variance)
	}
}

// filledArea counts region pixels plus any enclosed holes, found by flood
// filling background from the bounding box border.
func filledArea(region *Region) int {
	w := region.Bounds.Dx()
	h := region.Bounds.Dy()
	if w == 0 || h == 0 {
		return 0
	}
	mask := NewBitmap(w, h)
	for _, p := range region.Pixels {
		mask.Set(p.X-region.Bounds.Min.X, p.Y-region.Bounds.Min.Y, true)
	}

	outside := make([]bool, w*h)
	var stack []image.Point
	for x := 0; x < w; x++ {
		stack = append(stack, image.Pt(x, 0), image.Pt(x, h-1))
	}
	for y := 0; y < h; y++ {
		stack = append(stack, image.Pt(0, y), image.Pt(w-1, y))
	}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if p.X < 0 || p.Y < 0 || p.X >= w || p.Y >= h {
			continue
		}
		idx := p.Y*w + p.X
		if outside[idx] || mask.Bits[idx] {
			continue
		}
		outside[idx] = true
		stack = append(stack,
			image.Pt(p.X+1, p.Y), image.Pt(p.X-1, p.Y),
			image.Pt(p.X, p.Y+1), image.Pt(p.X, p.Y-1))
	}

	filled := 0
	for idx := range outside {
		if !outside[idx] {
			filled++
		}
	}
	return filled
}

// perimeter counts foreground edges adjacent to background, a 4-connected
// boundary length approximation.
func perimeter(region *Region) float64 {
	w := region.Bounds.Dx()
	h := region.Bounds.Dy()
	mask := NewBitmap(w, h)
	for _, p := range region.Pixels {
		mask.Set(p.X-region.Bounds.Min.X, p.Y-region.Bounds.Min.Y, true)
	}
	edges := 0
	for _, p := range region.Pixels {
		x := p.X - region.Bounds.Min.X
		y := p.Y - region.Bounds.Min.Y
		if !mask.At(x+1, y) {
			edges++
		}
		if !mask.At(x-1, y) {
			edges++
		}
		if !mask.At(x, y+1) {
			edges++
		}
		if !mask.At(x, y-1) {
			edges++
		}
	}
	return float64(edges)
}

// convexHullArea computes the area of the convex hull of the region's pixel
// centers by monotone chain plus the shoelace formula.
func convexHullArea(region *Region) float64 {
	points := make([]image.Point, len(region.Pixels))
	copy(points, region.Pixels)
	sort.Slice(points, func(i, j int) bool {
		if points[i].X != points[j].X {
			return points[i].X < points[j].X
		}
		return points[i].Y < points[j].Y
	})

	if len(points) < 3 {
		return float64(len(points))
	}

	cross := func(o, a, b image.Point) int {
		return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
	}

	var hull []image.Point
	for _, p := range points {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(points) - 2; i >= 0; i-- {
		p := points[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	hull = hull[:len(hull)-1]

	var area2 int
	for i := range hull {
		j := (i + 1) % len(hull)
		area2 += hull[i].X*hull[j].Y - hull[j].X*hull[i].Y
	}
	area := math.Abs(float64(area2)) / 2
	// Pixel centers underestimate the raster area; keep at least the pixel
	// count so solidity stays <= 1 for convex shapes.
	return math.Max(area, float64(len(region.Pixels)))
}
