package watershed

import (
	"fmt"
	"image"
	"math"
	"sort"

	"watershed-segmenter/internal/opencv/safe"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/stat"
)

// Region describes one positive label of a marker map.
type Region struct {
	Label     int32
	Area      int
	Bounds    image.Rectangle
	CentroidX float64
	CentroidY float64
}

type RegionSummary struct {
	Count          int
	BoundaryPixels int
	UnknownPixels  int
	MeanArea       float64
	StdDevArea     float64
	LargestLabel   int32
}

// AnalyzeRegions measures every positive label in a CV_32SC1 marker map, sorted by label.
func AnalyzeRegions(markers *safe.Mat) ([]Region, RegionSummary, error) {
	var summary RegionSummary
	if err := safe.ValidateMatType(markers, gocv.MatTypeCV32SC1, "region analysis"); err != nil {
		return nil, summary, err
	}

	type acc struct {
		area       int
		sumX, sumY float64
		bounds     image.Rectangle
	}
	byLabel := make(map[int32]*acc)

	rows, cols := markers.Rows(), markers.Cols()
	mat := markers.GetMat()
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			label := mat.GetIntAt(y, x)
			switch {
			case label < 0:
				summary.BoundaryPixels++
				continue
			case label == 0:
				summary.UnknownPixels++
				continue
			}

			a, ok := byLabel[label]
			if !ok {
				a = &acc{bounds: image.Rect(x, y, x+1, y+1)}
				byLabel[label] = a
			}
			a.area++
			a.sumX += float64(x)
			a.sumY += float64(y)
			a.bounds = a.bounds.Union(image.Rect(x, y, x+1, y+1))
		}
	}

	regions := make([]Region, 0, len(byLabel))
	for label, a := range byLabel {
		regions = append(regions, Region{
			Label:     label,
			Area:      a.area,
			Bounds:    a.bounds,
			CentroidX: a.sumX / float64(a.area),
			CentroidY: a.sumY / float64(a.area),
		})
	}
	sort.Slice(regions, func(i, j int) bool { return regions[i].Label < regions[j].Label })

	summary.Count = len(regions)
	if summary.Count == 0 {
		return regions, summary, nil
	}

	areas := make([]float64, len(regions))
	largest := regions[0]
	for i, r := range regions {
		areas[i] = float64(r.Area)
		if r.Area > largest.Area {
			largest = r
		}
	}
	summary.LargestLabel = largest.Label
	summary.MeanArea, summary.StdDevArea = stat.MeanStdDev(areas, nil)
	if math.IsNaN(summary.StdDevArea) {
		summary.StdDevArea = 0
	}

	return regions, summary, nil
}

func (s RegionSummary) String() string {
	return fmt.Sprintf("regions=%d boundary=%d unknown=%d mean_area=%.1f stddev_area=%.1f largest=%d",
		s.Count, s.BoundaryPixels, s.UnknownPixels, s.MeanArea, s.StdDevArea, s.LargestLabel)
}
