// Pixel comparison metrics for verifying transform round trips
package metrics

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"image-crop-engine/internal/raster"
)

// Metric defines the interface for pixel comparison metrics
type Metric interface {
	// Calculate computes the metric value
	Calculate(original, processed image.Image) (float64, error)

	// GetName returns the metric name
	GetName() string
}

// Evaluator manages and calculates multiple metrics
type Evaluator struct {
	metrics map[string]Metric
}

// NewEvaluator creates an evaluator with the default metrics registered
func NewEvaluator() *Evaluator {
	e := &Evaluator{metrics: make(map[string]Metric)}
	e.Register(NewPSNR())
	e.Register(NewMSE())
	e.Register(NewMaxDiff())
	return e
}

// Register registers a metric under its own name
func (e *Evaluator) Register(metric Metric) {
	e.metrics[metric.GetName()] = metric
}

// CalculateAll calculates all registered metrics, skipping the ones that fail
func (e *Evaluator) CalculateAll(original, processed image.Image) map[string]float64 {
	results := make(map[string]float64)
	for name, metric := range e.metrics {
		if value, err := metric.Calculate(original, processed); err == nil {
			results[name] = value
		}
	}
	return results
}

// PixelEqual reports whether two buffers have the same size and no channel
// differs by more than tolerance.
func PixelEqual(a, b raster.Buffer, tolerance uint8) (bool, error) {
	if a.Size() != b.Size() {
		return false, nil
	}

	imgA, err := a.Image()
	if err != nil {
		return false, err
	}
	imgB, err := b.Image()
	if err != nil {
		return false, err
	}

	diff, err := NewMaxDiff().Calculate(imgA, imgB)
	if err != nil {
		return false, err
	}
	return diff <= float64(tolerance), nil
}

// PSNR implements Peak Signal-to-Noise Ratio over the RGB channels
type PSNR struct{}

// NewPSNR creates a new PSNR metric
func NewPSNR() *PSNR {
	return &PSNR{}
}

func (p *PSNR) Calculate(original, processed image.Image) (float64, error) {
	mse, err := NewMSE().Calculate(original, processed)
	if err != nil {
		return 0, err
	}
	if mse == 0 {
		return math.Inf(1), nil // Perfect match
	}
	return 20 * math.Log10(255.0/math.Sqrt(mse)), nil
}

func (p *PSNR) GetName() string { return "psnr" }

// MSE implements mean squared error over the RGB channels
type MSE struct{}

// NewMSE creates a new MSE metric
func NewMSE() *MSE {
	return &MSE{}
}

func (m *MSE) Calculate(original, processed image.Image) (float64, error) {
	var sum float64
	n, err := walk(original, processed, func(a, b color.NRGBA) {
		for _, d := range channelDiffs(a, b) {
			sum += d * d
		}
	})
	if err != nil {
		return 0, err
	}
	return sum / float64(n*3), nil
}

func (m *MSE) GetName() string { return "mse" }

// MaxDiff is the largest absolute difference of any channel, alpha included
type MaxDiff struct{}

// NewMaxDiff creates a new MaxDiff metric
func NewMaxDiff() *MaxDiff {
	return &MaxDiff{}
}

func (m *MaxDiff) Calculate(original, processed image.Image) (float64, error) {
	var worst float64
	_, err := walk(original, processed, func(a, b color.NRGBA) {
		for _, d := range channelDiffs(a, b) {
			worst = math.Max(worst, math.Abs(d))
		}
		worst = math.Max(worst, math.Abs(float64(a.A)-float64(b.A)))
	})
	return worst, err
}

func (m *MaxDiff) GetName() string { return "max_diff" }

func channelDiffs(a, b color.NRGBA) [3]float64 {
	return [3]float64{
		float64(a.R) - float64(b.R),
		float64(a.G) - float64(b.G),
		float64(a.B) - float64(b.B),
	}
}

// walk visits every pixel pair and returns the pixel count.
func walk(original, processed image.Image, visit func(a, b color.NRGBA)) (int, error) {
	if original == nil || processed == nil {
		return 0, fmt.Errorf("empty images")
	}

	ob, pb := original.Bounds(), processed.Bounds()
	if ob.Dx() != pb.Dx() || ob.Dy() != pb.Dy() {
		return 0, fmt.Errorf("image dimensions mismatch: %v vs %v", ob.Size(), pb.Size())
	}
	if ob.Empty() {
		return 0, fmt.Errorf("empty images")
	}

	for y := 0; y < ob.Dy(); y++ {
		for x := 0; x < ob.Dx(); x++ {
			a := color.NRGBAModel.Convert(original.At(ob.Min.X+x, ob.Min.Y+y)).(color.NRGBA)
			b := color.NRGBAModel.Convert(processed.At(pb.Min.X+x, pb.Min.Y+y)).(color.NRGBA)
			visit(a, b)
		}
	}
	return ob.Dx() * ob.Dy(), nil
}
