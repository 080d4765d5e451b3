// ABOUTME: Crop recommendation classifier over seven soil and weather features
// ABOUTME: Min-max scaled nearest-centroid model mapped to crop labels 1..22

package predict

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrUnknownLabel is returned when the classifier's label has no crop name.
var ErrUnknownLabel = errors.New("could not determine the best crop")

// CropFeatures are the classifier inputs in training order.
type CropFeatures struct {
	Nitrogen    float64
	Phosphorus  float64
	Potassium   float64
	Temperature float64
	Humidity    float64
	Ph          float64
	Rainfall    float64
}

func (f CropFeatures) vector() []float64 {
	return []float64{f.Nitrogen, f.Phosphorus, f.Potassium, f.Temperature, f.Humidity, f.Ph, f.Rainfall}
}

var cropNames = map[int]string{
	1: "Rice", 2: "Maize", 3: "Jute", 4: "Cotton", 5: "Coconut", 6: "Papaya", 7: "Orange",
	8: "Apple", 9: "Muskmelon", 10: "Watermelon", 11: "Grapes", 12: "Mango", 13: "Banana",
	14: "Pomegranate", 15: "Lentil", 16: "Blackgram", 17: "Mungbean", 18: "Mothbeans",
	19: "Pigeonpeas", 20: "Kidneybeans", 21: "Chickpea", 22: "Coffee",
}

// CropName returns the crop for a classifier label.
func CropName(label int) (string, bool) {
	name, ok := cropNames[label]
	return name, ok
}

type cropModelFile struct {
	Features []string `yaml:"features"`
	Scaler   struct {
		Min []float64 `yaml:"min"`
		Max []float64 `yaml:"max"`
	} `yaml:"scaler"`
	Centroids map[int][]float64 `yaml:"centroids"`
}

type centroid struct {
	label  int
	scaled []float64
}

// CropClassifier predicts a crop label from CropFeatures.
type CropClassifier struct {
	min, max  []float64
	centroids []centroid
}

const cropFeatureCount = 7

// LoadCropClassifier reads a classifier from path, or the bundled model when
// path is empty.
func LoadCropClassifier(path string) (*CropClassifier, error) {
	data, err := readModel(path, defaultCropModel)
	if err != nil {
		return nil, fmt.Errorf("reading crop model: %w", err)
	}
	return ParseCropClassifier(data)
}

// ParseCropClassifier builds a classifier from YAML model data.
func ParseCropClassifier(data []byte) (*CropClassifier, error) {
	var file cropModelFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing crop model: %w", err)
	}
	if len(file.Scaler.Min) != cropFeatureCount || len(file.Scaler.Max) != cropFeatureCount {
		return nil, fmt.Errorf("crop model scaler must have %d features", cropFeatureCount)
	}
	if len(file.Centroids) == 0 {
		return nil, errors.New("crop model has no centroids")
	}

	c := &CropClassifier{min: file.Scaler.Min, max: file.Scaler.Max}
	for label, vec := range file.Centroids {
		if len(vec) != cropFeatureCount {
			return nil, fmt.Errorf("crop model centroid %d has %d features, want %d", label, len(vec), cropFeatureCount)
		}
		c.centroids = append(c.centroids, centroid{label: label, scaled: c.scale(vec)})
	}
	return c, nil
}

func (c *CropClassifier) scale(vec []float64) []float64 {
	out := make([]float64, len(vec))
	for i, v := range vec {
		span := c.max[i] - c.min[i]
		if span == 0 {
			continue
		}
		out[i] = (v - c.min[i]) / span
	}
	return out
}

// Predict returns the label of the nearest centroid. Ties go to the lower label.
func (c *CropClassifier) Predict(f CropFeatures) int {
	x := c.scale(f.vector())

	best, bestDist := 0, math.Inf(1)
	for _, ct := range c.centroids {
		var d float64
		for i := range x {
			diff := x[i] - ct.scaled[i]
			d += diff * diff
		}
		if d < bestDist || (d == bestDist && ct.label < best) {
			best, bestDist = ct.label, d
		}
	}
	return best
}

// Recommend predicts a label and resolves it to a crop name.
func (c *CropClassifier) Recommend(f CropFeatures) (string, error) {
	label := c.Predict(f)
	name, ok := CropName(label)
	if !ok {
		return "", fmt.Errorf("%w: label %d", ErrUnknownLabel, label)
	}
	return name, nil
}

func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}
