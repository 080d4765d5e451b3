package predict

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCropClassifier_BundledModel(t *testing.T) {
	c, err := LoadCropClassifier("")
	require.NoError(t, err)

	tests := []struct {
		name string
		in   CropFeatures
		want string
	}{
		{"paddy conditions", CropFeatures{90, 42, 43, 20.9, 82.0, 6.5, 202.9}, "Rice"},
		{"dry cool chickpea", CropFeatures{40, 67, 80, 18.5, 17.0, 7.3, 82.0}, "Chickpea"},
		{"apple orchard", CropFeatures{20, 130, 198, 22.0, 91.0, 6.0, 115.0}, "Apple"},
		{"coffee estate", CropFeatures{100, 30, 30, 25.0, 58.0, 6.8, 160.0}, "Coffee"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Recommend(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCropClassifier_EveryLabelNamed(t *testing.T) {
	for label := 1; label <= 22; label++ {
		_, ok := CropName(label)
		assert.True(t, ok, "label %d", label)
	}
	_, ok := CropName(0)
	assert.False(t, ok)
	_, ok = CropName(23)
	assert.False(t, ok)
}

func TestCropClassifier_UnknownLabel(t *testing.T) {
	model := []byte(`
scaler:
  min: [0, 0, 0, 0, 0, 0, 0]
  max: [1, 1, 1, 1, 1, 1, 1]
centroids:
  23: [0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5]
`)
	c, err := ParseCropClassifier(model)
	require.NoError(t, err)

	assert.Equal(t, 23, c.Predict(CropFeatures{}))
	_, err = c.Recommend(CropFeatures{})
	assert.ErrorIs(t, err, ErrUnknownLabel)
}

func TestParseCropClassifier_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		model string
	}{
		{"not yaml", "::::"},
		{"short scaler", "scaler: {min: [0], max: [1]}\ncentroids: {1: [0]}"},
		{"no centroids", "scaler: {min: [0,0,0,0,0,0,0], max: [1,1,1,1,1,1,1]}"},
		{"short centroid", "scaler: {min: [0,0,0,0,0,0,0], max: [1,1,1,1,1,1,1]}\ncentroids: {1: [0, 1]}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCropClassifier([]byte(tt.model))
			assert.Error(t, err)
		})
	}
}

func TestLoadCropClassifier_FromPath(t *testing.T) {
	data, err := modelsFS.ReadFile(defaultCropModel)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "crop.yaml")
	require.NoError(t, os.WriteFile(path, data, 0644))

	c, err := LoadCropClassifier(path)
	require.NoError(t, err)
	assert.Len(t, c.centroids, 22)

	_, err = LoadCropClassifier(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestYieldRegressor_BundledModel(t *testing.T) {
	r, err := LoadYieldRegressor("")
	require.NoError(t, err)

	base := YieldFeatures{Year: 2005, RainfallMM: 1083, Pesticides: 75000, AvgTemp: 25.5, Area: "India"}

	maize := base
	maize.Item = "Maize"
	potatoes := base
	potatoes.Item = "Potatoes"

	yMaize := r.Predict(maize)
	yPotatoes := r.Predict(potatoes)
	assert.Greater(t, yMaize, 0.0)
	assert.Greater(t, yPotatoes, yMaize)
	assert.Equal(t, Round2(yMaize), yMaize)
	assert.True(t, r.KnownItem("Wheat"))
	assert.False(t, r.KnownItem("Saffron"))
}

func TestYieldRegressor_Arithmetic(t *testing.T) {
	model := []byte(`
intercept: 1000
numeric:
  year: {mean: 2000, coef: 10}
  average_rain_fall_mm_per_year: {mean: 100, coef: 1}
  pesticides_tonnes: {mean: 0, coef: 0.5}
  avg_temp: {mean: 20, coef: -100}
areas:
  India: 50
items:
  Wheat: 200
`)
	r, err := ParseYieldRegressor(model)
	require.NoError(t, err)

	got := r.Predict(YieldFeatures{Year: 2002, RainfallMM: 110, Pesticides: 3.333, AvgTemp: 21, Area: "India", Item: "Wheat"})
	// 1000 + 20 + 10 + 1.6665 - 100 + 50 + 200
	assert.InDelta(t, 1181.67, got, 1e-9)

	unknown := r.Predict(YieldFeatures{Year: 2000, RainfallMM: 100, AvgTemp: 20, Area: "Mars", Item: "Saffron"})
	assert.InDelta(t, 1000, unknown, 1e-9)

	floored := r.Predict(YieldFeatures{Year: 2000, RainfallMM: 100, AvgTemp: 60})
	assert.Zero(t, floored)
}

func TestParseYieldRegressor_MissingTerm(t *testing.T) {
	_, err := ParseYieldRegressor([]byte("intercept: 1\nitems: {Wheat: 1}\nnumeric:\n  year: {mean: 0, coef: 1}\n"))
	assert.Error(t, err)

	_, err = ParseYieldRegressor([]byte(`
numeric:
  year: {mean: 0, coef: 1}
  average_rain_fall_mm_per_year: {mean: 0, coef: 1}
  pesticides_tonnes: {mean: 0, coef: 1}
  avg_temp: {mean: 0, coef: 1}
`))
	assert.Error(t, err)
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 3.14, Round2(3.14159))
	assert.Equal(t, 2.68, Round2(2.675000001))
	assert.Equal(t, 0.0, Round2(0.004))
}
