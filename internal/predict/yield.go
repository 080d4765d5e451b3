// ABOUTME: Yield regressor predicting hectogram-per-hectare output for a crop and region
// ABOUTME: Linear model over centred numeric features plus categorical offsets

package predict

import (
	"errors"
	"fmt"
	"math"

	"gopkg.in/yaml.v3"
)

// YieldUnit is the unit of every yield prediction.
const YieldUnit = "hg/ha"

// YieldFeatures are the regressor inputs.
type YieldFeatures struct {
	Year       int
	RainfallMM float64
	Pesticides float64
	AvgTemp    float64
	Area       string
	Item       string
}

type numericTerm struct {
	Mean float64 `yaml:"mean"`
	Coef float64 `yaml:"coef"`
}

type yieldModelFile struct {
	Intercept float64                `yaml:"intercept"`
	Numeric   map[string]numericTerm `yaml:"numeric"`
	Areas     map[string]float64     `yaml:"areas"`
	Items     map[string]float64     `yaml:"items"`
}

// YieldRegressor predicts crop yield.
type YieldRegressor struct {
	intercept float64
	year      numericTerm
	rainfall  numericTerm
	pest      numericTerm
	temp      numericTerm
	areas     map[string]float64
	items     map[string]float64
}

// LoadYieldRegressor reads a regressor from path, or the bundled model when
// path is empty.
func LoadYieldRegressor(path string) (*YieldRegressor, error) {
	data, err := readModel(path, defaultYieldModel)
	if err != nil {
		return nil, fmt.Errorf("reading yield model: %w", err)
	}
	return ParseYieldRegressor(data)
}

// ParseYieldRegressor builds a regressor from YAML model data.
func ParseYieldRegressor(data []byte) (*YieldRegressor, error) {
	var file yieldModelFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing yield model: %w", err)
	}

	r := &YieldRegressor{
		intercept: file.Intercept,
		areas:     file.Areas,
		items:     file.Items,
	}
	terms := map[string]*numericTerm{
		"year":                          &r.year,
		"average_rain_fall_mm_per_year": &r.rainfall,
		"pesticides_tonnes":             &r.pest,
		"avg_temp":                      &r.temp,
	}
	for name, dst := range terms {
		term, ok := file.Numeric[name]
		if !ok {
			return nil, fmt.Errorf("yield model missing numeric term %q", name)
		}
		*dst = term
	}
	if len(r.items) == 0 {
		return nil, errors.New("yield model has no items")
	}
	return r, nil
}

// Predict returns the yield in YieldUnit rounded to two decimals.
func (r *YieldRegressor) Predict(f YieldFeatures) float64 {
	y := r.intercept
	y += r.year.Coef * (float64(f.Year) - r.year.Mean)
	y += r.rainfall.Coef * (f.RainfallMM - r.rainfall.Mean)
	y += r.pest.Coef * (f.Pesticides - r.pest.Mean)
	y += r.temp.Coef * (f.AvgTemp - r.temp.Mean)
	y += r.areas[f.Area]
	y += r.items[f.Item]
	return Round2(math.Max(y, 0))
}

// KnownItem reports whether the model has a coefficient for item.
func (r *YieldRegressor) KnownItem(item string) bool {
	_, ok := r.items[item]
	return ok
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
