package matching

import (
	"fmt"
	"math"
)

// Weights is the linear scoring model. It is configuration, not code:
// alternate weights are loaded from the config file or built in tests.
type Weights struct {
	Skill            float64 `json:"skill" mapstructure:"skill"`
	Title            float64 `json:"title" mapstructure:"title"`
	Experience       float64 `json:"experience" mapstructure:"experience"`
	LocationOrRemote float64 `json:"location_or_remote" mapstructure:"location-or-remote"`
	Salary           float64 `json:"salary" mapstructure:"salary"`
}

// DefaultWeights is the stock model.
var DefaultWeights = Weights{
	Skill:            0.35,
	Title:            0.25,
	Experience:       0.15,
	LocationOrRemote: 0.15,
	Salary:           0.10,
}

const weightTolerance = 1e-6

// Validate requires non-negative weights summing to 1.
func (w Weights) Validate() error {
	sum := 0.0
	for name, v := range w.named() {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("weight %s must be non-negative, got %v", name, v)
		}
		sum += v
	}
	if math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("weights must sum to 1, got %.6f", sum)
	}
	return nil
}

// Combine is the weighted sum of the clamped category scores.
func (w Weights) Combine(c Categories) float64 {
	return w.Skill*clamp(c.Skill) +
		w.Title*clamp(c.Title) +
		w.Experience*clamp(c.Experience) +
		w.LocationOrRemote*clamp(c.LocationOrRemote) +
		w.Salary*clamp(c.Salary)
}

func (w Weights) named() map[string]float64 {
	return map[string]float64{
		"skill":              w.Skill,
		"title":              w.Title,
		"experience":         w.Experience,
		"location-or-remote": w.LocationOrRemote,
		"salary":             w.Salary,
	}
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
