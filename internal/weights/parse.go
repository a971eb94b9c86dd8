package weights

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Spec is the YAML description of a weight function, as accepted by
// the CLI's --weights flag:
//
//	kind: step
//	thresholds: {10: 1.0, 20: 0.68, 30: 0.22}
//
//	kind: gaussian
//	sigma: 20
//
//	kind: gravity
//	scale: 60
//	alpha: -1
//	min_dist: 1
type Spec struct {
	Kind       string              `yaml:"kind"`
	Thresholds map[float64]float64 `yaml:"thresholds"`
	Sigma      float64             `yaml:"sigma"`
	Scale      float64             `yaml:"scale"`
	Alpha      float64             `yaml:"alpha"`
	MinDist    float64             `yaml:"min_dist"`
}

// Build constructs the weight function the spec describes.
func (s Spec) Build() (Fn, error) {
	switch s.Kind {
	case "step":
		return Step(s.Thresholds)
	case "gaussian":
		return Gaussian(s.Sigma)
	case "gravity":
		return Gravity(s.Scale, s.Alpha, s.MinDist)
	default:
		return nil, eris.Errorf("weights: unknown kind %q", s.Kind)
	}
}

// LoadSpec reads a weight spec from a YAML file and builds it.
func LoadSpec(path string) (Fn, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "weights: read spec %s", path)
	}
	var s Spec
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, eris.Wrapf(err, "weights: parse spec %s", path)
	}
	return s.Build()
}
