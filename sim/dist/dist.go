// Package dist parses distribution strings such as "uniform(2, 5)" or "exp(4)"
// into random-variate samplers.
//
// Grammar: name(arg[, arg]) where name is one of
//   - uniform(a, b): uniform on [a, b]
//   - normal(mean, std) / gauss(mean, std): normal, clamped to >= 0
//   - exp(mean): exponential with the given mean (not rate)
package dist

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
)

// Distribution draws non-negative durations.
type Distribution interface {
	// Sample returns one draw using rng.
	Sample(rng *rand.Rand) float64
	// Mean returns the expected value of the (unclamped) distribution.
	Mean() float64
	// String returns the canonical spec string.
	String() string
}

// ParseError reports a malformed distribution spec.
type ParseError struct {
	Spec     string // full spec as given
	Fragment string // offending part of the spec
	Name     string // distribution name, if it could be read
	Expected int    // expected argument count, 0 if unknown
	Got      int
	Reason   string // violated constraint on well-formed arguments
}

func (e *ParseError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("distribution %q: %s%s: %s", e.Spec, e.Name, argNames[e.Name], e.Reason)
	}
	if e.Expected > 0 {
		return fmt.Sprintf("distribution %q: %s requires %d argument(s) %s, got %d",
			e.Spec, e.Name, e.Expected, argNames[e.Name], e.Got)
	}
	return fmt.Sprintf("distribution %q: invalid fragment %q; expected uniform(a,b), normal(mean,std), gauss(mean,std) or exp(mean)",
		e.Spec, e.Fragment)
}

var argCounts = map[string]int{
	"uniform": 2,
	"normal":  2,
	"gauss":   2,
	"exp":     1,
}

var argNames = map[string]string{
	"uniform": "(min, max)",
	"normal":  "(mean, std)",
	"gauss":   "(mean, std)",
	"exp":     "(mean)",
}

// Uniform draws from [Min, Max].
type Uniform struct {
	Min, Max float64
}

func (d Uniform) Sample(rng *rand.Rand) float64 {
	if d.Min == d.Max {
		return d.Min
	}
	return d.Min + (d.Max-d.Min)*rng.Float64()
}

func (d Uniform) Mean() float64  { return (d.Min + d.Max) / 2 }
func (d Uniform) String() string { return fmt.Sprintf("uniform(%g, %g)", d.Min, d.Max) }

// Normal draws from N(Mu, Sigma) clamped to zero.
type Normal struct {
	Mu, Sigma float64
}

func (d Normal) Sample(rng *rand.Rand) float64 {
	return math.Max(0, rng.NormFloat64()*d.Sigma+d.Mu)
}

func (d Normal) Mean() float64  { return d.Mu }
func (d Normal) String() string { return fmt.Sprintf("normal(%g, %g)", d.Mu, d.Sigma) }

// Exponential draws with mean MeanValue.
type Exponential struct {
	MeanValue float64
}

func (d Exponential) Sample(rng *rand.Rand) float64 {
	return rng.ExpFloat64() * d.MeanValue
}

func (d Exponential) Mean() float64  { return d.MeanValue }
func (d Exponential) String() string { return fmt.Sprintf("exp(%g)", d.MeanValue) }

// Parse turns a spec string into a Distribution.
func Parse(spec string) (Distribution, error) {
	s := strings.TrimSpace(spec)
	open := strings.IndexByte(s, '(')
	if open <= 0 || !strings.HasSuffix(s, ")") {
		return nil, &ParseError{Spec: spec, Fragment: s}
	}
	name := strings.ToLower(strings.TrimSpace(s[:open]))
	want, ok := argCounts[name]
	if !ok {
		return nil, &ParseError{Spec: spec, Fragment: s[:open]}
	}

	body := s[open+1 : len(s)-1]
	var args []float64
	if strings.TrimSpace(body) != "" {
		for _, raw := range strings.Split(body, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, &ParseError{Spec: spec, Fragment: strings.TrimSpace(raw), Name: name}
			}
			args = append(args, v)
		}
	}
	if len(args) != want {
		return nil, &ParseError{Spec: spec, Fragment: s, Name: name, Expected: want, Got: len(args)}
	}

	switch name {
	case "uniform":
		switch {
		case args[0] < 0:
			return nil, &ParseError{Spec: spec, Fragment: strings.TrimSpace(body), Name: name,
				Reason: fmt.Sprintf("min %g is negative", args[0])}
		case args[1] < args[0]:
			return nil, &ParseError{Spec: spec, Fragment: strings.TrimSpace(body), Name: name,
				Reason: fmt.Sprintf("min %g is greater than max %g", args[0], args[1])}
		}
		return Uniform{Min: args[0], Max: args[1]}, nil
	case "normal", "gauss":
		if args[1] < 0 {
			return nil, &ParseError{Spec: spec, Fragment: strconv.FormatFloat(args[1], 'g', -1, 64), Name: name,
				Reason: fmt.Sprintf("std %g is negative", args[1])}
		}
		return Normal{Mu: args[0], Sigma: args[1]}, nil
	default: // exp
		if args[0] < 0 {
			return nil, &ParseError{Spec: spec, Fragment: strconv.FormatFloat(args[0], 'g', -1, 64), Name: name,
				Reason: fmt.Sprintf("mean %g is negative", args[0])}
		}
		return Exponential{MeanValue: args[0]}, nil
	}
}

// MustParse is Parse for specs known to be valid, such as package defaults.
func MustParse(spec string) Distribution {
	d, err := Parse(spec)
	if err != nil {
		panic(err)
	}
	return d
}

// Generator returns a zero-argument variate function backed by its own seeded stream.
func Generator(spec string, seed int64) (func() float64, error) {
	d, err := Parse(spec)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(seed))
	return func() float64 { return d.Sample(rng) }, nil
}

// AlwaysZero reports whether every draw of d is exactly zero.
func AlwaysZero(d Distribution) bool {
	switch v := d.(type) {
	case Uniform:
		return v.Max == 0
	case Normal:
		return v.Mu <= 0 && v.Sigma == 0
	case Exponential:
		return v.MeanValue == 0
	}
	return false
}
