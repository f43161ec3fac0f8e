package route

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultVisitLimit bounds every search unless Options say otherwise.
const DefaultVisitLimit = 10000

// DefaultLongLinePatterns match the long lines of the families the route
// files were first produced for. Other families may need their own.
var DefaultLongLinePatterns = []string{`^L[HV]\d+$`, `^LONG`}

// Options configures a Reconstructor.
type Options struct {
	// VisitLimit is the number of distinct wires one search may visit.
	VisitLimit int
	// LongLine reports whether a wire name denotes a long line. Same-tile
	// non-PIP hops out of a long line are never taken.
	LongLine func(name string) bool
	// ClockRules infer the direction of clock-spine hops.
	ClockRules []ClockRule
	Logger     logrus.FieldLogger
}

func (o *Options) setDefaults() {
	if o.VisitLimit <= 0 {
		o.VisitLimit = DefaultVisitLimit
	}
	if o.LongLine == nil {
		o.LongLine, _ = LongLineMatcher(DefaultLongLinePatterns)
	}
	if o.ClockRules == nil {
		o.ClockRules = DefaultClockRules()
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
}

// LongLineMatcher builds a long-line predicate from regular expressions.
func LongLineMatcher(patterns []string) (func(string) bool, error) {
	res := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, errors.Wrapf(err, "long-line pattern %q", p)
		}
		res = append(res, re)
	}
	return func(name string) bool {
		for _, re := range res {
			if re.MatchString(name) {
				return true
			}
		}
		return false
	}, nil
}

// ClockRule maps wire names matching Pattern to a spine direction.
type ClockRule struct {
	Pattern    *regexp.Regexp
	RowStep    int32
	ColumnStep int32
}

// DefaultClockRuleSpecs: horizontal spines end in _L or _R, vertical spines
// in _TOP/_UP or _BOT/_DN, optionally followed by an index.
var DefaultClockRuleSpecs = []string{
	`_L\d*$=left`,
	`_R\d*$=right`,
	`_(TOP|UP)\d*$=above`,
	`_(BOT|DN)\d*$=below`,
}

// DefaultClockRules parses DefaultClockRuleSpecs.
func DefaultClockRules() []ClockRule {
	rules, err := ParseClockRules(DefaultClockRuleSpecs)
	if err != nil {
		panic(err)
	}
	return rules
}

// ParseClockRules parses rules of the form "REGEXP=DIRECTION" where
// DIRECTION is left, right, above or below.
func ParseClockRules(specs []string) ([]ClockRule, error) {
	rules := make([]ClockRule, 0, len(specs))
	for _, spec := range specs {
		i := strings.LastIndex(spec, "=")
		if i <= 0 {
			return nil, errors.Errorf("clock rule %q: expected REGEXP=DIRECTION", spec)
		}
		re, err := regexp.Compile(spec[:i])
		if err != nil {
			return nil, errors.Wrapf(err, "clock rule %q", spec)
		}
		rule := ClockRule{Pattern: re}
		switch strings.ToLower(spec[i+1:]) {
		case "left":
			rule.ColumnStep = -1
		case "right":
			rule.ColumnStep = 1
		case "above", "up":
			rule.RowStep = -1
		case "below", "down":
			rule.RowStep = 1
		default:
			return nil, errors.Errorf("clock rule %q: unknown direction %q", spec, spec[i+1:])
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
