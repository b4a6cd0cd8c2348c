package score

import (
	"fmt"

	pkgerrors "github.com/phrasekit/phrasekit/pkg/errors"
)

// Template selects the dense feature set emitted per rule.
//
//	[0] phi(f|e)   [1] lex(f|e)   [2] phi(e|f)   [3] lex(e|f)
//	[4] log(count) [5] 1 if count == 1    (DenseExt only)
type Template int

const (
	Dense Template = iota
	DenseExt
)

const featurePrefix = "TM"

// ParseTemplate maps a config string to a Template.
func ParseTemplate(s string) (Template, error) {
	switch s {
	case "dense":
		return Dense, nil
	case "dense-ext":
		return DenseExt, nil
	default:
		return 0, pkgerrors.Newf(pkgerrors.ErrUnknownTemplate, "%q", s)
	}
}

func (t Template) String() string {
	switch t {
	case Dense:
		return "dense"
	case DenseExt:
		return "dense-ext"
	default:
		return fmt.Sprintf("Template(%d)", int(t))
	}
}

// NumFeatures returns the feature vector length for this template.
func (t Template) NumFeatures() int {
	if t == DenseExt {
		return 6
	}
	return 4
}

// FeatureNames returns the dense feature names for this template.
func (t Template) FeatureNames() []string {
	names := make([]string, t.NumFeatures())
	for i := range names {
		names[i] = fmt.Sprintf("%s.%d", featurePrefix, i)
	}
	return names
}

// Valid reports whether t is a known template.
func (t Template) Valid() bool {
	return t == Dense || t == DenseExt
}
