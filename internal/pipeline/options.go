// Package pipeline runs the clustering stages end to end for one input table.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/thebtf/procluster/pkg/hierarchy"
	"github.com/thebtf/procluster/pkg/models"
)

// Options is the run-scoped parameter object. Nothing in the pipeline reads
// process-wide state, so identical Options and records give identical results.
type Options struct {
	Linkage   hierarchy.Linkage  `json:"linkage" validate:"omitempty,oneof=single complete average weighted"`
	Delimiter string             `json:"delimiter" validate:"omitempty,max=8"`
	Selector  hierarchy.Selector `json:"selector"`
	Workers   int                `json:"workers" validate:"gte=0,lte=1024"`
}

// DefaultOptions returns average linkage and the default delimiter with no selector.
func DefaultOptions() Options {
	return Options{
		Linkage:   hierarchy.DefaultLinkage,
		Delimiter: models.DefaultDelimiter,
	}
}

var validate = validator.New()

// withDefaults fills empty fields.
func (o Options) withDefaults() Options {
	if o.Linkage == "" {
		o.Linkage = hierarchy.DefaultLinkage
	}
	if o.Delimiter == "" {
		o.Delimiter = models.DefaultDelimiter
	}
	return o
}

// Validate checks field constraints and the selector for n procedures.
func (o Options) Validate(n int) error {
	if err := validate.Struct(o); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: option %s failed %q (value %v)", models.ErrConfiguration, fe.Field(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("%w: %v", models.ErrConfiguration, err)
	}
	if o.Selector.Threshold == nil && o.Selector.ClusterCount == nil ||
		o.Selector.Threshold != nil && o.Selector.ClusterCount != nil {
		// Report selector mistakes before looking at the input size.
		return o.Selector.Validate(n)
	}
	if n < 2 {
		return nil
	}
	return o.Selector.Validate(n)
}
