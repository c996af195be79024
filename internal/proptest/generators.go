package proptest

import (
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
)

// APIName generates candidate registered-API names.
func APIName() gopter.Gen {
	return gen.Identifier()
}

// GroupName generates candidate command group names.
func GroupName() gopter.Gen {
	return gen.Identifier()
}
