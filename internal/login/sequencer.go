package login

import (
	"slices"

	"github.com/picoauth/picoauth/internal/factor"
)

// NextStage returns the first enabled method, in precedence order, that is
// not yet completed. The boolean is false once every enabled method is done.
func NextStage(enabled factor.MethodSet, completed []factor.Method) (factor.Method, bool) {
	for _, m := range factor.Precedence {
		if enabled.Has(m) && !slices.Contains(completed, m) {
			return m, true
		}
	}
	return "", false
}
