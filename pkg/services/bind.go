package services

import (
	"regexp"

	"github.com/TFMV/turnstile/pkg/errors"
	"github.com/TFMV/turnstile/pkg/models"
)

// Named placeholders use the :name form. The MySQL wire protocol only binds
// positionally, so named statements are rewritten to ? placeholders with
// arguments ordered by each placeholder's appearance. The same name may
// appear more than once and binds the same value at every occurrence.
var namedPlaceholderPattern = regexp.MustCompile(`:([A-Za-z_]\w*)`)

// bindParameters resolves the request's binding mode and returns the SQL to
// execute together with its positional argument list. Positional and named
// parameters are mutually exclusive per request; an empty request binds
// nothing.
func bindParameters(req *models.QueryRequest) (string, []interface{}, error) {
	if req.HasPositional() && req.HasNamed() {
		return "", nil, errors.New(errors.CodeInvalidArgument,
			"positional and named parameters are mutually exclusive")
	}

	if req.HasNamed() {
		return expandNamedParameters(req.SQL, req.Named)
	}

	return req.SQL, req.Positional, nil
}

// expandNamedParameters rewrites :name placeholders into ? placeholders and
// builds the argument list in order of appearance. Every placeholder must
// have a value; unused values are tolerated.
func expandNamedParameters(sql string, named map[string]interface{}) (string, []interface{}, error) {
	var args []interface{}
	var missing string

	rewritten := namedPlaceholderPattern.ReplaceAllStringFunc(sql, func(match string) string {
		name := match[1:]
		value, ok := named[name]
		if !ok {
			if missing == "" {
				missing = name
			}
			return match
		}
		args = append(args, value)
		return "?"
	})

	if missing != "" {
		return "", nil, errors.Newf(errors.CodeInvalidArgument,
			"no value supplied for named parameter %q", missing)
	}
	if len(args) == 0 {
		return "", nil, errors.New(errors.CodeInvalidArgument,
			"named parameters supplied but statement has no :name placeholders")
	}

	return rewritten, args, nil
}
