package query

import (
	"regexp"
	"strings"

	"github.com/reyadatime/reyadatime/internal/errs"
)

var (
	bareIdentPattern   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	quotedIdentPattern = regexp.MustCompile(`^"[^"]+"$`)
)

func validIdentPart(part string) bool {
	return bareIdentPattern.MatchString(part) || quotedIdentPattern.MatchString(part)
}

// validateQualified accepts name or prefix.name, each part bare or double-quoted.
func validateQualified(what, name string) error {
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return errs.Newf(errs.KindValidation, "invalid %s %q", what, name)
	}
	for _, part := range parts {
		if !validIdentPart(part) {
			return errs.Newf(errs.KindValidation, "invalid %s %q", what, name)
		}
	}
	return nil
}

func validateKey(key string) error {
	if !bareIdentPattern.MatchString(key) {
		return errs.Newf(errs.KindValidation, "invalid column %q", key)
	}
	return nil
}

// validateSelectField accepts *, prefix.*, or a column as validateQualified does.
func validateSelectField(field string) error {
	if field == "*" {
		return nil
	}
	if prefix, ok := strings.CutSuffix(field, ".*"); ok {
		if !validIdentPart(prefix) {
			return errs.Newf(errs.KindValidation, "invalid select column %q", field)
		}
		return nil
	}
	return validateQualified("select column", field)
}
