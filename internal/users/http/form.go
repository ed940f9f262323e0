package http

import "strconv"

// parseGrant interprets a form value as a boolean grant. Only values
// strconv.ParseBool recognizes are accepted; anything else is malformed
// input, so a mistyped value can never silently widen or drop a permission.
func parseGrant(value string) (bool, error) {
	return strconv.ParseBool(value)
}
