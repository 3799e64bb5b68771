package utils

// NullableString maps "" to a NULL binding and any other value to a pointer to it.
func NullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
