package scanner

// columns collects the names of the columns whose values were changed, so
// that rows are only written when something differs.
type columns []string

// setString assigns value to dst and records col if it changed.
func (c *columns) setString(dst *string, value, col string) {
	if *dst == value {
		return
	}
	*dst = value
	*c = append(*c, col)
}

// setOptional is setString for nullable columns.
func (c *columns) setOptional(dst **string, value *string, col string) {
	if equalOptional(*dst, value) {
		return
	}
	if value == nil {
		*dst = nil
	} else {
		v := *value
		*dst = &v
	}
	*c = append(*c, col)
}

func equalOptional(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
