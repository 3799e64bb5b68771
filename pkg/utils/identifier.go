package utils

import "strings"

// BacktickIdentifier adds backticks around an identifier, handling qualified names.
// Each part of a database.table style identifier is quoted separately, and parts
// that are already quoted are left alone.
//
// Examples:
//   - "revision_state" -> "`revision_state`"
//   - "hermes.revision_state" -> "`hermes`.`revision_state`"
//   - "`hermes`" -> "`hermes`"
//   - "" -> ""
func BacktickIdentifier(name string) string {
	if name == "" {
		return ""
	}

	if IsBackticked(name) {
		return name
	}

	parts := strings.Split(name, ".")
	for i, part := range parts {
		if IsBackticked(part) {
			continue
		}
		parts[i] = "`" + strings.ReplaceAll(part, "`", "``") + "`"
	}
	return strings.Join(parts, ".")
}

// QualifiedName joins a database and object name into a quoted `db`.`name` pair.
func QualifiedName(database, name string) string {
	if database == "" {
		return BacktickIdentifier(name)
	}
	return BacktickIdentifier(database) + "." + BacktickIdentifier(name)
}

// IsBackticked checks if a string is a single identifier wrapped in backticks.
func IsBackticked(s string) bool {
	return len(s) >= 2 && s[0] == '`' && s[len(s)-1] == '`' && !strings.Contains(s[1:len(s)-1], "`")
}
