package sqldump

import "regexp"

var definerPattern = regexp.MustCompile("(?i)DEFINER=`[^`]*`@`[^`]*`\\s*")

// StripDefiners removes every DEFINER clause. Views are rendered with it.
func StripDefiners(stmt string) string {
	return definerPattern.ReplaceAllString(stmt, "")
}

// StripFirstDefiner removes only the first DEFINER clause. Triggers and
// routines are rendered with it, so a DEFINER inside their body survives.
func StripFirstDefiner(stmt string) string {
	loc := definerPattern.FindStringIndex(stmt)
	if loc == nil {
		return stmt
	}
	return stmt[:loc[0]] + stmt[loc[1]:]
}
