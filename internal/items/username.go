package items

import "strings"

// ExtractDisplayName pulls the human-readable name out of a composite
// account name. Badge systems emit either "badge+Name" or "badge_Name";
// with no separator the whole string is the name.
func ExtractDisplayName(userName string) string {
	if userName == "" {
		return ""
	}
	if strings.Contains(userName, "+") {
		parts := strings.SplitN(userName, "+", 2)
		if parts[1] != "" {
			return parts[1]
		}
		return parts[0]
	}
	if idx := strings.Index(userName, "_"); idx != -1 {
		return userName[idx+1:]
	}
	return userName
}
