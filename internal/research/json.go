package research

// extractFirstJSON returns the first balanced {...} object in s, or s
// unchanged when none is found. Models occasionally wrap JSON in prose
// or code fences; this keeps parsing lenient.
func extractFirstJSON(s string) string {
	return extractBalanced(s, '{', '}')
}

// extractFirstJSONArray returns the first balanced [...] array in s, or
// s unchanged when none is found.
func extractFirstJSONArray(s string) string {
	return extractBalanced(s, '[', ']')
}

func extractBalanced(s string, open, close rune) string {
	start := -1
	depth := 0
	for i, ch := range s {
		if ch == open {
			if depth == 0 {
				start = i
			}
			depth++
		} else if ch == close {
			if depth > 0 {
				depth--
			}
			if depth == 0 && start != -1 {
				return s[start : i+1]
			}
		}
	}
	return s
}
