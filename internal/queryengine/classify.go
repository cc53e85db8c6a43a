package queryengine

import "strings"

// Classify tokenizes normalized (already whitespace-trimmed) SQL by
// whitespace and newline on a lowercased copy, scans tokens, and returns
// the first matching kind: explain, insert/update/delete (ModifyData),
// create/alter/drop/truncate/comment (ModifyStructure), otherwise Select.
// Classification depends only on token identity, not position, and is
// idempotent: classifying the same normalized text twice always agrees.
func Classify(normalized string) Kind {
	lowered := strings.ToLower(normalized)
	tokens := strings.FieldsFunc(lowered, func(r rune) bool {
		return r == ' ' || r == '\n' || r == '\t' || r == '\r'
	})

	for _, tok := range tokens {
		switch tok {
		case "explain":
			return KindExplain
		case "insert", "update", "delete":
			return KindModifyData
		case "create", "alter", "drop", "truncate", "comment":
			return KindModifyStructure
		}
	}

	return KindSelect
}
