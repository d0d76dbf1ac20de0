package services

import "strings"

// Match ranks for username search. Lower ranks sort first.
const (
	rankExact    = 0
	rankPrefix   = 1
	rankContains = 2
)

// matchRank compares username against an already-uppercased query. It
// reports false when the username does not contain the query at all.
func matchRank(username, query string) (int, bool) {
	name := strings.ToUpper(username)
	switch {
	case name == query:
		return rankExact, true
	case strings.HasPrefix(name, query):
		return rankPrefix, true
	case strings.Contains(name, query):
		return rankContains, true
	default:
		return 0, false
	}
}
