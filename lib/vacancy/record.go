package vacancy

import "strings"

// Record is one course index as reported by the upstream vacancy page.
// Records are ephemeral; the checking engine produces them per cycle and only
// retains what it copies into history.
type Record struct {
	IndexNumber string
	Vacancies   int
	Waitlist    int
	Classes     []ClassSession
}

// ClassSession is one scheduled meeting of an index. All fields are opaque
// strings and may be empty.
type ClassSession struct {
	Type   string
	Group  string
	Day    string
	Time   string
	Venue  string
	Remark string
}

// NormalizeCourseCode folds a course code into the form the upstream source
// uses. Course codes are case-insensitive upstream.
func NormalizeCourseCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NormalizeIndexNumber trims an index number for exact-match comparison.
func NormalizeIndexNumber(index string) string {
	return strings.TrimSpace(index)
}
