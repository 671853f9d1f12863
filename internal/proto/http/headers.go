package http

// headerPolicy records whether an allow-listed header's value is retained
// for fingerprinting or only its presence (name order) matters.
type headerPolicy struct {
	IncludeValue bool
}

// headerAllowList is the fixed header set decided in the Open Question
// writeup: a static map stands in for a generated perfect hash, which Go's
// map[string] already gets close enough to in practice for a set this
// small. Only these headers contribute to an HTTP fingerprint; everything
// else is dropped as it is read.
var headerAllowList = map[string]headerPolicy{
	"host":             {IncludeValue: true},
	"user-agent":       {IncludeValue: true},
	"accept":           {},
	"accept-language":  {},
	"accept-encoding":  {},
	"connection":       {},
	"content-type":     {},
	"content-length":   {},
	"server":           {IncludeValue: true},
	"content-encoding": {},
	"via":              {IncludeValue: true},
	"x-forwarded-for":  {},
}
