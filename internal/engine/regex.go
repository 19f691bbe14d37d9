package engine

import (
	"fmt"
	"regexp"
	"sync"
)

// MaxPatternLength caps user-supplied patterns before compilation. Rule
// patterns and condition "matches" values share this limit.
const MaxPatternLength = 500

// compiledPattern caches the outcome of one compilation, success or failure,
// so a bad pattern is not re-attempted on every event.
type compiledPattern struct {
	re  *regexp.Regexp
	err error
}

// patternCache maps pattern text to its compiled form. Rule sets are
// long-lived and small, so the cache is never evicted.
var patternCache sync.Map // map[string]*compiledPattern

// compilePattern compiles a user-supplied pattern under the linear-time
// engine, enforcing the length cap. Results are cached per pattern text.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	if v, ok := patternCache.Load(pattern); ok {
		cp := v.(*compiledPattern)
		return cp.re, cp.err
	}

	var cp compiledPattern
	if len(pattern) > MaxPatternLength {
		cp.err = fmt.Errorf("pattern exceeds %d characters", MaxPatternLength)
	} else {
		cp.re, cp.err = regexp.Compile(pattern)
	}

	// Two goroutines may race to compile the same pattern; the result is
	// identical either way, so LoadOrStore keeps whichever landed first.
	actual, _ := patternCache.LoadOrStore(pattern, &cp)
	stored := actual.(*compiledPattern)
	return stored.re, stored.err
}

// MatchSafe matches input against a user-supplied pattern under the same
// length cap and linear-time engine as pattern rules.
func MatchSafe(pattern, input string) (bool, error) {
	re, err := compilePattern(pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(input), nil
}

// CheckPattern reports whether a pattern would be accepted at evaluation
// time. Used by the config validator so a bad pattern blocks save instead
// of silently degrading later.
func CheckPattern(pattern string) error {
	_, err := compilePattern(pattern)
	return err
}
