package predicate

import (
	"fmt"
	"regexp"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultPatternCacheSize = 128

// patternCache holds compiled, fully anchored patterns keyed by source text.
var patternCache = mustPatternCache(defaultPatternCacheSize)

func mustPatternCache(size int) *lru.Cache[string, *regexp.Regexp] {
	c, err := lru.New[string, *regexp.Regexp](size)
	if err != nil {
		panic(fmt.Sprintf("predicate: pattern cache: %v", err))
	}
	return c
}

// compilePattern compiles pattern so that it must match the whole value.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	if re, ok := patternCache.Get(pattern); ok {
		return re, nil
	}
	re, err := regexp.Compile(`^(?:` + pattern + `)$`)
	if err != nil {
		return nil, fmt.Errorf("pattern %q: %w", pattern, err)
	}
	patternCache.Add(pattern, re)
	return re, nil
}

// ValidatePattern reports whether pattern compiles. Used by the compiler to
// reject bad patterns at build time instead of at traversal.
func ValidatePattern(pattern string) error {
	_, err := compilePattern(pattern)
	return err
}
