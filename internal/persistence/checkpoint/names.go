package checkpoint

import (
	"regexp"
	"strings"
)

var validConsumer = regexp.MustCompile(`^[A-Za-z0-9\-\_]+$`).MatchString

// ValidateConsumer checks that a consumer name is usable as a store key.
func ValidateConsumer(name string) error {
	if len(strings.TrimSpace(name)) == 0 {
		return ErrConsumerEmpty
	}
	if !validConsumer(name) {
		return ErrConsumerInvalid
	}
	return nil
}

// ConsumerPattern selects consumer names with a glob where * matches any run
// of name characters.
type ConsumerPattern struct {
	original string
	regexp   *regexp.Regexp
	valid    bool
}

func Pattern(s string) ConsumerPattern {
	parts := strings.Split(s, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	reg, err := regexp.Compile(`^` + strings.Join(parts, `[A-Za-z0-9\-\_]*`) + `$`)
	return ConsumerPattern{
		original: s,
		regexp:   reg,
		valid:    err == nil && s != "",
	}
}

func (p ConsumerPattern) Match(name string) bool {
	if !p.valid {
		return false
	}
	return p.regexp.MatchString(name)
}

func (p ConsumerPattern) Valid() bool {
	return p.valid
}

func (p ConsumerPattern) String() string {
	return p.original
}
