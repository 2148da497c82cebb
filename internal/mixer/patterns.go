package mixer

import (
	"fmt"
	"strconv"
	"strings"
)

// wildcardSegment is the pattern token matching one decimal index.
const wildcardSegment = "#"

// Pattern is a precompiled address template made of literal segments and
// numeric wildcard segments, for example "/Input_Channels/#/Channel_Input/name".
type Pattern struct {
	expr     string
	segments []segment
}

type segment struct {
	literal  string
	wildcard bool
}

// MustCompilePattern compiles expr and panics if it is malformed.
// It is intended for package-level tables.
func MustCompilePattern(expr string) Pattern {
	p, err := CompilePattern(expr)
	if err != nil {
		panic(err)
	}
	return p
}

// CompilePattern parses expr. Each "#" segment matches one decimal index.
func CompilePattern(expr string) (Pattern, error) {
	if !strings.HasPrefix(expr, "/") {
		return Pattern{}, fmt.Errorf("%w: %q must start with /", ErrInvalidPattern, expr)
	}
	parts := strings.Split(expr[1:], "/")
	segs := make([]segment, len(parts))
	for i, part := range parts {
		if part == "" {
			return Pattern{}, fmt.Errorf("%w: %q has an empty segment", ErrInvalidPattern, expr)
		}
		if part == wildcardSegment {
			segs[i] = segment{wildcard: true}
			continue
		}
		segs[i] = segment{literal: part}
	}
	return Pattern{expr: expr, segments: segs}, nil
}

// String returns the source expression.
func (p Pattern) String() string {
	return p.expr
}

// Match reports whether address fits the pattern and returns the wildcard
// indices in order.
func (p Pattern) Match(address string) ([]int, bool) {
	if !strings.HasPrefix(address, "/") {
		return nil, false
	}
	rest := address[1:]
	var indices []int
	for i, seg := range p.segments {
		var part string
		if i == len(p.segments)-1 {
			part = rest
			if strings.Contains(part, "/") {
				return nil, false
			}
		} else {
			slash := strings.IndexByte(rest, '/')
			if slash < 0 {
				return nil, false
			}
			part, rest = rest[:slash], rest[slash+1:]
		}

		if !seg.wildcard {
			if part != seg.literal {
				return nil, false
			}
			continue
		}
		if !isDigits(part) {
			return nil, false
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, false
		}
		indices = append(indices, n)
	}
	return indices, true
}

// Matches reports whether address fits the pattern.
func (p Pattern) Matches(address string) bool {
	_, ok := p.Match(address)
	return ok
}

// Format fills the wildcards with indices, in order.
func (p Pattern) Format(indices ...int) string {
	var b strings.Builder
	next := 0
	for _, seg := range p.segments {
		b.WriteByte('/')
		if !seg.wildcard {
			b.WriteString(seg.literal)
			continue
		}
		if next < len(indices) {
			b.WriteString(strconv.Itoa(indices[next]))
		}
		next++
	}
	return b.String()
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Cached desk addresses.
var (
	ChannelCountPattern = MustCompilePattern("/Console/Input_Channels")
	AuxNamePattern      = MustCompilePattern("/Aux_Outputs/#/Buss_Trim/name")
	AuxModesPattern     = MustCompilePattern("/Console/Aux_Outputs/modes")
	ChannelNamePattern  = MustCompilePattern("/Input_Channels/#/Channel_Input/name")
	SendLevelPattern    = MustCompilePattern("/Input_Channels/#/Aux_Send/#/send_level")
	SendPanPattern      = MustCompilePattern("/Input_Channels/#/Aux_Send/#/send_pan")

	renameSnapshotPattern = MustCompilePattern("/Snapshots/Rename_Snapshot/#")
)

// whitelist is the fixed set of addresses the cache will hold.
var whitelist = []Pattern{
	ChannelCountPattern,
	AuxNamePattern,
	AuxModesPattern,
	ChannelNamePattern,
	SendLevelPattern,
	SendPanPattern,
}

// Cacheable reports whether address matches one of the cached patterns.
func Cacheable(address string) bool {
	for _, p := range whitelist {
		if p.Matches(address) {
			return true
		}
	}
	return false
}
