package wireline

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Kind classifies one inbound line per spec §4.5.
type Kind int

const (
	// KindMalformed lines are logged and dropped; they never reach a
	// waiter or the command buffer.
	KindMalformed Kind = iota
	KindCommand
	KindResult
)

// Command is an inbound line destined for local execution (spec §3).
type Command struct {
	ID   uint64
	Name string
	Args *OrderedArgs
}

// Result is an inbound line correlating with a prior local outbound
// command (spec §3).
type Result struct {
	ID        uint64
	Completed bool
	ErrorCode uint64
	Payload   string
}

// Classify determines whether line is a command, a result, or malformed,
// per the positional grammar in spec §4.5:
//
//	<id> <NAME> ...       -- second token is a bare word starting with a letter
//	<id> <0|1> <n> ...     -- second token is exactly "0" or "1"
func Classify(line string) Kind {
	first, rest := splitToken(line)
	if first == "" {
		return KindMalformed
	}
	if _, err := strconv.ParseUint(first, 10, 64); err != nil {
		return KindMalformed
	}
	second, _ := splitToken(rest)
	if second == "" {
		return KindMalformed
	}
	if second == "0" || second == "1" {
		return KindResult
	}
	r := rune(second[0])
	if unicode.IsLetter(r) {
		return KindCommand
	}
	return KindMalformed
}

// ParseCommand parses a line already classified as KindCommand.
func ParseCommand(line string) (Command, error) {
	idTok, rest := splitToken(line)
	id, err := strconv.ParseUint(idTok, 10, 64)
	if err != nil {
		return Command{}, fmt.Errorf("wireline: malformed command id: %w", err)
	}
	name, rest := splitToken(rest)
	if name == "" {
		return Command{}, fmt.Errorf("wireline: missing command name")
	}
	args, err := ParseArgs(rest)
	if err != nil {
		return Command{}, fmt.Errorf("wireline: parsing args for %s: %w", name, err)
	}
	return Command{ID: id, Name: strings.ToUpper(name), Args: args}, nil
}

// ParseResult parses a line already classified as KindResult.
func ParseResult(line string) (Result, error) {
	idTok, rest := splitToken(line)
	id, err := strconv.ParseUint(idTok, 10, 64)
	if err != nil {
		return Result{}, fmt.Errorf("wireline: malformed result id: %w", err)
	}
	completedTok, rest := splitToken(rest)
	var completed bool
	switch completedTok {
	case "0":
		completed = false
	case "1":
		completed = true
	default:
		return Result{}, fmt.Errorf("wireline: malformed completed flag %q", completedTok)
	}
	codeTok, rest := splitToken(rest)
	code, err := strconv.ParseUint(codeTok, 10, 64)
	if err != nil {
		return Result{}, fmt.Errorf("wireline: malformed error code: %w", err)
	}
	payload := strings.TrimPrefix(rest, " ")
	return Result{ID: id, Completed: completed, ErrorCode: code, Payload: payload}, nil
}

// splitToken splits s at the first run of whitespace, returning the
// first token and the (left-trimmed) remainder.
func splitToken(s string) (tok, rest string) {
	s = strings.TrimLeft(s, " \t")
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimLeft(s[i:], " \t")
}

// ParseArgs tokenizes a key=value payload with quote-aware parsing:
// single- or double-quoted values may contain escaped quotes (\' \")
// and \\, per spec §4.3. Unknown keys are preserved in order.
func ParseArgs(s string) (*OrderedArgs, error) {
	out := NewOrderedArgs()
	i := 0
	n := len(s)
	for i < n {
		for i < n && (s[i] == ' ' || s[i] == '\t') {
			i++
		}
		if i >= n {
			break
		}
		start := i
		for i < n && s[i] != '=' && s[i] != ' ' && s[i] != '\t' {
			i++
		}
		key := s[start:i]
		if key == "" {
			return nil, fmt.Errorf("wireline: empty argument key at offset %d", start)
		}
		if i >= n || s[i] != '=' {
			// Bare key with no value: record as empty string so
			// unknown/valueless keys round-trip forward-compatibly.
			out.Set(key, "")
			continue
		}
		i++ // skip '='
		var value string
		var err error
		value, i, err = parseValue(s, i)
		if err != nil {
			return nil, fmt.Errorf("wireline: argument %s: %w", key, err)
		}
		out.Set(key, value)
	}
	return out, nil
}

// parseValue parses one argument value starting at i, handling quoted
// and bare forms, and returns the value plus the index just past it.
func parseValue(s string, i int) (string, int, error) {
	n := len(s)
	if i < n && (s[i] == '\'' || s[i] == '"') {
		quote := s[i]
		i++
		var b strings.Builder
		for i < n {
			c := s[i]
			if c == '\\' && i+1 < n && (s[i+1] == quote || s[i+1] == '\\') {
				b.WriteByte(s[i+1])
				i += 2
				continue
			}
			if c == quote {
				i++
				return b.String(), i, nil
			}
			b.WriteByte(c)
			i++
		}
		return "", i, fmt.Errorf("unterminated quoted value")
	}

	start := i
	for i < n && s[i] != ' ' && s[i] != '\t' {
		i++
	}
	return s[start:i], i, nil
}
