package warehouse

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var ErrEmptyQuery = errors.New("query is empty")

// ValidateReadOnly checks that sql is a single read statement, beginning with SELECT or WITH after
// any leading comments. Returns the statement with surrounding whitespace and trailing semicolons
// removed.
func ValidateReadOnly(sql string) (string, error) {
	statement := TrimStatement(sql)
	if statement == "" {
		return "", ErrEmptyQuery
	}

	keyword := firstKeyword(statement)
	if !strings.EqualFold(keyword, "SELECT") && !strings.EqualFold(keyword, "WITH") {
		return "", fmt.Errorf("only SELECT queries are allowed, got '%s'", keyword)
	}

	if hasStatementSeparator(statement) {
		return "", errors.New("query must be a single statement")
	}

	return statement, nil
}

// TrimStatement removes surrounding whitespace and trailing semicolons.
func TrimStatement(sql string) string {
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(sql), "; \t\n"))
}

func firstKeyword(statement string) string {
	rest := skipComments(statement)
	end := strings.IndexFunc(rest, func(char rune) bool {
		return !(char >= 'a' && char <= 'z' || char >= 'A' && char <= 'Z')
	})
	if end == -1 {
		return rest
	}
	return rest[:end]
}

func skipComments(statement string) string {
	for {
		statement = strings.TrimLeft(statement, " \t\r\n(")
		switch {
		case strings.HasPrefix(statement, "--"):
			newline := strings.IndexByte(statement, '\n')
			if newline == -1 {
				return ""
			}
			statement = statement[newline+1:]
		case strings.HasPrefix(statement, "/*"):
			end := strings.Index(statement, "*/")
			if end == -1 {
				return ""
			}
			statement = statement[end+2:]
		default:
			return statement
		}
	}
}

// hasStatementSeparator looks for semicolons outside of quoted strings and identifiers.
func hasStatementSeparator(statement string) bool {
	var quote byte
	for i := 0; i < len(statement); i++ {
		char := statement[i]
		switch {
		case quote != 0:
			if char == '\\' {
				i++
			} else if char == quote {
				quote = 0
			}
		case char == '\'' || char == '"' || char == '`':
			quote = char
		case char == ';':
			return true
		}
	}
	return false
}

// Matches "LIMIT n", "LIMIT n OFFSET m" and "LIMIT m, n" at the end of a statement, capturing the
// row count n.
var trailingLimitPattern = regexp.MustCompile(
	`(?i)\bLIMIT\s+(?:\d+\s*,\s*)?(\d+)(\s+OFFSET\s+\d+)?\s*$`,
)

// EnforceLimit makes sure the statement returns at most maxRows rows, by appending a LIMIT clause
// if it has none and lowering it if it is larger.
func EnforceLimit(sql string, maxRows int) string {
	statement := TrimStatement(sql)

	match := trailingLimitPattern.FindStringSubmatchIndex(statement)
	if match == nil {
		return statement + "\nLIMIT " + strconv.Itoa(maxRows)
	}

	limit, err := strconv.Atoi(statement[match[2]:match[3]])
	if err == nil && limit <= maxRows {
		return statement
	}
	return statement[:match[2]] + strconv.Itoa(maxRows) + statement[match[3]:]
}
