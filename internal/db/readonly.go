package db

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var (
	ErrMultipleStatements = errors.New("only one statement is allowed")
	ErrNotReadOnly        = errors.New("statement is not read-only")
)

// readOnlyVerbs are the statements a workspace query may start with.
var readOnlyVerbs = map[string]bool{
	"SELECT": true, "WITH": true, "SHOW": true, "DESCRIBE": true, "SUMMARIZE": true, "FROM": true,
}

// deniedWords may not appear outside string literals and quoted identifiers.
// They cover data changes hidden behind a CTE, settings, extensions and the
// table functions that reach the file system or network.
var deniedWords = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "MERGE": true, "DROP": true,
	"CREATE": true, "ALTER": true, "TRUNCATE": true, "COPY": true, "EXPORT": true,
	"IMPORT": true, "ATTACH": true, "DETACH": true, "INSTALL": true, "LOAD": true,
	"SET": true, "RESET": true, "PRAGMA": true, "CALL": true, "CHECKPOINT": true,
	"READ_TEXT": true, "READ_BLOB": true, "READ_CSV": true, "READ_CSV_AUTO": true,
	"READ_JSON": true, "READ_JSON_AUTO": true, "READ_NDJSON": true, "READ_PARQUET": true,
	"PARQUET_SCAN": true, "GLOB": true, "SNIFF_CSV": true, "DUCKDB_SECRETS": true,
}

// CheckReadOnly accepts exactly one read-only statement. A trailing
// semicolon is allowed; anything after it other than blanks and comments is
// a second statement. Quoted paths are never allowed as a FROM/JOIN source
// since DuckDB reads them as files.
func CheckReadOnly(query string) error {
	words, strs, err := scan(query)
	if err != nil {
		return err
	}
	if len(words) == 0 || !readOnlyVerbs[words[0]] {
		return fmt.Errorf("%w: must start with SELECT, WITH, SHOW, DESCRIBE, SUMMARIZE or FROM", ErrNotReadOnly)
	}
	for _, w := range words {
		if deniedWords[w] {
			return fmt.Errorf("%w: %s", ErrNotReadOnly, strings.ToLower(w))
		}
	}
	if strs > 0 {
		return fmt.Errorf("%w: string literal used as a table source", ErrNotReadOnly)
	}
	return nil
}

// pathLike reports whether a quoted FROM source would be read as a file:
// any string literal, or a quoted identifier that looks like a path.
func pathLike(quote rune, body []rune) bool {
	return quote == '\'' || strings.ContainsAny(string(body), "./\\")
}

// scan tokenizes query into upper-cased bare words, skipping literals,
// quoted identifiers and comments. It counts string literals that follow
// FROM or JOIN and fails on a second statement.
func scan(query string) (words []string, fileSources int, err error) {
	rs := []rune(query)
	ended := false
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '-' && i+1 < len(rs) && rs[i+1] == '-':
			for i < len(rs) && rs[i] != '\n' {
				i++
			}
		case r == '/' && i+1 < len(rs) && rs[i+1] == '*':
			j := i + 2
			for j+1 < len(rs) && !(rs[j] == '*' && rs[j+1] == '/') {
				j++
			}
			if j+1 >= len(rs) {
				return nil, 0, fmt.Errorf("%w: unterminated comment", ErrNotReadOnly)
			}
			i = j + 2
		case ended:
			return nil, 0, ErrMultipleStatements
		case r == ';':
			ended = true
			i++
		case r == '\'' || r == '"':
			j := i + 1
			for ; j < len(rs); j++ {
				if rs[j] == r {
					if j+1 < len(rs) && rs[j+1] == r {
						j++
						continue
					}
					break
				}
			}
			if j >= len(rs) {
				return nil, 0, fmt.Errorf("%w: unterminated quote", ErrNotReadOnly)
			}
			if len(words) > 0 && (words[len(words)-1] == "FROM" || words[len(words)-1] == "JOIN") && pathLike(r, rs[i+1:j]) {
				fileSources++
			}
			i = j + 1
		case r == '_' || unicode.IsLetter(r):
			j := i
			for j < len(rs) && (rs[j] == '_' || unicode.IsLetter(rs[j]) || unicode.IsDigit(rs[j])) {
				j++
			}
			words = append(words, strings.ToUpper(string(rs[i:j])))
			i = j
		default:
			i++
		}
	}
	return words, fileSources, nil
}
