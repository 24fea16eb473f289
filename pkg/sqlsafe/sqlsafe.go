// Package sqlsafe cleans, validates, and executes the SQL produced by
// the conversational engine. Only read-only statements are allowed
// through; anything containing a destructive keyword is blocked before
// it reaches a connection.
package sqlsafe

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/luminadata/schemagraph/pkg/apperrors"
	"github.com/luminadata/schemagraph/pkg/datasource"
	"github.com/luminadata/schemagraph/pkg/models"
)

// SafetyAlert is returned verbatim as the summary of a blocked request.
const SafetyAlert = "Safety Alert: Destructive operations are blocked."

const (
	// defaultTimeout bounds a single statement execution.
	defaultTimeout = 60 * time.Second

	// maxErrorLen caps driver error text surfaced to the caller.
	maxErrorLen = 200
)

var (
	codeFenceRe = regexp.MustCompile("(?s)^```(?:sql)?\\s*(.*?)\\s*```$")
	wordRe      = regexp.MustCompile(`[a-z_]+`)
)

// dangerousKeywords are matched as whole words against the lowercased
// statement, so a column named "created_at" does not trip the check.
var dangerousKeywords = map[string]struct{}{
	"drop": {}, "delete": {}, "truncate": {}, "alter": {},
	"update": {}, "create": {}, "insert": {},
}

// Clean normalizes raw LLM output into an executable statement: strips
// surrounding code fences and language tags, trims whitespace, and
// ensures a trailing semicolon.
func Clean(raw string) string {
	sql := strings.TrimSpace(raw)
	if m := codeFenceRe.FindStringSubmatch(sql); m != nil {
		sql = strings.TrimSpace(m[1])
	}
	if sql != "" && !strings.HasSuffix(sql, ";") {
		sql += ";"
	}
	return sql
}

// Validate rejects destructive SQL and statements followed by more
// statements. Semicolons inside string literals do not count.
func Validate(sql string) error {
	lowered := strings.ToLower(sql)
	for _, word := range wordRe.FindAllString(lowered, -1) {
		if _, bad := dangerousKeywords[word]; bad {
			return apperrors.New(apperrors.KindSQLUnsafe, SafetyAlert)
		}
	}
	body := strings.TrimSuffix(strings.TrimSpace(sql), ";")
	if hasBareSemicolon(body) {
		return apperrors.New(apperrors.KindSQLUnsafe, "multi-statement bodies are not allowed")
	}
	return nil
}

// hasBareSemicolon reports whether s contains a semicolon outside
// single- or double-quoted literals. Both backslash escapes and the
// SQL doubled-quote escape are handled.
func hasBareSemicolon(s string) bool {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
	)

	state := stateNormal
	prev := rune(0)

	for _, r := range s {
		switch state {
		case stateNormal:
			switch r {
			case ';':
				return true
			case '\'':
				state = stateSingleQuote
			case '"':
				state = stateDoubleQuote
			}
		case stateSingleQuote:
			// A doubled quote ('') exits here and re-enters on the
			// next rune, which keeps the literal intact.
			if r == '\'' && prev != '\\' {
				state = stateNormal
			}
		case stateDoubleQuote:
			if r == '"' && prev != '\\' {
				state = stateNormal
			}
		}
		prev = r
	}
	return false
}

// Executor runs validated statements against a client datasource.
type Executor struct {
	timeout time.Duration
	logger  *zap.Logger
}

// NewExecutor builds an Executor. A non-positive timeout uses the
// default of 60 seconds.
func NewExecutor(timeout time.Duration, logger *zap.Logger) *Executor {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Executor{
		timeout: timeout,
		logger:  logger.Named("sqlsafe"),
	}
}

// Execute validates then runs one statement, returning a column-ordered
// result. Driver errors come back truncated and tagged sql_exec_failed.
func (e *Executor) Execute(ctx context.Context, reader datasource.Reader, sql string) (*models.DataFrame, error) {
	if err := Validate(sql); err != nil {
		e.logger.Warn("statement blocked", zap.String("sql", sql))
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	result, err := reader.Execute(ctx, sql)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindSQLExecFailed, TruncateError(err), err)
	}
	e.logger.Debug("statement executed",
		zap.Int("rows", len(result.Rows)),
		zap.Duration("elapsed", time.Since(start)))

	return &models.DataFrame{Columns: result.Columns, Rows: result.Rows}, nil
}

// TruncateError renders err as a string capped at 200 characters.
func TruncateError(err error) string {
	msg := fmt.Sprintf("%v", err)
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}
	return msg
}
