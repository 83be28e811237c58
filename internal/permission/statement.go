package permission

import (
	"regexp"
	"strings"
)

// Statement validation for the free-form SQL query tool.
//
// Only single SELECT statements are accepted. Every table referenced in a
// FROM or JOIN clause, including inside subqueries, must be granted to the
// role for read. If no table reference can be extracted the statement is
// rejected rather than passed through.

var (
	// writeVerbPattern matches statement verbs that mutate data or schema.
	writeVerbPattern = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|TRUNCATE|REPLACE|MERGE|GRANT|REVOKE|EXEC|EXECUTE|CALL)\b`)

	// tableRefPattern extracts table names following FROM or JOIN.
	tableRefPattern = regexp.MustCompile("(?i)\\b(?:FROM|JOIN)\\s+[`\"]?([a-zA-Z_][a-zA-Z0-9_]*)[`\"]?")

	// tautologyPattern matches the classic OR 1=1 injection.
	tautologyPattern = regexp.MustCompile(`(?i)\bOR\s+'?1'?\s*=\s*'?1'?`)

	// identifierPattern matches a bare column identifier, optionally
	// prefixed with a table alias.
	identifierPattern = regexp.MustCompile(`^(?:[a-zA-Z_][a-zA-Z0-9_]*\.)?([a-zA-Z_][a-zA-Z0-9_]*|\*)$`)

	// selectListPattern captures the projection between SELECT and FROM.
	selectListPattern = regexp.MustCompile(`(?is)^\s*SELECT\s+(?:DISTINCT\s+)?(.*?)\s+FROM\b`)
)

// commentMarkers terminate or hide statement text and are never legitimate
// in generated queries.
var commentMarkers = []string{"--", "#", "/*"}

// ValidateStatement checks that role may run the given SQL statement.
//
// Returns nil for an allowed single SELECT, or a *DeniedError describing
// the first violation found.
func (g *Gate) ValidateStatement(role, statement string) error {
	stmt := strings.TrimSpace(statement)
	stmt = strings.TrimSuffix(stmt, ";")

	if stmt == "" {
		return &DeniedError{Role: role, Op: OpRead, Reason: "empty statement"}
	}
	if strings.Contains(stmt, ";") {
		return &DeniedError{Role: role, Op: OpRead, Reason: "multiple statements"}
	}
	for _, marker := range commentMarkers {
		if strings.Contains(stmt, marker) {
			return &DeniedError{Role: role, Op: OpRead, Reason: "comment sequence " + marker}
		}
	}
	if tautologyPattern.MatchString(stmt) {
		return &DeniedError{Role: role, Op: OpRead, Reason: "tautology predicate"}
	}

	upper := strings.ToUpper(stmt)
	if !strings.HasPrefix(upper, "SELECT") {
		return &DeniedError{Role: role, Op: OpRead, Reason: "only SELECT statements allowed"}
	}
	if match := writeVerbPattern.FindString(stmt); match != "" {
		return &DeniedError{Role: role, Op: OpRead, Reason: "write verb " + strings.ToUpper(match)}
	}

	tables := extractTables(stmt)
	if len(tables) == 0 {
		return &DeniedError{Role: role, Op: OpRead, Reason: "no table references found"}
	}

	for _, table := range tables {
		rule, err := g.ruleFor(role, table, OpRead)
		if err != nil {
			return err
		}
		if len(rule.Columns) > 0 {
			if err := g.checkColumns(role, table, rule, stmt); err != nil {
				return err
			}
		}
	}

	return nil
}

// extractTables returns the lowercased, deduplicated table references.
func extractTables(stmt string) []string {
	matches := tableRefPattern.FindAllStringSubmatch(stmt, -1)
	seen := make(map[string]struct{}, len(matches))
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		name := strings.ToLower(m[1])
		if name == "select" {
			// FROM (SELECT ... subquery, the inner FROM carries the table
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		tables = append(tables, name)
	}
	return tables
}

// checkColumns enforces a rule's column allow-list on the projection.
//
// SELECT * is denied outright for column-restricted tables, and so is any
// projection entry that is not a bare identifier on the allow-list.
// Expressions and function calls cannot be attributed to a column, so
// they are rejected.
func (g *Gate) checkColumns(role, table string, rule *Rule, stmt string) error {
	m := selectListPattern.FindStringSubmatch(stmt)
	if m == nil {
		return &DeniedError{Role: role, Resource: table, Op: OpRead, Reason: "unparseable projection"}
	}

	allowed := make(map[string]struct{}, len(rule.Columns))
	for _, col := range rule.Columns {
		allowed[strings.ToLower(col)] = struct{}{}
	}

	for _, item := range strings.Split(m[1], ",") {
		item = strings.TrimSpace(item)
		// Strip a trailing alias ("name AS n").
		if idx := strings.Index(strings.ToUpper(item), " AS "); idx >= 0 {
			item = strings.TrimSpace(item[:idx])
		}

		sub := identifierPattern.FindStringSubmatch(item)
		if sub == nil {
			return &DeniedError{Role: role, Resource: table, Op: OpRead, Reason: "projection " + item + " not attributable to a column"}
		}
		column := strings.ToLower(sub[1])
		if column == "*" {
			return &DeniedError{Role: role, Resource: table, Op: OpRead, Reason: "SELECT * on column-restricted table"}
		}
		if _, ok := allowed[column]; !ok {
			return &DeniedError{Role: role, Resource: table, Op: OpRead, Reason: "column " + column + " not granted"}
		}
	}

	return nil
}
