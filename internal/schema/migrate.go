package schema

import (
	"fmt"
	"strings"
)

// Plan is the ordered list of DDL statements that migrates a table from
// its current introspected shape to the desired one.
type Plan struct {
	Statements []string
	// Recreated is true when the SQLite policy required a
	// rename/create/copy/drop sequence rather than in-place ALTERs.
	Recreated bool
}

// MigratePlan computes the statements needed to take a table from
// current to desired under dialect. If current is nil, the table does
// not yet exist and the plan is simply desired's CREATE TABLE statements.
func MigratePlan(current *TableSchema, desired TableSchema, dialect Dialect) Plan {
	if current == nil {
		return Plan{Statements: CreateTableDDL(desired, dialect)}
	}

	switch dialect {
	case PostgreSQL:
		return migratePostgres(*current, desired)
	default:
		return migrateSQLite(*current, desired)
	}
}

// needsRecreation reports whether the SQLite recreation policy applies:
// any column removed, or any kept column's type/nullability/PK/default
// differs from desired.
func needsRecreation(current, desired TableSchema) bool {
	desiredByName := make(map[string]ColumnDefinition, len(desired.Columns))
	for _, c := range desired.Columns {
		desiredByName[c.Name] = c
	}

	for _, cur := range current.Columns {
		want, ok := desiredByName[cur.Name]
		if !ok {
			return true // column removed
		}
		if cur.Type != want.Type || cur.Nullable != want.Nullable ||
			cur.PrimaryKey != want.PrimaryKey || cur.DefaultValue != want.DefaultValue {
			return true
		}
	}
	return false
}

func migrateSQLite(current, desired TableSchema) Plan {
	if needsRecreation(current, desired) {
		return recreateSQLite(current, desired)
	}

	currentNames := make(map[string]bool, len(current.Columns))
	for _, c := range current.Columns {
		currentNames[c.Name] = true
	}

	var stmts []string
	for _, c := range desired.Columns {
		if currentNames[c.Name] {
			continue
		}
		col := c
		// NOT NULL is only valid on ADD COLUMN when a DEFAULT is
		// present; SQLite cannot add a NOT NULL column with no default
		// to a non-empty table otherwise.
		if col.DefaultValue == "" {
			col.Nullable = true
		}
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", desired.TableName, sqliteColumnDDL(col)))
	}
	return Plan{Statements: stmts}
}

func recreateSQLite(current, desired TableSchema) Plan {
	oldName := desired.TableName + "_old_" + tempSuffix()

	currentNames := make(map[string]bool, len(current.Columns))
	for _, c := range current.Columns {
		currentNames[c.Name] = true
	}

	var shared []string
	for _, c := range desired.Columns {
		if currentNames[c.Name] {
			shared = append(shared, c.Name)
		}
	}

	stmts := []string{
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", desired.TableName, oldName),
	}
	stmts = append(stmts, CreateTableDDL(desired, SQLite)...)
	stmts = append(stmts, fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s",
		desired.TableName, strings.Join(shared, ", "), strings.Join(shared, ", "), oldName,
	))
	stmts = append(stmts, fmt.Sprintf("DROP TABLE %s", oldName))

	return Plan{Statements: stmts, Recreated: true}
}

// tempSuffix is replaced by the caller's own UUID when building the
// actual rename target; kept here only as a placeholder token so
// recreateSQLite's output is deterministic and testable. Callers that
// execute the plan against a live database should rewrite this token to
// a real UUID via ResolveTempSuffix.
func tempSuffix() string {
	return "PENDING"
}

// ResolveTempSuffix rewrites the deterministic "_old_PENDING" placeholder
// in a recreation Plan's statements to use the given unique suffix
// (normally a freshly generated UUID), so concurrent migrations of the
// same table never collide on the temporary table name.
func ResolveTempSuffix(plan Plan, suffix string) Plan {
	if !plan.Recreated {
		return plan
	}
	out := make([]string, len(plan.Statements))
	for i, s := range plan.Statements {
		out[i] = strings.ReplaceAll(s, "_old_PENDING", "_old_"+suffix)
	}
	return Plan{Statements: out, Recreated: true}
}

func migratePostgres(current, desired TableSchema) Plan {
	currentByName := make(map[string]ColumnDefinition, len(current.Columns))
	for _, c := range current.Columns {
		currentByName[c.Name] = c
	}

	// New columns are added first; nullability changes follow.
	var stmts, alters []string
	for _, c := range desired.Columns {
		cur, ok := currentByName[c.Name]
		if !ok {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", desired.TableName, postgresColumnDDL(c)))
			continue
		}
		if cur.Nullable != c.Nullable {
			if c.Nullable {
				alters = append(alters, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP NOT NULL", desired.TableName, c.Name))
			} else {
				alters = append(alters, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL", desired.TableName, c.Name))
			}
		}
		// Type changes are out of scope, per design.
	}
	return Plan{Statements: append(stmts, alters...)}
}
