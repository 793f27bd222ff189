// Package guard enforces tenant isolation at the database access layer. It
// registers GORM callbacks that consult the caller's access context on every
// read and write, independent of (and deliberately redundant with) any tenant
// filter a repository already applies. A write against a row owned by a
// different tenant hard-fails; it is never silently re-scoped or filtered.
package guard

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pos/backend/internal/domain/shared"
)

// Guard applies tenant isolation checks to GORM statements
type Guard struct {
	tenantColumn string
	required     bool
}

// New creates a guard. When required is true, statements on tenant-scoped
// tables fail unless an access context is present; when false, contexts
// without access information (maintenance jobs) bypass the guard.
func New(required bool) *Guard {
	return &Guard{
		tenantColumn: "tenant_id",
		required:     required,
	}
}

// Register attaches the guard to the GORM callback pipeline. Write checks are
// registered before gorm's own callbacks so a violation aborts the statement
// before any row is touched.
func (g *Guard) Register(db *gorm.DB) error {
	registrations := []error{
		db.Callback().Query().Before("gorm:query").Register("guard:before_query", g.scopeRead),
		db.Callback().Row().Before("gorm:row").Register("guard:before_row", g.scopeRead),
		db.Callback().Create().Before("gorm:create").Register("guard:before_create", g.checkCreate),
		db.Callback().Update().Before("gorm:update").Register("guard:before_update", g.checkWrite),
		db.Callback().Delete().Before("gorm:delete").Register("guard:before_delete", g.checkWrite),
	}
	for _, err := range registrations {
		if err != nil {
			return fmt.Errorf("failed to register guard callback: %w", err)
		}
	}
	return nil
}

// scopeRead injects a tenant predicate into reads of tenant-scoped tables so
// a query that forgot its own scoping still cannot cross tenants.
func (g *Guard) scopeRead(db *gorm.DB) {
	access, ok := g.access(db)
	if !ok {
		return
	}

	if !g.tenantScoped(db) || g.hasTenantCondition(db) {
		return
	}

	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: clause.CurrentTable, Name: g.tenantColumn},
				Value:  access.TenantID,
			},
		},
	})
}

// checkCreate rejects inserts that claim a foreign tenant
func (g *Guard) checkCreate(db *gorm.DB) {
	access, ok := g.access(db)
	if !ok {
		return
	}

	for _, tenantID := range g.destTenantIDs(db) {
		if !access.CanAccessTenant(tenantID) {
			_ = db.AddError(fmt.Errorf("%w: insert into %s for tenant %s",
				shared.ErrTenantIsolationViolation, db.Statement.Table, tenantID))
			return
		}
	}
}

// checkWrite rejects updates and deletes whose target row belongs to a
// foreign tenant. The target's owner is read inside the same transaction, so
// the verdict cannot be stale.
func (g *Guard) checkWrite(db *gorm.DB) {
	access, ok := g.access(db)
	if !ok {
		return
	}

	if !g.tenantScoped(db) {
		return
	}

	owner, found, err := g.targetTenant(db)
	if err != nil {
		_ = db.AddError(fmt.Errorf("tenant guard: %w", err))
		return
	}
	if found && !access.CanAccessTenant(owner) {
		_ = db.AddError(fmt.Errorf("%w: %s row owned by tenant %s",
			shared.ErrTenantIsolationViolation, db.Statement.Table, owner))
	}
}

// access resolves the caller's access context. Superadmins bypass the guard
// entirely; a missing context bypasses it only when the guard is not
// required.
func (g *Guard) access(db *gorm.DB) (shared.AccessContext, bool) {
	if db.Error != nil || db.Statement == nil || db.Statement.Context == nil {
		return shared.AccessContext{}, false
	}
	if db.Statement.Unscoped {
		return shared.AccessContext{}, false
	}

	access, ok := shared.AccessFrom(db.Statement.Context)
	if !ok {
		if g.required && g.tenantScoped(db) {
			_ = db.AddError(shared.ErrAccessContextMissing)
		}
		return shared.AccessContext{}, false
	}
	if access.IsSuperAdmin {
		return shared.AccessContext{}, false
	}
	return access, true
}

// tenantScoped reports whether the statement's table carries a tenant column
func (g *Guard) tenantScoped(db *gorm.DB) bool {
	if db.Statement.Schema == nil {
		return false
	}
	field := db.Statement.Schema.LookUpField(g.tenantColumn)
	return field != nil && field.DBName == g.tenantColumn
}

// destTenantIDs extracts tenant ids claimed by a create destination
func (g *Guard) destTenantIDs(db *gorm.DB) []uuid.UUID {
	stmt := db.Statement

	switch dest := stmt.Dest.(type) {
	case map[string]any:
		return tenantIDFromValue(dest[g.tenantColumn])
	case []map[string]any:
		var ids []uuid.UUID
		for _, m := range dest {
			ids = append(ids, tenantIDFromValue(m[g.tenantColumn])...)
		}
		return ids
	}

	if !g.tenantScoped(db) {
		return nil
	}
	field := stmt.Schema.LookUpField(g.tenantColumn)

	rv := stmt.ReflectValue
	switch rv.Kind() {
	case reflect.Struct:
		value, zero := field.ValueOf(stmt.Context, rv)
		if zero {
			return nil
		}
		return tenantIDFromValue(value)
	case reflect.Slice, reflect.Array:
		var ids []uuid.UUID
		for i := 0; i < rv.Len(); i++ {
			elem := rv.Index(i)
			for elem.Kind() == reflect.Ptr {
				elem = elem.Elem()
			}
			if value, zero := field.ValueOf(stmt.Context, elem); !zero {
				ids = append(ids, tenantIDFromValue(value)...)
			}
		}
		return ids
	default:
		return nil
	}
}

// targetTenant reads the tenant owning the row an update/delete targets.
// found is false when the statement matches no existing row.
func (g *Guard) targetTenant(db *gorm.DB) (uuid.UUID, bool, error) {
	stmt := db.Statement

	tx := db.Session(&gorm.Session{NewDB: true}).Table(stmt.Table).Select(g.tenantColumn)

	if stmt.Schema != nil && stmt.ReflectValue.Kind() == reflect.Struct {
		if pf := stmt.Schema.PrioritizedPrimaryField; pf != nil {
			if v, zero := pf.ValueOf(stmt.Context, stmt.ReflectValue); !zero {
				return scanTenant(tx.Where(fmt.Sprintf("%s = ?", pf.DBName), v))
			}
		}
	}

	if c, ok := stmt.Clauses["WHERE"]; ok {
		if where, ok := c.Expression.(clause.Where); ok && len(where.Exprs) > 0 {
			return scanTenant(tx.Clauses(clause.Where{Exprs: where.Exprs}))
		}
	}

	return uuid.Nil, false, nil
}

func scanTenant(tx *gorm.DB) (uuid.UUID, bool, error) {
	row := map[string]any{}
	err := tx.Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	ids := tenantIDFromValue(row["tenant_id"])
	if len(ids) == 0 {
		return uuid.Nil, false, nil
	}
	return ids[0], true, nil
}

func tenantIDFromValue(value any) []uuid.UUID {
	// Map scans surface columns as *interface{}
	for {
		boxed, ok := value.(*any)
		if !ok {
			break
		}
		if boxed == nil {
			return nil
		}
		value = *boxed
	}
	switch v := value.(type) {
	case uuid.UUID:
		if v == uuid.Nil {
			return nil
		}
		return []uuid.UUID{v}
	case *uuid.UUID:
		if v == nil || *v == uuid.Nil {
			return nil
		}
		return []uuid.UUID{*v}
	case string:
		id, err := uuid.Parse(v)
		if err != nil || id == uuid.Nil {
			return nil
		}
		return []uuid.UUID{id}
	case []byte:
		id, err := uuid.ParseBytes(v)
		if err != nil || id == uuid.Nil {
			return nil
		}
		return []uuid.UUID{id}
	default:
		return nil
	}
}

// hasTenantCondition checks whether the statement already filters by tenant
func (g *Guard) hasTenantCondition(db *gorm.DB) bool {
	if c, ok := db.Statement.Clauses["WHERE"]; ok {
		if where, ok := c.Expression.(clause.Where); ok {
			for _, expr := range where.Exprs {
				if g.exprContainsTenant(expr) {
					return true
				}
			}
		}
	}

	sql := db.Statement.SQL.String()
	return sql != "" && strings.Contains(sql, g.tenantColumn)
}

func (g *Guard) exprContainsTenant(expr clause.Expression) bool {
	switch e := expr.(type) {
	case clause.Eq:
		if col, ok := e.Column.(clause.Column); ok {
			return col.Name == g.tenantColumn
		}
	case clause.IN:
		if col, ok := e.Column.(clause.Column); ok {
			return col.Name == g.tenantColumn
		}
	case clause.Expr:
		return strings.Contains(e.SQL, g.tenantColumn)
	case clause.AndConditions:
		for _, cond := range e.Exprs {
			if g.exprContainsTenant(cond) {
				return true
			}
		}
	case clause.OrConditions:
		for _, cond := range e.Exprs {
			if g.exprContainsTenant(cond) {
				return true
			}
		}
	}
	return false
}
