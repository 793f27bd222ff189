// Package changestream implements the change-capture write hook. It attaches
// to GORM's callback pipeline so that every insert, update, and delete on a
// tracked table produces one change record and one audit entry (plus one
// tombstone on delete) inside the same transaction as the mutation itself.
// Any failure while recording fails the whole transaction: a business
// mutation is never observable without its trail, and vice versa.
package changestream

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pos/backend/internal/domain/shared"
	syncdomain "github.com/pos/backend/internal/domain/sync"
	"github.com/pos/backend/internal/infrastructure/persistence"
	"github.com/pos/backend/internal/infrastructure/persistence/models"
)

const (
	preImageKey = "changestream:pre_image"
	ownTxKey    = "changestream:started_transaction"
)

// Recorder is the change-capture interceptor. One instance is registered per
// *gorm.DB; it consults the tracked registry on every statement and no-ops
// for everything else, including its own internal writes.
type Recorder struct {
	registry  *persistence.TrackedRegistry
	allocator syncdomain.VersionAllocator
	logger    *zap.Logger
	metrics   Metrics
}

// Metrics receives recorder observations. A nil-safe no-op is used when none
// is provided.
type Metrics interface {
	MutationRecorded(table string, op syncdomain.Operation)
}

type noopMetrics struct{}

func (noopMetrics) MutationRecorded(string, syncdomain.Operation) {}

// Option configures a Recorder
type Option func(*Recorder)

// WithLogger sets the recorder's logger
func WithLogger(log *zap.Logger) Option {
	return func(r *Recorder) { r.logger = log }
}

// WithMetrics sets the recorder's metrics sink
func WithMetrics(m Metrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

// New creates a Recorder over the given registry and allocator
func New(registry *persistence.TrackedRegistry, allocator syncdomain.VersionAllocator, opts ...Option) *Recorder {
	r := &Recorder{
		registry:  registry,
		allocator: allocator,
		logger:    zap.NewNop(),
		metrics:   noopMetrics{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register attaches the recorder to the GORM callback pipeline
func (r *Recorder) Register(db *gorm.DB) error {
	callbacks := []struct {
		register func() error
	}{
		{func() error {
			return db.Callback().Create().Before("*").Register("changestream:begin_transaction", r.beginTransaction)
		}},
		{func() error {
			return db.Callback().Create().After("*").Register("changestream:close_transaction", r.closeTransaction)
		}},
		{func() error {
			return db.Callback().Update().Before("*").Register("changestream:begin_transaction", r.beginTransaction)
		}},
		{func() error {
			return db.Callback().Update().After("*").Register("changestream:close_transaction", r.closeTransaction)
		}},
		{func() error {
			return db.Callback().Delete().Before("*").Register("changestream:begin_transaction", r.beginTransaction)
		}},
		{func() error {
			return db.Callback().Delete().After("*").Register("changestream:close_transaction", r.closeTransaction)
		}},
		{func() error {
			return db.Callback().Create().After("gorm:create").Register("changestream:after_create", r.afterCreate)
		}},
		{func() error {
			return db.Callback().Update().Before("gorm:update").Register("changestream:before_update", r.beforeUpdate)
		}},
		{func() error {
			return db.Callback().Update().After("gorm:update").Register("changestream:after_update", r.afterUpdate)
		}},
		{func() error {
			return db.Callback().Delete().Before("gorm:delete").Register("changestream:before_delete", r.beforeDelete)
		}},
		{func() error {
			return db.Callback().Delete().After("gorm:delete").Register("changestream:after_delete", r.afterDelete)
		}},
	}
	for _, cb := range callbacks {
		if err := cb.register(); err != nil {
			return fmt.Errorf("failed to register changestream callback: %w", err)
		}
	}
	return nil
}

func (r *Recorder) tracked(db *gorm.DB) bool {
	if db.Error != nil || db.Statement == nil {
		return false
	}
	return r.registry.IsTracked(db.Statement.Table)
}

// beginTransaction forces every tracked mutation into a real transaction.
// GORM elides its default per-statement transaction for plain writes, but the
// recorder's change record, audit entry, and tombstone must commit or roll
// back together with the business row, so a tracked statement always runs
// inside one. Joining an already open transaction is a no-op: Begin reports
// ErrInvalidTransaction when the connection is mid-transaction, and the outer
// transaction supplies the atomicity.
func (r *Recorder) beginTransaction(db *gorm.DB) {
	if !r.tracked(db) || db.DryRun {
		return
	}
	if _, ok := db.InstanceGet("gorm:started_transaction"); ok {
		return
	}

	if tx := db.Begin(); tx.Error == nil {
		db.Statement.ConnPool = tx.Statement.ConnPool
		db.InstanceSet(ownTxKey, true)
	} else if !errors.Is(tx.Error, gorm.ErrInvalidTransaction) {
		_ = db.AddError(tx.Error)
	}
}

// closeTransaction commits or rolls back a transaction opened by
// beginTransaction once every callback in the chain has run
func (r *Recorder) closeTransaction(db *gorm.DB) {
	if _, ok := db.InstanceGet(ownTxKey); !ok {
		return
	}

	if db.Error == nil {
		db.Commit()
	} else {
		db.Rollback()
	}
	db.Statement.ConnPool = db.ConnPool
}

// afterCreate records Insert mutations. The post-image is the freshly created
// destination value.
func (r *Recorder) afterCreate(db *gorm.DB) {
	if !r.tracked(db) || db.RowsAffected == 0 {
		return
	}

	snapshots, err := destSnapshots(db)
	if err != nil {
		_ = db.AddError(fmt.Errorf("change capture: %w", err))
		return
	}
	for _, snapshot := range snapshots {
		r.record(db, syncdomain.OperationInsert, snapshot, nil)
	}
}

// beforeUpdate captures the pre-image and bumps the row's optimistic
// concurrency counter in the same UPDATE statement. Tables without a version
// column are skipped silently.
func (r *Recorder) beforeUpdate(db *gorm.DB) {
	if !r.tracked(db) {
		return
	}

	pre, err := r.fetchTargetRow(db)
	if err != nil {
		_ = db.AddError(fmt.Errorf("change capture: %w", err))
		return
	}
	if pre == nil {
		// Target row does not exist; the update will affect nothing.
		return
	}
	db.InstanceSet(preImageKey, pre)

	r.bumpVersion(db, pre)
}

// afterUpdate records Update mutations with the committed post-image
func (r *Recorder) afterUpdate(db *gorm.DB) {
	if !r.tracked(db) || db.RowsAffected == 0 {
		return
	}

	raw, ok := db.InstanceGet(preImageKey)
	if !ok {
		return
	}
	pre := raw.(syncdomain.Document)

	rowID, ok := pre.UUID("id")
	if !ok {
		_ = db.AddError(fmt.Errorf("change capture: pre-image of %s is missing a row id", db.Statement.Table))
		return
	}

	post, err := r.fetchRowByID(db, rowID)
	if err != nil {
		_ = db.AddError(fmt.Errorf("change capture: %w", err))
		return
	}
	if post == nil {
		_ = db.AddError(fmt.Errorf("change capture: updated row %s/%s vanished mid-transaction", db.Statement.Table, rowID))
		return
	}

	// Updates may legitimately omit scope columns; fall back to the pre-image
	// so the change record never loses its tenant/store attribution.
	if _, ok := post.UUID("tenant_id"); !ok {
		if tenantID, ok := pre.UUID("tenant_id"); ok {
			post["tenant_id"] = tenantID.String()
		}
	}
	if _, ok := post.UUID("store_id"); !ok {
		if storeID, ok := pre.UUID("store_id"); ok {
			post["store_id"] = storeID.String()
		}
	}

	r.record(db, syncdomain.OperationUpdate, post, nil)
}

// beforeDelete captures the pre-image before the row disappears
func (r *Recorder) beforeDelete(db *gorm.DB) {
	if !r.tracked(db) {
		return
	}

	pre, err := r.fetchTargetRow(db)
	if err != nil {
		_ = db.AddError(fmt.Errorf("change capture: %w", err))
		return
	}
	if pre != nil {
		db.InstanceSet(preImageKey, pre)
	}
}

// afterDelete records Delete mutations and writes the tombstone
func (r *Recorder) afterDelete(db *gorm.DB) {
	if !r.tracked(db) || db.RowsAffected == 0 {
		return
	}

	raw, ok := db.InstanceGet(preImageKey)
	if !ok {
		return
	}
	pre := raw.(syncdomain.Document)

	tombstoneID, err := r.allocator.AllocateTombstoneID(db.Statement.Context)
	if err != nil {
		_ = db.AddError(fmt.Errorf("change capture: %w", err))
		return
	}

	rowID, ok := pre.UUID("id")
	if !ok {
		_ = db.AddError(fmt.Errorf("change capture: pre-image of %s is missing a row id", db.Statement.Table))
		return
	}

	r.record(db, syncdomain.OperationDelete, pre, func(tx *gorm.DB) error {
		tombstone := syncdomain.NewTombstone(tombstoneID, db.Statement.Table, rowID, pre)
		return tx.Create(models.TombstoneModelFromDomain(tombstone)).Error
	})
}

// record allocates a change version and writes the change record and audit
// entry (and any extra rows) inside the statement's transaction. Errors are
// attached to the statement so the whole transaction rolls back.
func (r *Recorder) record(db *gorm.DB, op syncdomain.Operation, snapshot syncdomain.Document, extra func(tx *gorm.DB) error) {
	ctx := db.Statement.Context
	table := db.Statement.Table

	rowID, ok := snapshot.UUID("id")
	if !ok {
		_ = db.AddError(fmt.Errorf("change capture: snapshot of %s is missing a row id", table))
		return
	}

	version, err := r.allocator.AllocateChangeVersion(ctx)
	if err != nil {
		_ = db.AddError(fmt.Errorf("change capture: %w", err))
		return
	}

	// A missing actor id is tolerated and recorded as absent; it never fails
	// the transaction.
	var userID *uuid.UUID
	if access, ok := shared.AccessFrom(ctx); ok {
		userID = access.UserID
	} else {
		r.logger.Debug("mutation recorded without actor identity",
			zap.String("table", table),
			zap.String("operation", string(op)),
		)
	}

	record := syncdomain.NewChangeRecord(version, table, rowID, op, snapshot)
	entry := syncdomain.NewAuditLogEntry(table, rowID, op, snapshot, userID)

	tx := db.Session(&gorm.Session{NewDB: true})
	if err := tx.Create(models.ChangeRecordModelFromDomain(record)).Error; err != nil {
		_ = db.AddError(fmt.Errorf("change capture: failed to append change record: %w", err))
		return
	}
	if err := tx.Create(models.AuditLogModelFromDomain(entry)).Error; err != nil {
		_ = db.AddError(fmt.Errorf("change capture: failed to append audit entry: %w", err))
		return
	}
	if extra != nil {
		if err := extra(tx); err != nil {
			_ = db.AddError(fmt.Errorf("change capture: %w", err))
			return
		}
	}

	r.metrics.MutationRecorded(table, op)
}

// bumpVersion adds the optimistic-concurrency increment to the pending
// UPDATE. Map destinations get a server-side expression; struct destinations
// get old+1 plus a WHERE version = old guard, so a stale writer affects zero
// rows instead of reusing a version.
func (r *Recorder) bumpVersion(db *gorm.DB, pre syncdomain.Document) {
	stmt := db.Statement
	if stmt.Schema == nil {
		return
	}
	field := stmt.Schema.LookUpField("version")
	if field == nil || field.DBName != "version" {
		return
	}

	switch dest := stmt.Dest.(type) {
	case map[string]any:
		if _, assigned := dest["version"]; !assigned {
			dest["version"] = gorm.Expr("version + 1")
		}
	default:
		if stmt.ReflectValue.Kind() != reflect.Struct {
			return
		}
		old, ok := pre.Int("version")
		if !ok {
			return
		}
		if err := field.Set(stmt.Context, stmt.ReflectValue, old+1); err != nil {
			_ = db.AddError(fmt.Errorf("change capture: failed to set version: %w", err))
			return
		}
		stmt.AddClause(clause.Where{Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: clause.CurrentTable, Name: "version"},
				Value:  old,
			},
		}})
	}
}

// fetchTargetRow loads the row the statement is about to touch, preferring
// the destination's primary key and falling back to the statement's WHERE
// conditions. Returns nil when no such row exists. Mutations that identify
// no single row cannot be change-captured and fail the transaction.
func (r *Recorder) fetchTargetRow(db *gorm.DB) (syncdomain.Document, error) {
	stmt := db.Statement

	if stmt.Schema != nil && stmt.ReflectValue.Kind() == reflect.Struct {
		if pf := stmt.Schema.PrioritizedPrimaryField; pf != nil {
			if v, zero := pf.ValueOf(stmt.Context, stmt.ReflectValue); !zero {
				if id, ok := (syncdomain.Document{"id": v}).UUID("id"); ok {
					return r.fetchRowByID(db, id)
				}
			}
		}
	}

	if c, ok := stmt.Clauses["WHERE"]; ok {
		if where, ok := c.Expression.(clause.Where); ok && len(where.Exprs) > 0 {
			row := map[string]any{}
			err := db.Session(&gorm.Session{NewDB: true}).
				Table(stmt.Table).
				Clauses(clause.Where{Exprs: where.Exprs}).
				Take(&row).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil
			}
			if err != nil {
				return nil, fmt.Errorf("failed to load %s target row: %w", stmt.Table, err)
			}
			return syncdomain.Document(row), nil
		}
	}

	return nil, fmt.Errorf("mutation on %s identifies no target row", stmt.Table)
}

// fetchRowByID loads a single row as a column-keyed document
func (r *Recorder) fetchRowByID(db *gorm.DB, rowID uuid.UUID) (syncdomain.Document, error) {
	row := map[string]any{}
	err := db.Session(&gorm.Session{NewDB: true}).
		Table(db.Statement.Table).
		Where("id = ?", rowID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s row %s: %w", db.Statement.Table, rowID, err)
	}
	return syncdomain.Document(row), nil
}

// destSnapshots builds column-keyed snapshots from a create statement's
// destination, handling struct, slice, and map forms uniformly.
func destSnapshots(db *gorm.DB) ([]syncdomain.Document, error) {
	stmt := db.Statement

	switch dest := stmt.Dest.(type) {
	case map[string]any:
		return []syncdomain.Document{normalizeMap(dest)}, nil
	case []map[string]any:
		docs := make([]syncdomain.Document, 0, len(dest))
		for _, m := range dest {
			docs = append(docs, normalizeMap(m))
		}
		return docs, nil
	}

	if stmt.Schema == nil {
		return nil, fmt.Errorf("create on %s has no schema to snapshot", stmt.Table)
	}

	rv := stmt.ReflectValue
	switch rv.Kind() {
	case reflect.Struct:
		return []syncdomain.Document{structSnapshot(db, rv)}, nil
	case reflect.Slice, reflect.Array:
		docs := make([]syncdomain.Document, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			elem := rv.Index(i)
			for elem.Kind() == reflect.Ptr {
				elem = elem.Elem()
			}
			docs = append(docs, structSnapshot(db, elem))
		}
		return docs, nil
	default:
		return nil, fmt.Errorf("create on %s has unsupported destination kind %s", stmt.Table, rv.Kind())
	}
}

// structSnapshot extracts every database column from a struct destination,
// including zero values, so the payload is a full row image.
func structSnapshot(db *gorm.DB, rv reflect.Value) syncdomain.Document {
	stmt := db.Statement
	doc := make(syncdomain.Document, len(stmt.Schema.Fields))
	for _, field := range stmt.Schema.Fields {
		if field.DBName == "" {
			continue
		}
		value, _ := field.ValueOf(stmt.Context, rv)
		doc[field.DBName] = value
	}
	return doc
}

func normalizeMap(m map[string]any) syncdomain.Document {
	doc := make(syncdomain.Document, len(m))
	for k, v := range m {
		if _, isExpr := v.(clause.Expr); isExpr {
			continue
		}
		doc[k] = v
	}
	return doc
}
