package persistence

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"gorm.io/gorm/schema"

	"github.com/pos/backend/internal/domain/shared"
)

// TrackedRegistry declares which tables participate in change capture. It
// maps table names to model prototypes so the recorder, the guard, and the
// row writer can work generically: membership means "tracked", and the
// prototype gives GORM a schema to introspect. Tables never registered here
// (including the subsystem's own change_log, audit_log and friends) are
// invisible to the recorder.
type TrackedRegistry struct {
	mu         sync.RWMutex
	prototypes map[string]reflect.Type
	cache      *sync.Map
	namer      schema.Namer
}

// NewTrackedRegistry creates an empty registry
func NewTrackedRegistry() *TrackedRegistry {
	return &TrackedRegistry{
		prototypes: make(map[string]reflect.Type),
		cache:      &sync.Map{},
		namer:      schema.NamingStrategy{},
	}
}

// Register adds models to the tracked set. Models must be structs (or
// pointers to structs) GORM can parse.
func (r *TrackedRegistry) Register(trackedModels ...any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, model := range trackedModels {
		s, err := schema.Parse(model, r.cache, r.namer)
		if err != nil {
			return fmt.Errorf("failed to parse tracked model %T: %w", model, err)
		}

		t := reflect.TypeOf(model)
		for t.Kind() == reflect.Ptr {
			t = t.Elem()
		}
		r.prototypes[s.Table] = t
	}
	return nil
}

// IsTracked reports whether the table participates in change capture
func (r *TrackedRegistry) IsTracked(table string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.prototypes[table]
	return ok
}

// Prototype returns a fresh zero-valued model instance for the table
func (r *TrackedRegistry) Prototype(table string) (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.prototypes[table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrUntrackedTable, table)
	}
	return reflect.New(t).Interface(), nil
}

// Tables returns the tracked table names, sorted
func (r *TrackedRegistry) Tables() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tables := make([]string, 0, len(r.prototypes))
	for table := range r.prototypes {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	return tables
}
