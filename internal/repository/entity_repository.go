package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/uniguide/corrections-api/internal/models"
	"github.com/uniguide/corrections-api/internal/schema"
)

// EntityRepository is the narrow surface through which the engine reads and
// writes the underlying entity tables. The tables themselves belong to the
// main application; only schema-registered columns are ever touched.
type EntityRepository struct {
	db       *sqlx.DB
	registry *schema.Registry
}

// NewEntityRepository constructs the repository.
func NewEntityRepository(db *sqlx.DB, registry *schema.Registry) *EntityRepository {
	return &EntityRepository{db: db, registry: registry}
}

// EntitySnapshot holds the current values of an entity's correctable fields.
type EntitySnapshot struct {
	EntityType  string
	EntityID    string
	DisplayName string
	Active      bool
	Fields      map[string]*string
}

// Snapshot loads the current values of every registered field for the
// entity. sql.ErrNoRows when the entity does not exist.
func (r *EntityRepository) Snapshot(ctx context.Context, entityType, entityID string) (*EntitySnapshot, error) {
	entSchema, err := r.registry.Entity(entityType)
	if err != nil {
		return nil, err
	}

	fields := entSchema.Fields()
	columns := make([]string, 0, len(fields)+2)
	columns = append(columns, entSchema.DisplayCol)
	if entSchema.ActiveCheck {
		columns = append(columns, "active")
	}
	for _, f := range fields {
		columns = append(columns, fmt.Sprintf("%s::text", f.Key))
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", strings.Join(columns, ", "), entSchema.Table)
	row := r.db.QueryRowxContext(ctx, query, entityID)

	dest := make([]interface{}, len(columns))
	var displayName sql.NullString
	var active sql.NullBool
	values := make([]sql.NullString, len(fields))
	idx := 0
	dest[idx] = &displayName
	idx++
	if entSchema.ActiveCheck {
		dest[idx] = &active
		idx++
	}
	for i := range values {
		dest[idx+i] = &values[i]
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	snapshot := &EntitySnapshot{
		EntityType:  entityType,
		EntityID:    entityID,
		DisplayName: displayName.String,
		Active:      true,
		Fields:      make(map[string]*string, len(fields)),
	}
	if entSchema.ActiveCheck {
		snapshot.Active = active.Valid && active.Bool
	}
	for i, f := range fields {
		if values[i].Valid {
			v := values[i].String
			snapshot.Fields[f.Key] = &v
		} else {
			snapshot.Fields[f.Key] = nil
		}
	}
	return snapshot, nil
}

// ApplyWrites executes a compiled mutation's field writes as absolute
// assignments, so re-running the same mutation leaves the row unchanged.
// The table and column names are re-resolved against the registry rather
// than trusted from the stored payload; only registry-held identifiers are
// ever interpolated into the statement.
func (r *EntityRepository) ApplyWrites(ctx context.Context, mutation models.CompiledMutation) error {
	if len(mutation.Writes) == 0 {
		return fmt.Errorf("compiled mutation has no writes")
	}

	entSchema, err := r.registry.EntityByTable(mutation.EntityTable)
	if err != nil {
		return fmt.Errorf("apply mutation: %w", err)
	}

	setParts := make([]string, len(mutation.Writes))
	args := make([]interface{}, 0, len(mutation.Writes)+1)
	for i, write := range mutation.Writes {
		field, err := entSchema.Field(write.Column)
		if err != nil {
			return fmt.Errorf("apply mutation: %w", err)
		}
		args = append(args, write.Value)
		setParts[i] = fmt.Sprintf("%s = $%d", field.Key, len(args))
	}
	args = append(args, mutation.EntityID)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", entSchema.Table, strings.Join(setParts, ", "), len(args))
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("apply mutation to %s/%s: %w", mutation.EntityTable, mutation.EntityID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check apply rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("apply mutation: entity %s/%s no longer exists", mutation.EntityTable, mutation.EntityID)
	}
	return nil
}
