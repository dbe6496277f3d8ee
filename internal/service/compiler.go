package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/uniguide/corrections-api/internal/models"
	"github.com/uniguide/corrections-api/internal/schema"
	appErrors "github.com/uniguide/corrections-api/pkg/errors"
)

// MutationCompiler turns an approved correction into a deterministic,
// idempotent mutation statement set. Every write is an absolute assignment,
// so applying the output twice leaves the entity in the same state as
// applying it once.
type MutationCompiler struct {
	registry *schema.Registry
}

// NewMutationCompiler constructs the compiler.
func NewMutationCompiler(registry *schema.Registry) *MutationCompiler {
	return &MutationCompiler{registry: registry}
}

// Compile validates the record's values against the live schema and emits
// the mutation. Schema drift since submission (removed field, changed type,
// value now out of range) surfaces as a compile error so the operator knows
// the correction needs re-review rather than blind retry.
func (c *MutationCompiler) Compile(record *models.CorrectionRecord) (*models.CompiledMutation, error) {
	if !record.Status.Applicable() {
		return nil, appErrors.Clone(appErrors.ErrCompile,
			fmt.Sprintf("correction %s is %s, only approved corrections compile", record.ID, record.Status))
	}
	if len(record.Changes) == 0 {
		return nil, appErrors.Clone(appErrors.ErrCompile, "correction has no changes")
	}

	entSchema, err := c.registry.Entity(record.EntityType)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrCompile.Code, appErrors.ErrCompile.Status,
			fmt.Sprintf("entity type %s is no longer registered", record.EntityType))
	}

	writes := make([]models.FieldWrite, 0, len(record.Changes))
	for _, change := range record.Changes {
		field, err := entSchema.Field(change.FieldKey)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrCompile.Code, appErrors.ErrCompile.Status,
				fmt.Sprintf("field %s no longer exists in the live schema", change.FieldKey))
		}
		value, err := field.ParseValue(change.ProposedValue)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrCompile.Code, appErrors.ErrCompile.Status,
				fmt.Sprintf("field %s no longer accepts the proposed value", change.FieldKey))
		}
		writes = append(writes, models.FieldWrite{Column: field.Key, Value: value})
	}
	sort.Slice(writes, func(i, j int) bool { return writes[i].Column < writes[j].Column })

	statements := make([]string, len(writes))
	for i, write := range writes {
		statements[i] = fmt.Sprintf("UPDATE %s SET %s = %s WHERE id = %s;",
			entSchema.Table, write.Column, quoteLiteral(write.Value), quoteLiteral(record.EntityID))
	}

	return &models.CompiledMutation{
		EntityTable: entSchema.Table,
		EntityID:    record.EntityID,
		Writes:      writes,
		Statements:  statements,
	}, nil
}

// quoteLiteral renders a single-quoted SQL literal for the audit statement
// text. The executed path binds parameters instead; this text is for human
// inspection only.
func quoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
