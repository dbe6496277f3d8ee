package schema

import (
	"fmt"
	"sort"
)

// FieldType enumerates the value types a correctable field may hold.
type FieldType string

const (
	FieldTypeString   FieldType = "string"
	FieldTypeNumber   FieldType = "number"
	FieldTypeDate     FieldType = "date"
	FieldTypeCurrency FieldType = "currency"
)

// Sensitivity classifies how much review a field demands. High-sensitivity
// fields (monetary amounts, legally binding dates) never auto-approve.
type Sensitivity string

const (
	SensitivityLow  Sensitivity = "low"
	SensitivityHigh Sensitivity = "high"
)

// Field describes one correctable column of an entity table.
type Field struct {
	Key         string
	Label       string
	Type        FieldType
	Sensitivity Sensitivity
	Min         *float64
	Max         *float64
}

// EntitySchema binds an entity type to its table and correctable fields.
type EntitySchema struct {
	EntityType  string
	Table       string
	DisplayCol  string
	ActiveCheck bool
	fields      map[string]Field
}

// Registry maps entity types to their schemas. The diff validator and the
// mutation compiler both resolve fields here, so unknown entity types and
// unknown field keys are rejected at the boundary rather than flowing
// through as untyped data.
type Registry struct {
	entities map[string]*EntitySchema
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{entities: make(map[string]*EntitySchema)}
}

// Register adds an entity schema. Later registrations replace earlier ones.
func (r *Registry) Register(entityType, table, displayCol string, activeCheck bool, fields ...Field) {
	schema := &EntitySchema{
		EntityType:  entityType,
		Table:       table,
		DisplayCol:  displayCol,
		ActiveCheck: activeCheck,
		fields:      make(map[string]Field, len(fields)),
	}
	for _, f := range fields {
		schema.fields[f.Key] = f
	}
	r.entities[entityType] = schema
}

// Entity resolves an entity type.
func (r *Registry) Entity(entityType string) (*EntitySchema, error) {
	schema, ok := r.entities[entityType]
	if !ok {
		return nil, fmt.Errorf("unknown entity type: %s", entityType)
	}
	return schema, nil
}

// EntityByTable resolves an entity schema by its backing table.
func (r *Registry) EntityByTable(table string) (*EntitySchema, error) {
	for _, schema := range r.entities {
		if schema.Table == table {
			return schema, nil
		}
	}
	return nil, fmt.Errorf("unknown entity table: %s", table)
}

// EntityTypes lists registered entity types in stable order.
func (r *Registry) EntityTypes() []string {
	types := make([]string, 0, len(r.entities))
	for t := range r.entities {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Field resolves a field by key.
func (s *EntitySchema) Field(key string) (Field, error) {
	f, ok := s.fields[key]
	if !ok {
		return Field{}, fmt.Errorf("unknown field %q for entity type %s", key, s.EntityType)
	}
	return f, nil
}

// Fields returns the schema's fields sorted by key.
func (s *EntitySchema) Fields() []Field {
	fields := make([]Field, 0, len(s.fields))
	for _, f := range s.fields {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Key < fields[j].Key })
	return fields
}

func fptr(v float64) *float64 { return &v }

// Default returns the registry for the production entity catalogue.
func Default() *Registry {
	r := NewRegistry()

	r.Register("institution", "institutions", "name", true,
		Field{Key: "name", Label: "Institution Name", Type: FieldTypeString, Sensitivity: SensitivityLow},
		Field{Key: "city", Label: "City", Type: FieldTypeString, Sensitivity: SensitivityLow},
		Field{Key: "website", Label: "Website", Type: FieldTypeString, Sensitivity: SensitivityLow},
		Field{Key: "closing_merit", Label: "Closing Merit", Type: FieldTypeString, Sensitivity: SensitivityLow},
		Field{Key: "ranking", Label: "National Ranking", Type: FieldTypeNumber, Sensitivity: SensitivityLow, Min: fptr(1), Max: fptr(1000)},
		Field{Key: "tuition_fee", Label: "Tuition Fee", Type: FieldTypeCurrency, Sensitivity: SensitivityHigh, Min: fptr(0)},
		Field{Key: "application_deadline", Label: "Application Deadline", Type: FieldTypeDate, Sensitivity: SensitivityHigh},
	)

	r.Register("financial_aid", "financial_aid_records", "title", true,
		Field{Key: "title", Label: "Scholarship Title", Type: FieldTypeString, Sensitivity: SensitivityLow},
		Field{Key: "provider", Label: "Provider", Type: FieldTypeString, Sensitivity: SensitivityLow},
		Field{Key: "amount", Label: "Award Amount", Type: FieldTypeCurrency, Sensitivity: SensitivityHigh, Min: fptr(0)},
		Field{Key: "deadline", Label: "Application Deadline", Type: FieldTypeDate, Sensitivity: SensitivityHigh},
		Field{Key: "eligibility", Label: "Eligibility Criteria", Type: FieldTypeString, Sensitivity: SensitivityLow},
	)

	r.Register("qualifying_exam", "qualifying_exams", "name", true,
		Field{Key: "name", Label: "Exam Name", Type: FieldTypeString, Sensitivity: SensitivityLow},
		Field{Key: "conducting_body", Label: "Conducting Body", Type: FieldTypeString, Sensitivity: SensitivityLow},
		Field{Key: "registration_fee", Label: "Registration Fee", Type: FieldTypeCurrency, Sensitivity: SensitivityHigh, Min: fptr(0)},
		Field{Key: "registration_deadline", Label: "Registration Deadline", Type: FieldTypeDate, Sensitivity: SensitivityHigh},
		Field{Key: "total_marks", Label: "Total Marks", Type: FieldTypeNumber, Sensitivity: SensitivityLow, Min: fptr(0)},
	)

	r.Register("career", "careers", "title", false,
		Field{Key: "title", Label: "Career Title", Type: FieldTypeString, Sensitivity: SensitivityLow},
		Field{Key: "industry", Label: "Industry", Type: FieldTypeString, Sensitivity: SensitivityLow},
		Field{Key: "average_salary", Label: "Average Salary", Type: FieldTypeCurrency, Sensitivity: SensitivityLow, Min: fptr(0)},
		Field{Key: "description", Label: "Description", Type: FieldTypeString, Sensitivity: SensitivityLow},
	)

	r.Register("deadline", "deadlines", "title", true,
		Field{Key: "title", Label: "Deadline Title", Type: FieldTypeString, Sensitivity: SensitivityLow},
		Field{Key: "due_date", Label: "Due Date", Type: FieldTypeDate, Sensitivity: SensitivityHigh},
		Field{Key: "details", Label: "Details", Type: FieldTypeString, Sensitivity: SensitivityLow},
	)

	r.Register("program", "programs", "name", true,
		Field{Key: "name", Label: "Program Name", Type: FieldTypeString, Sensitivity: SensitivityLow},
		Field{Key: "duration_years", Label: "Duration (Years)", Type: FieldTypeNumber, Sensitivity: SensitivityLow, Min: fptr(1), Max: fptr(10)},
		Field{Key: "annual_fee", Label: "Annual Fee", Type: FieldTypeCurrency, Sensitivity: SensitivityHigh, Min: fptr(0)},
		Field{Key: "admission_criteria", Label: "Admission Criteria", Type: FieldTypeString, Sensitivity: SensitivityLow},
	)

	r.Register("merit_archive", "merit_archives", "program_name", false,
		Field{Key: "program_name", Label: "Program Name", Type: FieldTypeString, Sensitivity: SensitivityLow},
		Field{Key: "year", Label: "Year", Type: FieldTypeNumber, Sensitivity: SensitivityLow, Min: fptr(2000), Max: fptr(2100)},
		Field{Key: "closing_merit", Label: "Closing Merit", Type: FieldTypeString, Sensitivity: SensitivityLow},
	)

	return r
}
