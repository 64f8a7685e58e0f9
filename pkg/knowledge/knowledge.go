// Package knowledge loads the schema knowledge base that describes which
// tables and fields generated queries may use, and answers lookups against it.
package knowledge

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/models"
)

// Meta describes the knowledge base file itself.
type Meta struct {
	Name        string `yaml:"name" json:"name"`
	Version     string `yaml:"version" json:"version"`
	GeneratedAt string `yaml:"generated_at" json:"generated_at"`
	Scope       string `yaml:"scope" json:"scope"`
	Note        string `yaml:"note" json:"note"`
}

// Column is one documented column of a table.
type Column struct {
	Name        string   `yaml:"name" json:"name"`
	Type        string   `yaml:"type" json:"type"`
	Description string   `yaml:"description" json:"description"`
	Aliases     []string `yaml:"aliases" json:"aliases"`
}

// Table is one documented table.
type Table struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Columns     []Column `yaml:"columns" json:"columns"`
}

// Document is the on-disk shape of the knowledge base. JSON files are read
// through the YAML decoder.
type Document struct {
	Meta   Meta    `yaml:"meta" json:"meta"`
	Tables []Table `yaml:"tables" json:"tables"`
}

// AliasPair lists every name a user might use for one field.
type AliasPair struct {
	Field   string   `json:"field"`
	Aliases []string `json:"aliases"`
}

// ColumnHint is the prompt-facing description of one field.
type ColumnHint struct {
	Field            string   `json:"field"`
	Type             string   `json:"type,omitempty"`
	FieldDescription string   `json:"field_description"`
	Aliases          []string `json:"aliases"`
}

// TableHint is the prompt-facing description of one table.
type TableHint struct {
	Table            string       `json:"table"`
	TableDescription string       `json:"table_description"`
	Columns          []ColumnHint `json:"columns"`
}

type fieldEntry struct {
	table  string
	column Column
	field  string
	alias  []string
}

// Base is a validated, indexed knowledge base. It is immutable after
// construction and safe for concurrent use.
type Base struct {
	meta    Meta
	tables  []Table
	fields  []fieldEntry
	byField map[string]int
	byTable map[string]string
}

// Load reads and validates a knowledge base file.
func Load(path string) (*Base, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", apperrors.ErrKnowledgeBaseLoad, path, err)
	}
	base, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return base, nil
}

// Parse decodes and validates knowledge base content (JSON or YAML).
func Parse(data []byte) (*Base, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", apperrors.ErrKnowledgeBaseLoad, err)
	}
	return New(doc)
}

// New validates doc and builds the lookup indexes.
func New(doc Document) (*Base, error) {
	if len(doc.Tables) == 0 {
		return nil, fmt.Errorf("%w: no tables defined", apperrors.ErrKnowledgeBaseLoad)
	}

	b := &Base{
		meta:    doc.Meta,
		tables:  doc.Tables,
		byField: make(map[string]int),
		byTable: make(map[string]string),
	}

	for ti, table := range doc.Tables {
		tableName := strings.TrimSpace(table.Name)
		if tableName == "" {
			return nil, fmt.Errorf("%w: table %d has no name", apperrors.ErrKnowledgeBaseLoad, ti)
		}
		if strings.TrimSpace(table.Description) == "" {
			return nil, fmt.Errorf("%w: table %s has no description", apperrors.ErrKnowledgeBaseLoad, tableName)
		}
		if _, dup := b.byTable[strings.ToLower(tableName)]; dup {
			return nil, fmt.Errorf("%w: duplicate table %s", apperrors.ErrKnowledgeBaseLoad, tableName)
		}
		b.byTable[strings.ToLower(tableName)] = tableName

		for ci, col := range table.Columns {
			colName := strings.TrimSpace(col.Name)
			if colName == "" {
				return nil, fmt.Errorf("%w: table %s column %d has no name", apperrors.ErrKnowledgeBaseLoad, tableName, ci)
			}
			field := tableName + "." + colName
			if strings.TrimSpace(col.Description) == "" {
				return nil, fmt.Errorf("%w: field %s has no description", apperrors.ErrKnowledgeBaseLoad, field)
			}
			key := strings.ToLower(field)
			if _, dup := b.byField[key]; dup {
				return nil, fmt.Errorf("%w: duplicate field %s", apperrors.ErrKnowledgeBaseLoad, field)
			}
			b.byField[key] = len(b.fields)
			b.fields = append(b.fields, fieldEntry{
				table:  tableName,
				column: col,
				field:  field,
				alias:  dedupAliases(col.Aliases, colName, field),
			})
		}
	}

	return b, nil
}

// dedupAliases trims the declared aliases, appends the column and field
// names, and drops case-insensitive duplicates keeping the first spelling.
func dedupAliases(aliases []string, column, field string) []string {
	all := make([]string, 0, len(aliases)+2)
	all = append(all, aliases...)
	all = append(all, column, field)

	seen := make(map[string]struct{}, len(all))
	out := make([]string, 0, len(all))
	for _, a := range all {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		key := strings.ToLower(a)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, a)
	}
	return out
}

// Meta returns the file metadata.
func (b *Base) Meta() Meta {
	return b.meta
}

// Fields returns the whitelist of "table.column" fields in file order.
func (b *Base) Fields() []string {
	out := make([]string, len(b.fields))
	for i, f := range b.fields {
		out[i] = f.field
	}
	return out
}

// HasField reports whether field is whitelisted. Case-insensitive.
func (b *Base) HasField(field string) bool {
	_, ok := b.byField[strings.ToLower(strings.TrimSpace(field))]
	return ok
}

// CanonicalField returns the whitelisted spelling of field.
func (b *Base) CanonicalField(field string) (string, bool) {
	i, ok := b.byField[strings.ToLower(strings.TrimSpace(field))]
	if !ok {
		return "", false
	}
	return b.fields[i].field, true
}

// Column returns the column definition behind a whitelisted field.
func (b *Base) Column(field string) (Column, bool) {
	i, ok := b.byField[strings.ToLower(strings.TrimSpace(field))]
	if !ok {
		return Column{}, false
	}
	return b.fields[i].column, true
}

// IsNumericField reports whether field is whitelisted with a numeric type.
func (b *Base) IsNumericField(field string) bool {
	col, ok := b.Column(field)
	if !ok {
		return false
	}
	switch strings.ToLower(col.Type) {
	case "integer", "int", "bigint", "smallint", "decimal", "numeric", "float", "double", "real":
		return true
	}
	return false
}

// AliasPairs returns the alias list of every field.
func (b *Base) AliasPairs() []AliasPair {
	out := make([]AliasPair, len(b.fields))
	for i, f := range b.fields {
		out[i] = AliasPair{Field: f.field, Aliases: f.alias}
	}
	return out
}

// SchemaHints returns per-table descriptions for prompts.
func (b *Base) SchemaHints() []TableHint {
	hints := make([]TableHint, 0, len(b.tables))
	var current *TableHint
	for _, f := range b.fields {
		if current == nil || current.Table != f.table {
			hints = append(hints, TableHint{
				Table:            f.table,
				TableDescription: strings.TrimSpace(b.tableDescription(f.table)),
			})
			current = &hints[len(hints)-1]
		}
		current.Columns = append(current.Columns, ColumnHint{
			Field:            f.field,
			Type:             f.column.Type,
			FieldDescription: strings.TrimSpace(f.column.Description),
			Aliases:          f.alias,
		})
	}
	return hints
}

func (b *Base) tableDescription(name string) string {
	for _, t := range b.tables {
		if strings.TrimSpace(t.Name) == name {
			return t.Description
		}
	}
	return ""
}

// Summary returns the table and field counts.
func (b *Base) Summary() models.KnowledgeSummary {
	return models.KnowledgeSummary{
		TableCount: len(b.tables),
		FieldCount: len(b.fields),
	}
}
