package model

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// PartitionField is one period or dimension of a partition, e.g. aar=2024.
type PartitionField struct {
	Name  string `yaml:"name" json:"name"`
	Value string `yaml:"value" json:"value"`
}

// Partition identifies the slice of data one engine instance operates on.
//
// Fields keep their declaration order. A Partition is immutable: all
// accessors return copies.
type Partition struct {
	fields []PartitionField
}

// NewPartition builds a partition from ordered fields.
// Names must be non-empty, unique and usable as column names.
func NewPartition(fields ...PartitionField) (Partition, error) {
	if len(fields) == 0 {
		return Partition{}, fmt.Errorf("partition must have at least one field")
	}
	seen := make(map[string]bool, len(fields))
	cp := make([]PartitionField, len(fields))
	for i, f := range fields {
		if !IsIdentifier(f.Name) {
			return Partition{}, fmt.Errorf("partition field %d: invalid column name %q", i, f.Name)
		}
		if seen[f.Name] {
			return Partition{}, fmt.Errorf("partition field %q declared twice", f.Name)
		}
		seen[f.Name] = true
		cp[i] = f
	}
	return Partition{fields: cp}, nil
}

// MustPartition is NewPartition for fixtures. Arguments alternate name, value.
func MustPartition(nameValues ...string) Partition {
	if len(nameValues)%2 != 0 {
		panic("MustPartition: odd number of arguments")
	}
	var fields []PartitionField
	for i := 0; i < len(nameValues); i += 2 {
		fields = append(fields, PartitionField{Name: nameValues[i], Value: nameValues[i+1]})
	}
	p, err := NewPartition(fields...)
	if err != nil {
		panic(err)
	}
	return p
}

// IsZero reports whether the partition has no fields.
func (p Partition) IsZero() bool {
	return len(p.fields) == 0
}

// Fields returns the ordered fields.
func (p Partition) Fields() []PartitionField {
	cp := make([]PartitionField, len(p.fields))
	copy(cp, p.fields)
	return cp
}

// Columns returns the ordered field names.
func (p Partition) Columns() []string {
	cols := make([]string, len(p.fields))
	for i, f := range p.fields {
		cols[i] = f.Name
	}
	return cols
}

// Values returns the ordered field values.
func (p Partition) Values() []string {
	vals := make([]string, len(p.fields))
	for i, f := range p.fields {
		vals[i] = f.Value
	}
	return vals
}

// Select returns the partition as a filter accepting exactly its values.
func (p Partition) Select() PartitionSelect {
	sel := PartitionSelect{}
	for _, f := range p.fields {
		sel = sel.With(f.Name, f.Value)
	}
	return sel
}

// String renders the partition as "aar=2024,skjema=RA-0174".
func (p Partition) String() string {
	parts := make([]string, len(p.fields))
	for i, f := range p.fields {
		parts[i] = f.Name + "=" + f.Value
	}
	return strings.Join(parts, ",")
}

// UnmarshalYAML decodes a mapping node, keeping the document order of its keys.
//
//	partition:
//	  aar: "2024"
//	  skjema: RA-0174
func (p *Partition) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: partition must be a mapping", node.Line)
	}
	var fields []PartitionField
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: partition value for %q must be a scalar", v.Line, k.Value)
		}
		fields = append(fields, PartitionField{Name: k.Value, Value: v.Value})
	}
	parsed, err := NewPartition(fields...)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*p = parsed
	return nil
}

// MarshalYAML encodes the partition as an ordered mapping.
func (p Partition) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, f := range p.fields {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: f.Name},
			&yaml.Node{Kind: yaml.ScalarNode, Value: f.Value, Style: yaml.DoubleQuotedStyle},
		)
	}
	return node, nil
}

// PartitionSelect maps column names to the list of allowed values.
// Columns keep insertion order so generated statements are deterministic.
type PartitionSelect struct {
	columns []string
	values  map[string][]string
}

// With returns a copy of the select with value added to column's allowed list.
func (s PartitionSelect) With(column string, values ...string) PartitionSelect {
	out := PartitionSelect{
		columns: append([]string(nil), s.columns...),
		values:  make(map[string][]string, len(s.values)+1),
	}
	for k, v := range s.values {
		out.values[k] = append([]string(nil), v...)
	}
	if _, ok := out.values[column]; !ok {
		out.columns = append(out.columns, column)
	}
	out.values[column] = append(out.values[column], values...)
	return out
}

// Columns returns the filtered columns in insertion order.
func (s PartitionSelect) Columns() []string {
	return append([]string(nil), s.columns...)
}

// Values returns the allowed values for a column.
func (s PartitionSelect) Values(column string) []string {
	return append([]string(nil), s.values[column]...)
}

// Len returns the number of filtered columns.
func (s PartitionSelect) Len() int {
	return len(s.columns)
}

// IsIdentifier reports whether name is safe to use unquoted as a SQL
// table or column name: ASCII letters, digits and underscores, not starting
// with a digit.
func IsIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
