package store

import (
	"fmt"
	"strings"

	"github.com/cerebro-dash/apiserver/types"
	"github.com/lib/pq"
)

// MetadataField names a column of account_meta that callers may update.
type MetadataField string

const (
	FieldCategory MetadataField = "category"
	FieldTags     MetadataField = "tags"
	FieldNotes    MetadataField = "notes"
)

// updatableMetadataFields is the closed set of columns a MetadataUpdate may
// touch, in the order SET clauses are emitted.
var updatableMetadataFields = []MetadataField{FieldCategory, FieldTags, FieldNotes}

// MetadataUpdate collects a partial update to an account_meta row. Only the
// fields that were set are written; everything else is left untouched.
type MetadataUpdate struct {
	category *types.Category
	tags     []string
	tagsSet  bool
	notes    *string
}

func NewMetadataUpdate() *MetadataUpdate {
	return &MetadataUpdate{}
}

func (u *MetadataUpdate) SetCategory(category types.Category) *MetadataUpdate {
	u.category = &category
	return u
}

func (u *MetadataUpdate) SetTags(tags []string) *MetadataUpdate {
	if tags == nil {
		tags = []string{}
	}
	u.tags = append([]string(nil), tags...)
	u.tagsSet = true
	return u
}

func (u *MetadataUpdate) SetNotes(notes string) *MetadataUpdate {
	u.notes = &notes
	return u
}

// Fields returns the fields present in the update.
func (u *MetadataUpdate) Fields() []MetadataField {
	fields := make([]MetadataField, 0, len(updatableMetadataFields))
	for _, field := range updatableMetadataFields {
		if u.has(field) {
			fields = append(fields, field)
		}
	}
	return fields
}

// Empty reports whether no field was set.
func (u *MetadataUpdate) Empty() bool {
	return len(u.Fields()) == 0
}

// Apply overlays the set fields onto meta.
func (u *MetadataUpdate) Apply(meta *types.AccountMetadata) {
	if u.category != nil {
		meta.Category = *u.category
	}
	if u.tagsSet {
		meta.Tags = append([]string{}, u.tags...)
	}
	if u.notes != nil {
		meta.Notes = *u.notes
	}
}

func (u *MetadataUpdate) has(field MetadataField) bool {
	switch field {
	case FieldCategory:
		return u.category != nil
	case FieldTags:
		return u.tagsSet
	case FieldNotes:
		return u.notes != nil
	default:
		return false
	}
}

func (u *MetadataUpdate) value(field MetadataField) (any, error) {
	switch field {
	case FieldCategory:
		if !u.category.Valid() {
			return nil, fmt.Errorf("invalid category %q", *u.category)
		}
		return string(*u.category), nil
	case FieldTags:
		return pq.Array(u.tags), nil
	case FieldNotes:
		return *u.notes, nil
	default:
		return nil, fmt.Errorf("field %q is not updatable", field)
	}
}

// build renders the SET clause with positional parameters starting at
// firstParam. updated_at is always refreshed.
func (u *MetadataUpdate) build(firstParam int) (string, []any, error) {
	fields := u.Fields()
	clauses := make([]string, 0, len(fields)+1)
	args := make([]any, 0, len(fields))
	for i, field := range fields {
		value, err := u.value(field)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, fmt.Sprintf("%s = $%d", field, firstParam+i))
		args = append(args, value)
	}
	clauses = append(clauses, "updated_at = NOW()")
	return strings.Join(clauses, ", "), args, nil
}
