package models

import "time"

// Field names used in Mutation.ChangedFields and in the resolver's rule
// table. Every mergeable Item attribute has an entry here.
const (
	FieldName     = "name"
	FieldQuantity = "quantity"
	FieldCategory = "category"
	FieldNotes    = "notes"
	FieldGotten   = "gotten"
)

// AllFields lists every mergeable field in rule-table order.
var AllFields = []string{FieldGotten, FieldNotes, FieldName, FieldQuantity, FieldCategory}

// Item is a single entry of a shared list. It is owned by the store and is
// mutated only through applied Mutations; Version increments monotonically
// on every server-accepted change.
type Item struct {
	ID        string    `json:"id"`
	ListID    string    `json:"list_id"`
	Name      string    `json:"name"`
	Quantity  int64     `json:"quantity"`
	Category  string    `json:"category"`
	Notes     string    `json:"notes"`
	Gotten    bool      `json:"gotten"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy string    `json:"updated_by"`
}

// Field returns the value of the named mergeable field.
// Unknown names return nil.
func (i Item) Field(name string) any {
	switch name {
	case FieldName:
		return i.Name
	case FieldQuantity:
		return i.Quantity
	case FieldCategory:
		return i.Category
	case FieldNotes:
		return i.Notes
	case FieldGotten:
		return i.Gotten
	default:
		return nil
	}
}

// SetField assigns the named mergeable field. Values of the wrong dynamic
// type are ignored, as are unknown names.
func (i *Item) SetField(name string, value any) {
	switch name {
	case FieldName:
		if v, ok := value.(string); ok {
			i.Name = v
		}
	case FieldQuantity:
		switch v := value.(type) {
		case int64:
			i.Quantity = v
		case int:
			i.Quantity = int64(v)
		case float64: // json decoding produces float64 for numbers
			i.Quantity = int64(v)
		}
	case FieldCategory:
		if v, ok := value.(string); ok {
			i.Category = v
		}
	case FieldNotes:
		if v, ok := value.(string); ok {
			i.Notes = v
		}
	case FieldGotten:
		if v, ok := value.(bool); ok {
			i.Gotten = v
		}
	}
}

// IsKnownField reports whether name is one of the mergeable Item fields.
func IsKnownField(name string) bool {
	for _, f := range AllFields {
		if f == name {
			return true
		}
	}
	return false
}
