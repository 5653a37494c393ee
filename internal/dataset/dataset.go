package dataset

import (
	"maps"
	"slices"
)

// Required column names.
const (
	ColumnID        = "id"
	ColumnFirstName = "first_name"
	ColumnLastName  = "last_name"
)

// Record is one row, keyed by column name. Values are always text.
type Record map[string]string

// ID returns the record identifier.
func (r Record) ID() string {
	return r[ColumnID]
}

// Clone returns a copy of the record.
func (r Record) Clone() Record {
	return maps.Clone(r)
}

// Dataset is the full table: a fixed header and the rows in file order.
type Dataset struct {
	Columns []string
	Records []Record
}

// Clone returns a deep copy of the dataset.
func (d *Dataset) Clone() *Dataset {
	out := &Dataset{
		Columns: slices.Clone(d.Columns),
		Records: make([]Record, len(d.Records)),
	}
	for i, r := range d.Records {
		out.Records[i] = r.Clone()
	}
	return out
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	return len(d.Records)
}

// HasColumn reports whether name is part of the header.
func (d *Dataset) HasColumn(name string) bool {
	return slices.Contains(d.Columns, name)
}

// Index returns the position of the record with the given id, or -1.
func (d *Dataset) Index(id string) int {
	return slices.IndexFunc(d.Records, func(r Record) bool { return r.ID() == id })
}

// Get returns the record with the given id.
func (d *Dataset) Get(id string) (Record, bool) {
	i := d.Index(id)
	if i < 0 {
		return nil, false
	}
	return d.Records[i], true
}

// Remove deletes the record with the given id. It returns false if no record
// matched.
func (d *Dataset) Remove(id string) bool {
	i := d.Index(id)
	if i < 0 {
		return false
	}
	d.Records = slices.Delete(d.Records, i, i+1)
	return true
}
