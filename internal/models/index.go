package models

import (
	"encoding/json"
	"fmt"
)

// ProjectIndex is the per-owner listing of projects and their last known
// status. Entries are positional arrays: the first element is the project
// name and the last is the status; anything in between is carried through
// untouched, as are unknown top-level keys.
type ProjectIndex struct {
	Entries []IndexEntry
	extra   map[string]json.RawMessage
}

// IndexEntry is one row of a ProjectIndex.
type IndexEntry struct {
	Name   string
	Status Status
	fields []json.RawMessage
}

// UnmarshalJSON decodes the positional index format.
func (idx *ProjectIndex) UnmarshalJSON(data []byte) error {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return err
	}
	raw, ok := top["projects"]
	if !ok {
		return fmt.Errorf("missing projects key")
	}
	var projects []json.RawMessage
	if err := json.Unmarshal(raw, &projects); err != nil {
		return fmt.Errorf("projects: %w", err)
	}
	delete(top, "projects")

	entries := make([]IndexEntry, 0, len(projects))
	for i, row := range projects {
		var fields []json.RawMessage
		if err := json.Unmarshal(row, &fields); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
		if len(fields) < 2 {
			return fmt.Errorf("entry %d: expected at least 2 fields, got %d", i, len(fields))
		}
		var name string
		if err := json.Unmarshal(fields[0], &name); err != nil {
			return fmt.Errorf("entry %d: name: %w", i, err)
		}
		var status int
		if err := json.Unmarshal(fields[len(fields)-1], &status); err != nil {
			return fmt.Errorf("entry %d: status: %w", i, err)
		}
		entries = append(entries, IndexEntry{Name: name, Status: Status(status), fields: fields})
	}

	idx.Entries = entries
	idx.extra = top
	return nil
}

// MarshalJSON writes the index back, replacing only the status column.
func (idx ProjectIndex) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(idx.extra)+1)
	for k, v := range idx.extra {
		out[k] = v
	}

	rows := make([][]json.RawMessage, 0, len(idx.Entries))
	for _, e := range idx.Entries {
		rows = append(rows, e.row())
	}
	out["projects"] = rows
	return json.Marshal(out)
}

func (e IndexEntry) row() []json.RawMessage {
	name, _ := json.Marshal(e.Name)
	status, _ := json.Marshal(int(e.Status))
	if len(e.fields) < 2 {
		return []json.RawMessage{name, status}
	}
	row := make([]json.RawMessage, len(e.fields))
	copy(row, e.fields)
	row[0] = name
	row[len(row)-1] = status
	return row
}

// Find returns the entry for a project name.
func (idx *ProjectIndex) Find(name string) (*IndexEntry, bool) {
	for i := range idx.Entries {
		if idx.Entries[i].Name == name {
			return &idx.Entries[i], true
		}
	}
	return nil, false
}
