package domain

import (
	"encoding/json"
	"fmt"
)

// ID is a backend primary key. Users and comments carry integer keys while
// posts, categories and tags carry uuids; both decode into the same form.
type ID string

func (id ID) String() string { return string(id) }

// Numeric reports whether id is a canonical non-negative integer.
func (id ID) Numeric() bool {
	if id == "" || len(id) > 18 || (len(id) > 1 && id[0] == '0') {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < '0' || id[i] > '9' {
			return false
		}
	}
	return true
}

// Less orders integer keys numerically and everything else lexically.
func (id ID) Less(other ID) bool {
	if id.Numeric() && other.Numeric() && len(id) != len(other) {
		return len(id) < len(other)
	}
	return id < other
}

// MarshalJSON writes integer keys back as JSON numbers.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.Numeric() {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id *ID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	if _, err := n.Int64(); err != nil {
		return fmt.Errorf("id %s is not an integer", n)
	}
	*id = ID(n.String())
	return nil
}
