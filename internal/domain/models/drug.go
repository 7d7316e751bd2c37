package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultGroup is assigned to drugs created or received without a group.
const DefaultGroup = "Unknown"

// Drug is one inventory record as confirmed by the backend.
type Drug struct {
	ID             string `json:"id"`
	BrandName      string `json:"BrandName"`
	ScientificName string `json:"ScientificName,omitempty"`
	PurchaseDate   string `json:"PurchaseDate,omitempty"`
	ExpirationDate string `json:"ExpirationDate,omitempty"`
	PurchasePrice  *int64 `json:"PurchasePrice"`
	SellingPrice   *int64 `json:"SellingPrice"`
	Quantity       *int64 `json:"Quantity"`
	Location       string `json:"Location,omitempty"`
	Tags           Tags   `json:"Tags"`
	Group          string `json:"Group"`
}

// Normalize fills the defaults the backend may leave out.
func (d *Drug) Normalize() {
	if strings.TrimSpace(d.Group) == "" {
		d.Group = DefaultGroup
	}
}

// DrugFields is the mutable part of a drug as it travels to the backend on
// create and update. Nil pointers are transmitted as JSON null.
type DrugFields struct {
	BrandName      *string `json:"BrandName"`
	ScientificName *string `json:"ScientificName"`
	PurchaseDate   *string `json:"PurchaseDate"`
	ExpirationDate *string `json:"ExpirationDate"`
	PurchasePrice  *int64  `json:"PurchasePrice"`
	SellingPrice   *int64  `json:"SellingPrice"`
	Quantity       *int64  `json:"Quantity"`
	Location       *string `json:"Location"`
	Tags           Tags    `json:"Tags"`
	Group          string  `json:"Group"`
}

// Tags is an ordered tag set. The backend accepts a single comma separated
// string and answers with either a string or an array.
type Tags []string

// ParseTags splits a comma separated list, dropping blanks.
func ParseTags(raw string) Tags {
	var tags Tags
	for _, part := range strings.Split(raw, ",") {
		if tag := strings.TrimSpace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// String joins the tags the way they are typed in the edit form.
func (t Tags) String() string {
	return strings.Join(t, ", ")
}

// MarshalJSON encodes the tags as one delimited string, or null when empty.
func (t Tags) MarshalJSON() ([]byte, error) {
	if len(t) == 0 {
		return []byte("null"), nil
	}
	return json.Marshal(t.String())
}

// UnmarshalJSON accepts null, a delimited string or an array of strings.
func (t *Tags) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		*t = nil
		return nil
	case trimmed[0] == '"':
		var raw string
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return err
		}
		*t = ParseTags(raw)
		return nil
	case trimmed[0] == '[':
		var list []string
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return err
		}
		*t = ParseTags(strings.Join(list, ","))
		return nil
	default:
		return fmt.Errorf("tags: unsupported json value %s", string(trimmed))
	}
}
