package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// DrugInput holds the raw form values of a create or edit intent.
type DrugInput struct {
	BrandName      string `json:"BrandName"`
	ScientificName string `json:"ScientificName"`
	PurchaseDate   string `json:"PurchaseDate"`
	ExpirationDate string `json:"ExpirationDate"`
	PurchasePrice  string `json:"PurchasePrice"`
	SellingPrice   string `json:"SellingPrice"`
	Quantity       string `json:"Quantity"`
	Location       string `json:"Location"`
	Tags           string `json:"Tags"`
	Group          string `json:"Group"`
}

// UnmarshalJSON accepts each field as a string, a number or null. Tags may
// also be an array of strings. Keys missing from data keep their current
// value so an edit can be applied on top of a prefilled input.
func (in *DrugInput) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	targets := map[string]*string{
		"brandname":      &in.BrandName,
		"scientificname": &in.ScientificName,
		"purchasedate":   &in.PurchaseDate,
		"expirationdate": &in.ExpirationDate,
		"purchaseprice":  &in.PurchasePrice,
		"sellingprice":   &in.SellingPrice,
		"quantity":       &in.Quantity,
		"location":       &in.Location,
		"tags":           &in.Tags,
		"group":          &in.Group,
	}
	for key, value := range raw {
		name := strings.ToLower(key)
		target, ok := targets[name]
		if !ok {
			continue
		}
		text, err := formValue(value, name == "tags")
		if err != nil {
			return &ValidationError{Field: key, Message: "must be a string or a number"}
		}
		*target = text
	}
	return nil
}

func formValue(raw json.RawMessage, list bool) (string, error) {
	raw = bytes.TrimSpace(raw)
	switch {
	case len(raw) == 0, bytes.Equal(raw, []byte("null")):
		return "", nil
	case raw[0] == '"':
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	case raw[0] == '[' && list:
		var tags Tags
		if err := json.Unmarshal(raw, &tags); err != nil {
			return "", err
		}
		return tags.String(), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

// InputFromDrug prefills an edit form with the current values of d.
func InputFromDrug(d Drug) DrugInput {
	return DrugInput{
		BrandName:      d.BrandName,
		ScientificName: d.ScientificName,
		PurchaseDate:   d.PurchaseDate,
		ExpirationDate: d.ExpirationDate,
		PurchasePrice:  formatOptional(d.PurchasePrice),
		SellingPrice:   formatOptional(d.SellingPrice),
		Quantity:       formatOptional(d.Quantity),
		Location:       d.Location,
		Tags:           d.Tags.String(),
		Group:          d.Group,
	}
}

// Fields validates the input and converts it to its wire representation.
// Blank values become null and a blank group becomes DefaultGroup.
func (in DrugInput) Fields() (DrugFields, error) {
	purchase, err := parseAmount("PurchasePrice", in.PurchasePrice)
	if err != nil {
		return DrugFields{}, err
	}
	selling, err := parseAmount("SellingPrice", in.SellingPrice)
	if err != nil {
		return DrugFields{}, err
	}
	quantity, err := parseAmount("Quantity", in.Quantity)
	if err != nil {
		return DrugFields{}, err
	}

	group := strings.TrimSpace(in.Group)
	if group == "" {
		group = DefaultGroup
	}

	return DrugFields{
		BrandName:      optionalString(in.BrandName),
		ScientificName: optionalString(in.ScientificName),
		PurchaseDate:   optionalString(in.PurchaseDate),
		ExpirationDate: optionalString(in.ExpirationDate),
		PurchasePrice:  purchase,
		SellingPrice:   selling,
		Quantity:       quantity,
		Location:       optionalString(in.Location),
		Tags:           ParseTags(in.Tags),
		Group:          group,
	}, nil
}

func parseAmount(field, raw string) (*int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, &ValidationError{Field: field, Message: "must be a whole number"}
	}
	if value < 0 {
		return nil, &ValidationError{Field: field, Message: "must not be negative"}
	}
	return &value, nil
}

func optionalString(raw string) *string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	return &raw
}

func formatOptional(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}
