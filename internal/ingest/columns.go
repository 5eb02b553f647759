package ingest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ColumnMap names the CSV header that feeds each contact field.
type ColumnMap struct {
	Status      string `yaml:"status"`
	TotalCalls  string `yaml:"total_calls"`
	FirstName   string `yaml:"first_name"`
	LastName    string `yaml:"last_name"`
	PhoneNumber string `yaml:"phone_number"`
	Email       string `yaml:"email"`
}

// DefaultColumns matches the headers of the call-center CSV exports.
func DefaultColumns() ColumnMap {
	return ColumnMap{
		Status:      "Nom du statut",
		TotalCalls:  "Nombre de fois appelé",
		FirstName:   "Prénom",
		LastName:    "Nom",
		PhoneNumber: "Téléphone",
		Email:       "Email",
	}
}

// LoadColumnMap reads a YAML column mapping. Fields left out of the file
// keep their default header.
func LoadColumnMap(path string) (ColumnMap, error) {
	cols := DefaultColumns()
	if path == "" {
		return cols, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cols, fmt.Errorf("read column map: %w", err)
	}
	if err := yaml.Unmarshal(data, &cols); err != nil {
		return cols, fmt.Errorf("parse column map: %w", err)
	}
	if cols.PhoneNumber == "" {
		return cols, fmt.Errorf("column map %s: phone_number header is required", path)
	}
	return cols, nil
}
