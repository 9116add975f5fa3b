package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/sharpmind/trainer-hub/internal/domain/promotion"
)

// criteriaSchemaURL identifies the embedded schema inside the compiler.
const criteriaSchemaURL = "schema://criteria-table.json"

// criteriaSchema describes the promotion criteria file. Cross references
// (levels present in their progression) are checked by promotion.NewCriteriaTable.
const criteriaSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"additionalProperties": false,
	"required": ["progressions", "criteria"],
	"properties": {
		"progressions": {
			"type": "object",
			"propertyNames": {"enum": ["abacus", "vedic", "logic", "iq-games"]},
			"additionalProperties": {
				"type": "array",
				"minItems": 1,
				"uniqueItems": true,
				"items": {"type": "string", "minLength": 1}
			}
		},
		"criteria": {
			"type": "object",
			"propertyNames": {"enum": ["abacus", "vedic", "logic", "iq-games"]},
			"additionalProperties": {
				"type": "object",
				"additionalProperties": {"$ref": "#/$defs/criteria"}
			}
		}
	},
	"$defs": {
		"criteria": {
			"type": "object",
			"additionalProperties": false,
			"required": [
				"minimum_accuracy",
				"maximum_average_time",
				"required_successful_sessions",
				"minimum_sessions_at_level",
				"consistency_threshold"
			],
			"properties": {
				"minimum_accuracy": {"type": "number", "exclusiveMinimum": 0, "maximum": 100},
				"maximum_average_time": {"type": "number", "exclusiveMinimum": 0},
				"required_successful_sessions": {"type": "integer", "minimum": 1},
				"minimum_sessions_at_level": {"type": "integer", "minimum": 1},
				"consistency_threshold": {"type": "number", "minimum": 0, "maximum": 100}
			}
		}
	}
}`

var (
	compiledCriteria     *jsonschema.Schema
	compiledCriteriaErr  error
	compiledCriteriaOnce sync.Once
)

func criteriaSchemaCompiled() (*jsonschema.Schema, error) {
	compiledCriteriaOnce.Do(func() {
		var doc any
		if err := json.Unmarshal([]byte(criteriaSchema), &doc); err != nil {
			compiledCriteriaErr = fmt.Errorf("parse criteria schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(criteriaSchemaURL, doc); err != nil {
			compiledCriteriaErr = fmt.Errorf("add criteria schema: %w", err)
			return
		}
		compiledCriteria, compiledCriteriaErr = c.Compile(criteriaSchemaURL)
	})
	return compiledCriteria, compiledCriteriaErr
}

// ValidateCriteriaDocument checks raw JSON against the criteria schema.
func ValidateCriteriaDocument(raw []byte) error {
	schema, err := criteriaSchemaCompiled()
	if err != nil {
		return err
	}

	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := schema.Validate(parsed); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// LoadCriteriaTable returns the table configured by TRAINING_CRITERIA_FILE,
// or the built-in table when no file is set.
func (c TrainingConfig) LoadCriteriaTable() (*promotion.CriteriaTable, error) {
	if c.CriteriaFile == "" {
		return promotion.DefaultTable(), nil
	}
	return LoadCriteriaFile(c.CriteriaFile)
}

// LoadCriteriaFile reads, validates and builds a criteria table.
func LoadCriteriaFile(path string) (*promotion.CriteriaTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read criteria file: %w", err)
	}
	table, err := ParseCriteriaDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("criteria file %s: %w", path, err)
	}
	return table, nil
}

// ParseCriteriaDocument validates raw against the schema and builds a table.
func ParseCriteriaDocument(raw []byte) (*promotion.CriteriaTable, error) {
	if err := ValidateCriteriaDocument(raw); err != nil {
		return nil, err
	}
	return promotion.LoadCriteriaJSON(bytes.NewReader(raw))
}
