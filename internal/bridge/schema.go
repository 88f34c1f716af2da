package bridge

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// SchemaVersion is the only record version this build reads and writes.
const SchemaVersion = 1

var (
	// ErrInvalidPayload is returned for records that fail schema validation.
	ErrInvalidPayload = errors.New("bridge: invalid payload")

	// ErrUnsupportedVersion is returned for records of an unknown schema version.
	ErrUnsupportedVersion = errors.New("bridge: unsupported schema version")
)

//go:embed schema/*.json
var schemaFS embed.FS

const (
	eventBatchSchemaID  = "https://focuspact.dev/schema/event-batch-v1.schema.json"
	usageReportSchemaID = "https://focuspact.dev/schema/usage-report-v1.schema.json"
)

var (
	schemasOnce       sync.Once
	schemasErr        error
	eventBatchSchema  *jsonschema.Schema
	usageReportSchema *jsonschema.Schema
)

func loadSchemas() error {
	schemasOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020

		for id, file := range map[string]string{
			eventBatchSchemaID:  "schema/event-batch-v1.schema.json",
			usageReportSchemaID: "schema/usage-report-v1.schema.json",
		} {
			data, err := schemaFS.ReadFile(file)
			if err != nil {
				schemasErr = fmt.Errorf("read schema %s: %w", file, err)
				return
			}
			if err := compiler.AddResource(id, bytes.NewReader(data)); err != nil {
				schemasErr = fmt.Errorf("add schema resource %s: %w", file, err)
				return
			}
		}

		if eventBatchSchema, schemasErr = compiler.Compile(eventBatchSchemaID); schemasErr != nil {
			return
		}
		usageReportSchema, schemasErr = compiler.Compile(usageReportSchemaID)
	})
	return schemasErr
}

// validate checks the version marker and then the full schema of data.
func validate(schema func() *jsonschema.Schema, data []byte) error {
	if err := loadSchemas(); err != nil {
		return err
	}

	if !gjson.ValidBytes(data) {
		return fmt.Errorf("%w: malformed JSON", ErrInvalidPayload)
	}

	version := gjson.GetBytes(data, "schema_version")
	if !version.Exists() {
		return fmt.Errorf("%w: missing schema_version", ErrInvalidPayload)
	}
	if version.Type != gjson.Number || version.Int() != SchemaVersion {
		return fmt.Errorf("%w: %s", ErrUnsupportedVersion, version.Raw)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var instance any
	if err := dec.Decode(&instance); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if err := schema().Validate(instance); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
