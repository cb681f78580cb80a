// cmd/tools/worker-generator/generator.go
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"suburbmates-workers/pkg/registry"
)

var errExists = errors.New("file already exists")

// WorkerData is what the scaffold templates see.
type WorkerData struct {
	Name            string
	PackageName     string
	TaskType        string
	Description     string
	Category        string
	Timeout         string
	Retries         int
	ErrorCodes      []string
	InputFields     []Field
	OutputFields    []Field
	InputSchemaJSON string
}

// Field is one struct field derived from a registry schema property.
type Field struct {
	Name     string
	JSONName string
	GoType   string
	JSONType string
}

func newWorkerData(act *registry.Activity) (*WorkerData, error) {
	inputs := fieldsFromSchema(act.InputSchema)
	schema, err := inputSchemaJSON(inputs)
	if err != nil {
		return nil, err
	}
	return &WorkerData{
		Name:            act.DisplayName,
		PackageName:     strings.ReplaceAll(act.ID, "-", ""),
		TaskType:        act.TaskType,
		Description:     act.Description,
		Category:        act.Category,
		Timeout:         act.Timeout,
		Retries:         act.Retries,
		ErrorCodes:      act.ErrorCodes,
		InputFields:     inputs,
		OutputFields:    fieldsFromSchema(act.OutputSchema),
		InputSchemaJSON: schema,
	}, nil
}

// fieldsFromSchema accepts either the registry shorthand ({"field": "type"})
// or a JSON Schema object with "properties". Fields are sorted by name.
func fieldsFromSchema(schema map[string]interface{}) []Field {
	props := schema
	if p, ok := schema["properties"].(map[string]interface{}); ok {
		props = p
	}

	fields := make([]Field, 0, len(props))
	for name, v := range props {
		var jsonType string
		switch t := v.(type) {
		case string:
			jsonType = t
		case map[string]interface{}:
			jsonType, _ = t["type"].(string)
		}
		fields = append(fields, Field{
			Name:     goFieldName(name),
			JSONName: name,
			GoType:   goType(jsonType),
			JSONType: jsonType,
		})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].JSONName < fields[j].JSONName })
	return fields
}

func goType(jsonType string) string {
	switch jsonType {
	case "string":
		return "string"
	case "integer":
		return "int"
	case "number":
		return "float64"
	case "boolean":
		return "bool"
	case "object":
		return "map[string]interface{}"
	case "array":
		return "[]interface{}"
	default:
		return "interface{}"
	}
}

func goFieldName(s string) string {
	if s == "" {
		return s
	}
	name := strings.ToUpper(s[:1]) + s[1:]
	if strings.HasSuffix(name, "Id") {
		name = strings.TrimSuffix(name, "Id") + "ID"
	}
	return name
}

func inputSchemaJSON(fields []Field) (string, error) {
	props := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		if f.JSONType == "" {
			props[f.JSONName] = map[string]interface{}{}
			continue
		}
		props[f.JSONName] = map[string]string{"type": f.JSONType}
	}
	data, err := json.MarshalIndent(map[string]interface{}{
		"type":       "object",
		"properties": props,
	}, "", "\t")
	if err != nil {
		return "", fmt.Errorf("build input schema: %w", err)
	}
	return string(data), nil
}

var scaffold = map[string]string{
	"config.go":       configTemplate,
	"models.go":       modelsTemplate,
	"handler.go":      handlerTemplate,
	"handler_test.go": testTemplate,
	"README.md":       readmeTemplate,
}

// Generate writes a worker package for act under root/<category>/<id> and
// returns the files it created. Existing files are left alone unless force
// is set.
func Generate(act *registry.Activity, root string, force bool) ([]string, error) {
	data, err := newWorkerData(act)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(root, strings.ToLower(act.Category), act.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}

	names := make([]string, 0, len(scaffold))
	for name := range scaffold {
		names = append(names, name)
	}
	sort.Strings(names)

	funcs := template.FuncMap{"bt": func() string { return "`" }}

	var written []string
	for _, name := range names {
		path := filepath.Join(dir, name)
		if !force {
			if _, err := os.Stat(path); err == nil {
				return written, fmt.Errorf("%s: %w", path, errExists)
			}
		}

		tmpl, err := template.New(name).Funcs(funcs).Parse(scaffold[name])
		if err != nil {
			return written, fmt.Errorf("parse template %s: %w", name, err)
		}

		var sb strings.Builder
		if err := tmpl.Execute(&sb, data); err != nil {
			return written, fmt.Errorf("render %s: %w", name, err)
		}
		if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}
