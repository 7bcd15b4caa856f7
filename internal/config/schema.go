package config

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
)

//go:embed schema.cue
var schemaSource string

// ValidationError is one problem found in a configuration file.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s: %s", e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every problem found in one file.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (es ValidationErrors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("invalid configuration:\n  %s", strings.Join(msgs, "\n  "))
}

// checkSchema unifies the YAML document with #Config.
func checkSchema(filename string, data []byte) ValidationErrors {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return ValidationErrors{{Field: "schema", Message: err.Error()}}
	}

	file, err := cueyaml.Extract(filename, data)
	if err != nil {
		return convertCUEError(filename, "yaml", err)
	}
	doc := ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return convertCUEError(filename, "yaml", err)
	}

	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(doc)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return convertCUEError(filename, "", err)
	}
	return nil
}

// convertCUEError flattens a CUE error list, keeping the data-file line of
// each error when CUE reports one.
func convertCUEError(filename, field string, err error) ValidationErrors {
	var out ValidationErrors
	for _, e := range cueerrors.Errors(err) {
		ve := ValidationError{Field: field}
		if path := e.Path(); len(path) > 0 {
			ve.Field = strings.TrimPrefix(strings.Join(path, "."), "#Config.")
		}
		if ve.Field == "" {
			ve.Field = "config"
		}
		format, args := e.Msg()
		ve.Message = fmt.Sprintf(format, args...)
		for _, pos := range cueerrors.Positions(e) {
			if pos.Filename() == filename {
				ve.Line = pos.Line()
				break
			}
		}
		out = append(out, ve)
	}
	if len(out) == 0 {
		out = append(out, ValidationError{Field: "config", Message: err.Error()})
	}
	return out
}
