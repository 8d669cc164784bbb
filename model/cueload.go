package model

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// ParseCUE decodes model declarations from CUE source. The expected shape
// matches the YAML loader:
//
//	model: {
//	    name:       "users"
//	    collection: "users"
//	    fields: [
//	        {name: "age", type: "int"},
//	        {name: "status", type: "text", storage: "st"},
//	    ]
//	}
//
// or a top-level `models: [...]` list. CUE constraints in the file are
// evaluated before decoding, so declaration files can carry their own
// validation.
func ParseCUE(data []byte, filename string) ([]*Model, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile model cue: %w", err)
	}
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("validate model cue: %w", err)
	}

	var file declFile
	if err := v.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode model cue: %w", err)
	}
	models := file.all()
	if len(models) == 0 {
		return nil, fmt.Errorf("model cue declares no models")
	}
	for _, m := range models {
		if err := m.Validate(); err != nil {
			return nil, err
		}
	}
	return models, nil
}

// LoadCUE reads model declarations from a CUE file.
func LoadCUE(path string) ([]*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model file: %w", err)
	}
	return ParseCUE(data, path)
}
