package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/docql/docql/model"
)

// LoadModels reads every model declaration under path. A directory loads
// all *.yaml and *.cue files in name order; a file loads just itself.
func LoadModels(path string) (*model.Registry, int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, 0, &ExitError{Code: ExitCommandError, Message: "model path not found", Err: err}
	}

	var files []string
	if info.IsDir() {
		for _, pattern := range []string{"*.yaml", "*.yml", "*.cue"} {
			matches, err := filepath.Glob(filepath.Join(path, pattern))
			if err != nil {
				return nil, 0, err
			}
			files = append(files, matches...)
		}
		sort.Strings(files)
		if len(files) == 0 {
			return nil, 0, &ExitError{Code: ExitCommandError, Message: fmt.Sprintf("no model files in %s", path)}
		}
	} else {
		files = []string{path}
	}

	var models []*model.Model
	for _, f := range files {
		var (
			loaded []*model.Model
			err    error
		)
		if filepath.Ext(f) == ".cue" {
			loaded, err = model.LoadCUE(f)
		} else {
			loaded, err = model.LoadYAML(f)
		}
		if err != nil {
			return nil, 0, &ExitError{Code: ExitFailure, Message: fmt.Sprintf("load %s", f), Err: err}
		}
		models = append(models, loaded...)
	}

	registry, err := model.NewRegistry(models...)
	if err != nil {
		return nil, 0, &ExitError{Code: ExitFailure, Message: "model registry", Err: err}
	}
	return registry, len(files), nil
}
