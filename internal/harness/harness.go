// Package harness runs declarative conformance scenarios: load model
// declarations, seed an in-memory store, execute a list of queries and
// validate the mapped rows. Golden files pin the compiled artifact and
// the row stream of every step, so a drift in either the compiler or the
// result mapper shows up as a diff.
package harness

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/docql/docql/domain"
	"github.com/docql/docql/memdoc"
	"github.com/docql/docql/model"
	"github.com/docql/docql/mongodoc"
	"github.com/docql/docql/query"
)

// StepTrace records one executed query step for golden comparison.
type StepTrace struct {
	Name     string           `json:"name"`
	Artifact string           `json:"artifact,omitempty"`
	Rows     []map[string]any `json:"rows,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// Result is the outcome of running a scenario.
type Result struct {
	Pass   bool        `json:"pass"`
	Trace  []StepTrace `json:"trace"`
	Errors []string    `json:"errors,omitempty"`
}

func (r *Result) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

// Run executes a scenario against a fresh in-memory store.
func Run(s *Scenario) (*Result, error) {
	registry, err := LoadRegistry(s)
	if err != nil {
		return nil, err
	}

	store := memdoc.NewStore()
	backend := mongodoc.New()
	for name, docs := range s.Data {
		m, ok := registry.Get(name)
		if !ok {
			return nil, fmt.Errorf("data references unknown model %q", name)
		}
		for i, vals := range docs {
			converted, err := convertDocument(m, vals)
			if err != nil {
				return nil, fmt.Errorf("data %s[%d]: %w", name, i, err)
			}
			wire, err := mongodoc.EncodeDocument(m, converted)
			if err != nil {
				return nil, fmt.Errorf("data %s[%d]: %w", name, i, err)
			}
			store.Load(m.Collection, wire)
		}
	}

	engine := query.NewEngine(store, backend)
	result := &Result{Pass: true}

	for _, step := range s.Queries {
		trace := runStep(registry, engine, backend, step)
		result.Trace = append(result.Trace, trace)
		checkExpectation(result, step, trace)
	}
	if leaked := store.Leaked(); leaked != 0 {
		result.addError("%d connections leaked", leaked)
	}
	return result, nil
}

func runStep(registry *model.Registry, engine *query.Engine, backend *mongodoc.Backend, step QueryStep) StepTrace {
	trace := StepTrace{Name: step.Name}

	spec, err := BuildSpec(registry, step)
	if err != nil {
		trace.Error = err.Error()
		return trace
	}

	artifact, err := backend.Compile(spec)
	if err != nil {
		trace.Error = err.Error()
		return trace
	}
	if trace.Artifact, err = artifact.ExtJSON(); err != nil {
		trace.Error = err.Error()
		return trace
	}

	ctx := context.Background()
	rows, err := engine.Execute(ctx, spec)
	if err != nil {
		trace.Error = err.Error()
		return trace
	}
	recs, err := rows.All(ctx)
	if err != nil {
		trace.Error = err.Error()
		return trace
	}
	trace.Rows = make([]map[string]any, len(recs))
	for i, rec := range recs {
		trace.Rows[i] = rec.Map()
	}
	return trace
}

func checkExpectation(result *Result, step QueryStep, trace StepTrace) {
	exp := step.Expect
	if exp == nil {
		if trace.Error != "" {
			result.addError("step %s failed: %s", step.Name, trace.Error)
		}
		return
	}
	if exp.Error != "" {
		if trace.Error == "" {
			result.addError("step %s: expected error containing %q, got none", step.Name, exp.Error)
		} else if !strings.Contains(trace.Error, exp.Error) {
			result.addError("step %s: error %q does not contain %q", step.Name, trace.Error, exp.Error)
		}
		return
	}
	if trace.Error != "" {
		result.addError("step %s failed: %s", step.Name, trace.Error)
		return
	}
	if exp.Count != nil && len(trace.Rows) != *exp.Count {
		result.addError("step %s: expected %d rows, got %d", step.Name, *exp.Count, len(trace.Rows))
	}
	if exp.Rows != nil {
		if len(trace.Rows) < len(exp.Rows) {
			result.addError("step %s: expected at least %d rows, got %d", step.Name, len(exp.Rows), len(trace.Rows))
			return
		}
		for i, want := range exp.Rows {
			for field, wantVal := range want {
				got := trace.Rows[i][field]
				if !looseEqual(got, wantVal) {
					result.addError("step %s row %d: field %s = %v, want %v", step.Name, i, field, got, wantVal)
				}
			}
		}
	}
}

// looseEqual compares a mapped value against a YAML literal: numbers
// compare by value across int, float and decimal, timestamps against
// RFC 3339 strings.
func looseEqual(got, want any) bool {
	if got == nil || want == nil {
		return got == nil && want == nil
	}
	if gd, ok := toDecimal(got); ok {
		if wd, ok := toDecimal(want); ok {
			return gd.Equal(wd)
		}
	}
	if ts, ok := got.(time.Time); ok {
		if s, ok := want.(string); ok {
			parsed, err := time.Parse(time.RFC3339, s)
			return err == nil && ts.Equal(parsed)
		}
	}
	return fmt.Sprintf("%v", got) == fmt.Sprintf("%v", want)
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case float64:
		return decimal.NewFromFloat(n), true
	case decimal.Decimal:
		return n, true
	}
	return decimal.Decimal{}, false
}

// LoadRegistry loads the scenario's model declarations into a registry.
func LoadRegistry(s *Scenario) (*model.Registry, error) {
	var models []*model.Model
	for _, rel := range s.Models {
		path := rel
		if !filepath.IsAbs(path) {
			path = filepath.Join(s.dir, rel)
		}
		var (
			loaded []*model.Model
			err    error
		)
		switch filepath.Ext(path) {
		case ".cue":
			loaded, err = model.LoadCUE(path)
		default:
			loaded, err = model.LoadYAML(path)
		}
		if err != nil {
			return nil, err
		}
		models = append(models, loaded...)
	}
	return model.NewRegistry(models...)
}

// convertDocument maps YAML literals to the caller-visible types the
// declared fields expect: RFC 3339 strings to timestamps, numbers and
// strings to decimals, integers widened.
func convertDocument(m *model.Model, vals map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(vals))
	for name, v := range vals {
		f, ok := m.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown field %q", name)
		}
		cv, err := convertValue(f.Type, v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		out[name] = cv
	}
	return out, nil
}

func convertValue(t model.FieldType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case model.TypeDateTime:
		s, ok := v.(string)
		if !ok {
			return v, nil
		}
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, err
		}
		return ts, nil
	case model.TypeDecimal:
		switch n := v.(type) {
		case string:
			return decimal.NewFromString(n)
		case int:
			return decimal.NewFromInt(int64(n)), nil
		case float64:
			return decimal.NewFromFloat(n), nil
		}
	case model.TypeInt:
		if n, ok := v.(int); ok {
			return int64(n), nil
		}
	case model.TypeList:
		if items, ok := v.([]any); ok {
			return items, nil
		}
	}
	return v, nil
}

// BuildSpec translates a query step into a built specification.
func BuildSpec(registry *model.Registry, step QueryStep) (*query.Spec, error) {
	m, ok := registry.Get(step.Model)
	if !ok {
		return nil, fmt.Errorf("unknown model %q", step.Model)
	}
	b := query.NewBuilder(m)

	terms, err := filterTerms(m, step.Filter)
	if err != nil {
		return nil, err
	}
	b.Filter(terms...)

	if step.Select != nil {
		b.Select(step.Select...)
	}
	for _, key := range step.OrderBy {
		b.OrderBy(key.Field, direction(key.Dir))
	}
	if step.Limit != nil {
		b.Limit(*step.Limit)
	}
	if step.Offset != nil {
		b.Offset(*step.Offset)
	}

	if len(step.GroupBy) > 0 || len(step.Metrics) > 0 {
		g := b.GroupBy(step.GroupBy...)
		for _, mt := range step.Metrics {
			if mt.Fn == "count" {
				g.Count(mt.Alias)
			} else {
				g.Metric(query.MetricFunc(mt.Fn), mt.Field, mt.Alias)
			}
		}
		having, err := aliasTerms(step.Having)
		if err != nil {
			return nil, err
		}
		g.Having(having...)
		b = g.End()
	}

	if step.Join != nil {
		target, ok := registry.Get(step.Join.Target)
		if !ok {
			return nil, fmt.Errorf("join targets unknown model %q", step.Join.Target)
		}
		j := b.Join(target, step.Join.LocalField, step.Join.ForeignField)
		if step.Join.Kind == "inner" {
			j.Inner()
		}
		if step.Join.Select != nil {
			j.Select(step.Join.Select...)
		}
		b = j.End()
	}

	if step.Window != nil {
		w := b.Window(query.WindowFunc(step.Window.Fn), step.Window.Alias)
		if step.Window.Field != "" {
			w.Source(step.Window.Field)
		}
		if len(step.Window.PartitionBy) > 0 {
			w.PartitionBy(step.Window.PartitionBy...)
		}
		for _, key := range step.Window.OrderBy {
			w.OrderBy(key.Field, direction(key.Dir))
		}
		if fr := step.Window.Frame; fr != nil {
			w.Frame(query.FrameUnit(fr.Unit), fr.Start, fr.End)
		}
		b = w.End()
	}

	return b.Build()
}

func filterTerms(m *model.Model, terms []FilterTerm) ([]domain.Term, error) {
	out := make([]domain.Term, 0, len(terms))
	for i, t := range terms {
		if t.Connector != "" {
			c := domain.Connector(t.Connector)
			if !c.Valid() {
				return nil, fmt.Errorf("filter term %d: unknown connector %q", i, t.Connector)
			}
			out = append(out, c)
			continue
		}
		f, ok := m.Lookup(t.Field)
		var v any
		var err error
		if ok {
			v, err = convertCondValue(f.Type, t.Value)
			if err != nil {
				return nil, fmt.Errorf("filter term %d: %w", i, err)
			}
		} else {
			v = t.Value
		}
		out = append(out, domain.C(t.Field, domain.Operator(t.Op), v))
	}
	return out, nil
}

func aliasTerms(terms []FilterTerm) ([]domain.Term, error) {
	out := make([]domain.Term, 0, len(terms))
	for i, t := range terms {
		if t.Connector != "" {
			c := domain.Connector(t.Connector)
			if !c.Valid() {
				return nil, fmt.Errorf("having term %d: unknown connector %q", i, t.Connector)
			}
			out = append(out, c)
			continue
		}
		v := t.Value
		if n, ok := v.(int); ok {
			v = int64(n)
		}
		out = append(out, domain.C(t.Field, domain.Operator(t.Op), v))
	}
	return out, nil
}

func convertCondValue(t model.FieldType, v any) (any, error) {
	if items, ok := v.([]any); ok && t != model.TypeList {
		out := make([]any, len(items))
		for i, item := range items {
			cv, err := convertValue(t, item)
			if err != nil {
				return nil, err
			}
			out[i] = cv
		}
		return out, nil
	}
	return convertValue(t, v)
}

func direction(s string) query.Direction {
	if s == "desc" {
		return query.Desc
	}
	return query.Asc
}
