package memdoc

import (
	"fmt"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// runPipeline interprets the pipeline stage set the compiler emits. The
// stage vocabulary is closed; an unknown stage is an interpreter bug
// surfaced as an error, not skipped.
func (s *Store) runPipeline(docs []bson.M, pipeline mongo.Pipeline) ([]bson.M, error) {
	var err error
	for _, stage := range pipeline {
		if len(stage) != 1 {
			return nil, fmt.Errorf("pipeline stage with %d keys", len(stage))
		}
		e := stage[0]
		switch e.Key {
		case "$match":
			docs, err = stageMatch(docs, e.Value)
		case "$project":
			docs, err = stageProject(docs, e.Value)
		case "$sort":
			keys, ok := e.Value.(bson.D)
			if !ok {
				return nil, fmt.Errorf("$sort expects a document")
			}
			sortDocs(docs, keys)
		case "$skip":
			n, ok := asInt64(e.Value)
			if !ok {
				return nil, fmt.Errorf("$skip expects an integer")
			}
			docs = slice(docs, &n, nil)
		case "$limit":
			n, ok := asInt64(e.Value)
			if !ok {
				return nil, fmt.Errorf("$limit expects an integer")
			}
			docs = slice(docs, nil, &n)
		case "$group":
			docs, err = stageGroup(docs, e.Value)
		case "$lookup":
			docs, err = s.stageLookup(docs, e.Value)
		case "$setWindowFields":
			docs, err = stageWindow(docs, e.Value)
		default:
			return nil, fmt.Errorf("unknown pipeline stage %s", e.Key)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Key, err)
		}
	}
	return docs, nil
}

func stageMatch(docs []bson.M, v any) ([]bson.M, error) {
	filter, ok := v.(bson.D)
	if !ok {
		return nil, fmt.Errorf("expects a document")
	}
	out := docs[:0:0]
	for _, doc := range docs {
		ok, err := matchDoc(doc, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

func stageProject(docs []bson.M, v any) ([]bson.M, error) {
	proj, ok := v.(bson.D)
	if !ok {
		return nil, fmt.Errorf("expects a document")
	}
	out := make([]bson.M, len(docs))
	for i, doc := range docs {
		out[i] = projectDoc(doc, proj)
	}
	return out, nil
}

// projectDoc applies a projection document: 1 includes a key, 0 excludes
// it, and a "$path" string computes the value from the input document. A
// projection with any inclusion or computed entry starts from the empty
// document; a pure exclusion list starts from a copy.
func projectDoc(doc bson.M, proj bson.D) bson.M {
	inclusive := false
	for _, e := range proj {
		switch v := e.Value.(type) {
		case int:
			if v == 1 {
				inclusive = true
			}
		case string:
			inclusive = true
		}
	}

	if !inclusive {
		out := make(bson.M, len(doc))
		for k, v := range doc {
			out[k] = v
		}
		for _, e := range proj {
			delete(out, e.Key)
		}
		return out
	}

	out := make(bson.M, len(proj))
	for _, e := range proj {
		switch v := e.Value.(type) {
		case int:
			if v == 1 {
				if val, ok := doc[e.Key]; ok {
					out[e.Key] = val
				}
			}
		case string:
			if val, ok := resolvePath(doc, v); ok {
				out[e.Key] = val
			}
		}
	}
	return out
}

// resolvePath reads a "$a.b" field reference out of a document.
func resolvePath(doc bson.M, ref string) (any, bool) {
	path := strings.TrimPrefix(ref, "$")
	parts := strings.Split(path, ".")
	var cur any = doc
	for _, part := range parts {
		m, ok := cur.(bson.M)
		if !ok {
			if plain, isPlain := cur.(map[string]any); isPlain {
				m = bson.M(plain)
			} else {
				return nil, false
			}
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// sortDocs orders docs by the given keys, null and missing values first
// ascending. The sort is stable so equal keys keep their prior order.
func sortDocs(docs []bson.M, keys bson.D) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, k := range keys {
			dir, _ := asInt64(k.Value)
			cmp := compareForSort(docs[i][k.Key], docs[j][k.Key])
			if cmp == 0 {
				continue
			}
			if dir < 0 {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func compareForSort(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		}
		return 1
	}
	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ab == bb:
				return 0
			case bb:
				return -1
			}
			return 1
		}
	}
	if cmp, ok := compareValues(a, b); ok {
		return cmp
	}
	return 0
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}
