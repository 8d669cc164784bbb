package memdoc

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// matchDoc evaluates a native filter document against one wire document.
// An empty filter matches everything.
func matchDoc(doc bson.M, filter bson.D) (bool, error) {
	for _, e := range filter {
		ok, err := matchClause(doc, e)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func matchClause(doc bson.M, e bson.E) (bool, error) {
	switch e.Key {
	case "$and":
		branches, err := branchList(e.Key, e.Value)
		if err != nil {
			return false, err
		}
		for _, br := range branches {
			ok, err := matchDoc(doc, br)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case "$or":
		branches, err := branchList(e.Key, e.Value)
		if err != nil {
			return false, err
		}
		for _, br := range branches {
			ok, err := matchDoc(doc, br)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case "$nor":
		branches, err := branchList(e.Key, e.Value)
		if err != nil {
			return false, err
		}
		for _, br := range branches {
			ok, err := matchDoc(doc, br)
			if err != nil {
				return false, err
			}
			if ok {
				return false, nil
			}
		}
		return true, nil
	}

	ops, ok := e.Value.(bson.D)
	if !ok {
		return false, fmt.Errorf("filter for %s is not an operator document", e.Key)
	}
	val, present := doc[e.Key]
	if !present {
		val = nil
	}
	return matchField(val, ops)
}

func branchList(key string, v any) ([]bson.D, error) {
	arr, ok := v.(bson.A)
	if !ok {
		return nil, fmt.Errorf("%s expects an array", key)
	}
	out := make([]bson.D, len(arr))
	for i, item := range arr {
		d, ok := item.(bson.D)
		if !ok {
			return nil, fmt.Errorf("%s branch %d is not a document", key, i)
		}
		out[i] = d
	}
	return out, nil
}

func matchField(val any, ops bson.D) (bool, error) {
	var pattern string
	var options string
	hasPattern := false

	for _, op := range ops {
		switch op.Key {
		case "$eq":
			if !valueEq(val, op.Value) {
				return false, nil
			}
		case "$ne":
			if valueEq(val, op.Value) {
				return false, nil
			}
		case "$gt", "$gte", "$lt", "$lte":
			cmp, ok := compareValues(val, op.Value)
			if !ok {
				return false, nil
			}
			switch op.Key {
			case "$gt":
				if cmp <= 0 {
					return false, nil
				}
			case "$gte":
				if cmp < 0 {
					return false, nil
				}
			case "$lt":
				if cmp >= 0 {
					return false, nil
				}
			case "$lte":
				if cmp > 0 {
					return false, nil
				}
			}
		case "$in", "$nin":
			items, ok := op.Value.(bson.A)
			if !ok {
				return false, fmt.Errorf("%s expects an array", op.Key)
			}
			found := false
			for _, item := range items {
				if valueEq(val, item) {
					found = true
					break
				}
			}
			if (op.Key == "$in") != found {
				return false, nil
			}
		case "$regex":
			s, ok := op.Value.(string)
			if !ok {
				return false, fmt.Errorf("$regex expects a string")
			}
			pattern = s
			hasPattern = true
		case "$options":
			s, ok := op.Value.(string)
			if !ok {
				return false, fmt.Errorf("$options expects a string")
			}
			options = s
		default:
			return false, fmt.Errorf("unknown filter operator %s", op.Key)
		}
	}

	if hasPattern {
		s, ok := val.(string)
		if !ok {
			return false, nil
		}
		if strings.Contains(options, "i") {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, fmt.Errorf("compile pattern %q: %w", pattern, err)
		}
		if !re.MatchString(s) {
			return false, nil
		}
	}
	return true, nil
}

// valueEq compares wire values for equality. Integer widths compare by
// value; decimals compare numerically.
func valueEq(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if cmp, ok := compareValues(a, b); ok {
		return cmp == 0
	}
	switch av := a.(type) {
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case primitive.ObjectID:
		bv, ok := b.(primitive.ObjectID)
		return ok && av == bv
	case bson.A:
		bv, ok := b.(bson.A)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !valueEq(av[i], bv[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// compareValues orders two wire values of a comparable kind. The second
// return is false when the pair has no defined ordering.
func compareValues(a, b any) (int, bool) {
	if af, aok := numeric(a); aok {
		bf, bok := numeric(b)
		if !bok {
			return 0, false
		}
		return af.Cmp(bf), true
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case primitive.DateTime:
		bv, ok := b.(primitive.DateTime)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		}
		return 0, true
	case primitive.ObjectID:
		bv, ok := b.(primitive.ObjectID)
		if !ok {
			return 0, false
		}
		return bytes.Compare(av[:], bv[:]), true
	}
	return 0, false
}

// numeric widens any numeric wire value to a decimal so that mixed-width
// comparisons behave like the store's numeric bracket.
func numeric(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case int32:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case float64:
		return decimal.NewFromFloat(n), true
	case primitive.Decimal128:
		d, err := decimal.NewFromString(n.String())
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	}
	return decimal.Decimal{}, false
}
