package memdoc

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// stageLookup interprets the two $lookup forms the compiler emits: the
// plain localField/foreignField form, and the let/pipeline form carrying
// an equality $match plus a $project over the foreign side.
func (s *Store) stageLookup(docs []bson.M, v any) ([]bson.M, error) {
	spec, ok := v.(bson.D)
	if !ok {
		return nil, fmt.Errorf("expects a document")
	}
	fields := make(map[string]any, len(spec))
	for _, e := range spec {
		fields[e.Key] = e.Value
	}

	from, _ := fields["from"].(string)
	as, _ := fields["as"].(string)
	if from == "" || as == "" {
		return nil, fmt.Errorf("missing from or as")
	}
	foreign := s.snapshot(from)

	var localKey, foreignKey string
	var proj bson.D

	if lf, ok := fields["localField"].(string); ok {
		localKey = lf
		foreignKey, _ = fields["foreignField"].(string)
	} else {
		let, ok := fields["let"].(bson.D)
		if !ok || len(let) != 1 {
			return nil, fmt.Errorf("let form needs a single binding")
		}
		ref, _ := let[0].Value.(string)
		localKey = trimRef(ref)

		inner, ok := fields["pipeline"].(mongo.Pipeline)
		if !ok {
			return nil, fmt.Errorf("let form needs a pipeline")
		}
		for _, stage := range inner {
			if len(stage) != 1 {
				return nil, fmt.Errorf("malformed inner stage")
			}
			switch stage[0].Key {
			case "$match":
				key, err := exprEqualityKey(stage[0].Value)
				if err != nil {
					return nil, err
				}
				foreignKey = key
			case "$project":
				p, ok := stage[0].Value.(bson.D)
				if !ok {
					return nil, fmt.Errorf("inner $project expects a document")
				}
				proj = p
			default:
				return nil, fmt.Errorf("unsupported inner stage %s", stage[0].Key)
			}
		}
	}
	if foreignKey == "" {
		return nil, fmt.Errorf("no foreign key")
	}

	out := make([]bson.M, len(docs))
	for i, doc := range docs {
		local := doc[localKey]
		matched := bson.A{}
		for _, fdoc := range foreign {
			if local == nil || fdoc[foreignKey] == nil {
				continue
			}
			if !valueEq(fdoc[foreignKey], local) {
				continue
			}
			if proj != nil {
				matched = append(matched, projectDoc(fdoc, proj))
			} else {
				matched = append(matched, fdoc)
			}
		}
		row := make(bson.M, len(doc)+1)
		for k, val := range doc {
			row[k] = val
		}
		row[as] = matched
		out[i] = row
	}
	return out, nil
}

// exprEqualityKey pulls the foreign field out of the compiler's inner
// match shape {$expr: {$eq: ["$field", "$$binding"]}}.
func exprEqualityKey(v any) (string, error) {
	match, ok := v.(bson.D)
	if !ok || len(match) != 1 || match[0].Key != "$expr" {
		return "", fmt.Errorf("inner $match must be an $expr")
	}
	eq, ok := match[0].Value.(bson.D)
	if !ok || len(eq) != 1 || eq[0].Key != "$eq" {
		return "", fmt.Errorf("inner $expr must be an equality")
	}
	operands, ok := eq[0].Value.(bson.A)
	if !ok || len(operands) != 2 {
		return "", fmt.Errorf("equality needs two operands")
	}
	ref, ok := operands[0].(string)
	if !ok {
		return "", fmt.Errorf("first operand must be a field reference")
	}
	return trimRef(ref), nil
}

func trimRef(ref string) string {
	for len(ref) > 0 && ref[0] == '$' {
		ref = ref[1:]
	}
	return ref
}
