// Package mongodoc compiles query specifications for a MongoDB-style
// document store: normalized domain trees become filter documents, and
// aggregate, join, and window operations become pipeline stages. The
// package also owns the value coercion between caller-visible types and
// the store's wire types (object ids, datetimes, decimals), together with
// its exact inverse used by the result mapper.
//
// Compilation is pure. The same specification always produces a
// byte-identical artifact, which is what the golden tests pin down.
package mongodoc
