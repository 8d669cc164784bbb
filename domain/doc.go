// Package domain implements the boolean filter mini-language used to
// describe "which records" independently of any backend.
//
// A domain is written as a flat, prefix-notation sequence of terms. Each
// term is either a condition triple (field, operator, value) or one of the
// connectors "&", "|", "!". Connectors consume the complete sub-expressions
// that follow them: "&" and "|" take two, "!" takes one. Two adjacent
// complete expressions with no connector between them are implicitly
// conjoined, so a bare list of conditions reads as nested ANDs:
//
//	[age >= 18, status = "active"]  ≡  ["&", age >= 18, status = "active"]
//
// Normalize turns a term sequence into a binary expression tree of
// And/Or/Not nodes over Cond leaves. The tree, not the flat sequence, is
// what backend compilers consume.
package domain
