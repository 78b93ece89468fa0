// Package web holds the JSON plumbing shared by promptbook's HTTP handlers:
// strict body decoding, struct validation into field maps, and the error body shape.
package web
