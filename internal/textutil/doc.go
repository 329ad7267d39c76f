// Package textutil provides term-frequency fingerprints and similarity scoring
// used to compare resume text against job descriptions.
//
// Tokenization lowercases text, splits on non-alphanumeric characters, and
// drops short tokens and common English stopwords.
package textutil
