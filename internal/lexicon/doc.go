// Package lexicon provides read-only LexicalStore implementations that are
// not backed by SQL: a JSON fixture store for development and tests, and a
// TTL cache that decorates any other store.
package lexicon
