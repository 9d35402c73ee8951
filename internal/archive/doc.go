// Package archive keeps an optional local SQLite mirror of conversation
// transcripts for offline reading and export. It is a passive consumer of
// the live conversation; writes are best effort and the server remains the
// authoritative log.
package archive
