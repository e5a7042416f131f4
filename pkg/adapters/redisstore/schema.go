package redisstore

import "strings"

// Key schema. Every key is namespaced with the store prefix:
//
//	expipe:{prefix}:doc:{path}   JSON document
//	expipe:{prefix}:idx:{path}   set of child names below path
//	expipe:{prefix}:seq          counter backing Push keys
//	expipe:{prefix}:events       pub/sub channel of change events

// DocKey returns the key holding the document at path.
func DocKey(prefix string, path []string) string {
	return "expipe:" + prefix + ":doc:" + strings.Join(path, "/")
}

// IndexKey returns the key holding the child names of path.
func IndexKey(prefix string, path []string) string {
	return "expipe:" + prefix + ":idx:" + strings.Join(path, "/")
}

// SeqKey returns the counter used to generate child keys.
func SeqKey(prefix string) string {
	return "expipe:" + prefix + ":seq"
}

// EventsChannel returns the pub/sub channel carrying change events.
func EventsChannel(prefix string) string {
	return "expipe:" + prefix + ":events"
}
