package transfer

import "strings"

// Record is a decoded JSON object representing one remote record.
type Record = map[string]any

// Field names consumed from index entries.
const (
	keySourceRecordKey = "source_record_key"
	keyUUID            = "uuid"
	keyTitle           = "title"
)

// sourceRecordKey returns the record's source record key, if present.
func sourceRecordKey(rec Record) (string, bool) {
	key, ok := rec[keySourceRecordKey].(string)
	return key, ok && key != ""
}

// sourcePK recovers the remote-native primary key from a record's
// source record key, which has the form "<type>:<pk>".
func sourcePK(rec Record) (string, bool) {
	key, ok := sourceRecordKey(rec)
	if !ok {
		return "", false
	}
	segments := strings.Split(key, ":")
	return segments[len(segments)-1], true
}

// assignedID returns the record's assigned identifier, if one was set.
func assignedID(rec Record) (string, bool) {
	id, ok := rec[keyUUID].(string)
	return id, ok && id != ""
}

// recordTitle returns the record's title for progress messages.
func recordTitle(rec Record) string {
	t, _ := rec[keyTitle].(string)
	return t
}
