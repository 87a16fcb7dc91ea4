package transfer

import "github.com/google/uuid"

// AssignIdentifiers walks a decoded JSON value and stores a
// deterministic identifier on every object that carries a source
// record key. The identifier is a name-based (version 5) UUID of
// (namespace, source_record_key), so for a fixed namespace the same
// key always yields the same identifier, across re-fetches and across
// records that reference each other.
//
// Objects without a source record key pass through unmodified. The
// value is treated as an acyclic JSON tree.
func AssignIdentifiers(namespace uuid.UUID, value any) {
	switch v := value.(type) {
	case []any:
		for _, entry := range v {
			AssignIdentifiers(namespace, entry)
		}
	case map[string]any:
		if key, ok := sourceRecordKey(v); ok {
			v[keyUUID] = RecordID(namespace, key).String()
		}
		for _, nested := range v {
			AssignIdentifiers(namespace, nested)
		}
	}
}

// RecordID derives the assigned identifier for a source record key
// within the given run namespace.
func RecordID(namespace uuid.UUID, sourceKey string) uuid.UUID {
	return uuid.NewSHA1(namespace, []byte(sourceKey))
}
