package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"

	"github.com/feenthu/movie-tracker-web-sub001/internal/gql"
)

const (
	TypenameField = "__typename"
	IDField       = "id"
)

// KeyFunc derives the normalized identity of a result object.
type KeyFunc func(obj map[string]any) (string, bool)

// DefaultKey identifies objects carrying both __typename and id as
// "Typename:id".
func DefaultKey(obj map[string]any) (string, bool) {
	typ, ok := obj[TypenameField].(string)
	if !ok || typ == "" {
		return "", false
	}
	var id string
	switch v := obj[IDField].(type) {
	case string:
		id = v
	case float64:
		id = strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		id = v.String()
	default:
		return "", false
	}
	if id == "" {
		return "", false
	}
	return typ + ":" + id, true
}

// OperationKey is the cache key of a request's result: the operation name
// followed by its variables in canonical JSON. Anonymous operations are
// keyed by a digest of the document instead of a name.
func OperationKey(name string, req gql.Request) string {
	if name == "" {
		sum := sha256.Sum256([]byte(req.Query))
		name = "query:" + hex.EncodeToString(sum[:8])
	}
	vars := []byte("{}")
	if len(req.Variables) > 0 {
		// encoding/json sorts map keys, which makes the encoding canonical.
		if b, err := json.Marshal(req.Variables); err == nil {
			vars = b
		}
	}
	return name + "(" + string(vars) + ")"
}
