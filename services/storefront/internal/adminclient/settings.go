package adminclient

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// storageKeys are bookkeeping fields the API's document store adds to the
// settings record. They are not settings and are dropped before decoding.
var storageKeys = []string{"_id", "__v", "createdAt", "updatedAt"}

// settingsDocument extracts the settings object from an API response,
// enveloped or bare. It returns nil when the response carries none.
func settingsDocument(body []byte) ([]byte, error) {
	doc := gjson.GetBytes(body, "data")
	if !doc.Exists() {
		if gjson.GetBytes(body, "success").Exists() {
			return nil, nil
		}
		doc = gjson.ParseBytes(body)
	}
	if doc.Type == gjson.Null {
		return nil, nil
	}
	if !doc.IsObject() {
		return nil, fmt.Errorf("decode settings: expected an object, got %s", doc.Type)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal([]byte(doc.Raw), &fields); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	for _, key := range storageKeys {
		delete(fields, key)
	}
	return json.Marshal(fields)
}
