package model

import (
	"database/sql"
	"encoding/json"
)

// NormalizeURLList turns whatever is stored in the custom_urls column into a
// list of strings. Missing or malformed data yields an empty, non-nil slice.
func NormalizeURLList(raw any) []string {
	switch v := raw.(type) {
	case nil:
		return []string{}
	case string:
		return decodeURLList([]byte(v))
	case []byte:
		return decodeURLList(v)
	case sql.NullString:
		if !v.Valid {
			return []string{}
		}
		return decodeURLList([]byte(v.String))
	case []string:
		if v == nil {
			return []string{}
		}
		return v
	case []any:
		urls := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return []string{}
			}
			urls = append(urls, s)
		}
		return urls
	default:
		return []string{}
	}
}

// EncodeURLList serializes urls as a JSON array for storage. A nil slice
// encodes as "[]".
func EncodeURLList(urls []string) string {
	if urls == nil {
		return "[]"
	}
	data, err := json.Marshal(urls)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func decodeURLList(data []byte) []string {
	var urls []string
	if err := json.Unmarshal(data, &urls); err != nil || urls == nil {
		return []string{}
	}
	return urls
}
