package utils

import (
	"errors"

	"github.com/tidwall/gjson"
)

var (
	ErrGjsonNotFound  = errors.New("specified path does not exist")
	ErrGjsonWrongType = errors.New("wrong type")
)

// GjsonParseStringMap parses a JSON object into a flat string map.
// Anything that is not a JSON object is an error; callers treat errors
// as "matches nothing" rather than "matches everything".
func GjsonParseStringMap(jsonObject string) (map[string]string, error) {
	if jsonObject == "" {
		return nil, nil
	}

	result := gjson.Parse(jsonObject)
	if !result.IsObject() {
		return nil, ErrGjsonWrongType
	}

	ret := make(map[string]string)
	result.ForEach(func(key, value gjson.Result) bool {
		ret[key.String()] = value.String()
		return true
	})

	return ret, nil
}

// GjsonParseUint64Array parses a JSON array of numbers. A syntactically
// invalid blob returns an error so scope filters can fail closed.
func GjsonParseUint64Array(jsonArray string) ([]uint64, error) {
	if jsonArray == "" {
		return nil, nil
	}

	result := gjson.Parse(jsonArray)
	if !result.IsArray() {
		return nil, ErrGjsonWrongType
	}

	var ret []uint64
	result.ForEach(func(_, value gjson.Result) bool {
		ret = append(ret, value.Uint())
		return true
	})

	return ret, nil
}

// GjsonParseStringArray parses a JSON array of strings, failing closed on
// malformed input like GjsonParseUint64Array.
func GjsonParseStringArray(jsonArray string) ([]string, error) {
	if jsonArray == "" {
		return nil, nil
	}

	result := gjson.Parse(jsonArray)
	if !result.IsArray() {
		return nil, ErrGjsonWrongType
	}

	var ret []string
	result.ForEach(func(_, value gjson.Result) bool {
		ret = append(ret, value.String())
		return true
	})

	return ret, nil
}
