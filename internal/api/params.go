package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/alwynblake/city-explorer/internal/explorer"
)

// errBadRequest marks input the client must fix.
var errBadRequest = errors.New("bad request")

// queryParam returns the raw ?data= search string.
func queryParam(q url.Values) (string, error) {
	query := strings.TrimSpace(q.Get("data"))
	if query == "" {
		return "", fmt.Errorf("%w: missing data parameter", errBadRequest)
	}
	return query, nil
}

// locationParam reads a Location from ?data=<json>, or from the bracketed
// form jQuery produces when it serializes an object (data[id]=1&data[latitude]=...).
func locationParam(q url.Values) (explorer.Location, error) {
	var loc explorer.Location

	if raw := q.Get("data"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &loc); err != nil {
			return loc, fmt.Errorf("%w: decoding location: %v", errBadRequest, err)
		}
		return loc, nil
	}

	fields := map[string]string{}
	for key, values := range q {
		name, ok := strings.CutPrefix(key, "data[")
		if !ok || len(values) == 0 {
			continue
		}
		name, ok = strings.CutSuffix(name, "]")
		if !ok {
			continue
		}
		fields[name] = values[0]
	}
	if len(fields) == 0 {
		return loc, fmt.Errorf("%w: missing data parameter", errBadRequest)
	}

	// Every value is a string here; Location accepts quoted numbers.
	b, err := json.Marshal(fields)
	if err != nil {
		return loc, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if err := json.Unmarshal(b, &loc); err != nil {
		return loc, fmt.Errorf("%w: decoding location: %v", errBadRequest, err)
	}
	return loc, nil
}
