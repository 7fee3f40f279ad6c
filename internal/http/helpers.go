package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
)

var (
	errInvalidID           = errors.New("invalid bill id")
	errInvalidDeleteSeries = errors.New("delete_series must be true or false")
)

// parseID reads the {id} path segment as a positive integer.
func parseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}
	return id, nil
}

// parseDeleteSeries interprets the delete_series flag. Absent means false.
func parseDeleteSeries(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "false", "0", "off", "no":
		return false, nil
	case "true", "1", "on", "yes":
		return true, nil
	}
	return false, errInvalidDeleteSeries
}

// sanitizeInput removes control characters other than tab and newlines and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}
