package zhihu

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// numID is an id the API sends either as a decimal string or as a number.
type numID uint64

func (n *numID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if string(b) == "null" {
		*n = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*n = 0
			return nil
		}
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing id %q: %w", s, err)
		}
		*n = numID(v)
		return nil
	}
	var v uint64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*n = numID(v)
	return nil
}

// numericKey accepts a positive decimal id, optionally as the last segment of a page URL.
func numericKey(ref string) (string, error) {
	v, err := parseNumeric(lastSegment(ref))
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(v, 10), nil
}

func parseNumeric(id string) (uint64, error) {
	v, err := strconv.ParseUint(id, 10, 64)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("invalid numeric id %q", id)
	}
	return v, nil
}

var slugPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// slugKey accepts the string ids columns and users carry in their URLs.
func slugKey(ref string) (string, error) {
	s := lastSegment(ref)
	if !slugPattern.MatchString(s) {
		return "", fmt.Errorf("invalid id %q", ref)
	}
	return s, nil
}

func lastSegment(ref string) string {
	ref = strings.TrimSpace(ref)
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	ref = strings.TrimRight(ref, "/")
	if i := strings.LastIndexByte(ref, '/'); i >= 0 {
		return ref[i+1:]
	}
	return ref
}

// UserID identifies a user by the 128 bit id, which never changes, and the url token
// the API is addressed with. Its store form is "<hex id>:<url token>".
type UserID struct {
	ID       string
	URLToken string
}

// ParseUserID parses the store form of a user id.
func ParseUserID(s string) (UserID, error) {
	id, token, ok := strings.Cut(s, ":")
	if !ok {
		return UserID{}, fmt.Errorf("user id %q: want <hex id>:<url token>", s)
	}
	id = strings.ToLower(id)
	if b, err := hex.DecodeString(id); err != nil || len(b) != 16 {
		return UserID{}, fmt.Errorf("user id %q: id must be 32 hex digits", s)
	}
	if !slugPattern.MatchString(token) {
		return UserID{}, fmt.Errorf("user id %q: invalid url token", s)
	}
	return UserID{ID: id, URLToken: token}, nil
}

func (u UserID) String() string { return u.ID + ":" + u.URLToken }
