package cloud

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
)

var ErrInvalidURL = errors.New("no resource id in url")

var (
	idPattern  = regexp.MustCompile(`[-\w]{25,}`)
	gidPattern = regexp.MustCompile(`gid=(\d+)`)
)

// AsID returns the Drive/Sheets resource id from a share URL, or s itself
// when it already is an id.
func AsID(s string) (string, error) {
	if m := idPattern.FindString(s); m == s && s != "" {
		return s, nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidURL, s, err)
	}
	if m := idPattern.FindString(u.Path); m != "" {
		return m, nil
	}
	if id := u.Query().Get("id"); idPattern.MatchString(id) {
		return id, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidURL, s)
}

// WorksheetGID returns the tab id from the "#gid=N" fragment of a sheet URL,
// defaulting to the first tab (0).
func WorksheetGID(s string) int64 {
	u, err := url.Parse(s)
	if err != nil {
		return 0
	}
	m := gidPattern.FindStringSubmatch(u.Fragment)
	if m == nil {
		return 0
	}
	gid, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0
	}
	return gid
}
