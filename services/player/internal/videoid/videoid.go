// Package videoid extracts YouTube video identifiers from raw ids and URLs.
package videoid

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

var ErrInvalid = errors.New("invalid video id")

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// Parse accepts a bare 11-character id or a youtube.com / youtu.be URL
// (watch, embed, shorts, live and v/ forms) and returns the id.
func Parse(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalid
	}
	if idPattern.MatchString(raw) {
		return raw, nil
	}

	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", ErrInvalid
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")

	var id string
	switch host {
	case "youtu.be":
		id, _, _ = strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	case "youtube.com", "music.youtube.com", "youtube-nocookie.com":
		if v := u.Query().Get("v"); v != "" {
			id = v
			break
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) == 2 {
			switch parts[0] {
			case "embed", "shorts", "live", "v":
				id = parts[1]
			}
		}
	}
	if !idPattern.MatchString(id) {
		return "", ErrInvalid
	}
	return id, nil
}

// Resolve picks the id used for progress keys: an explicit external id wins
// over one parsed from raw.
func Resolve(raw, external string) (string, error) {
	if ext := strings.TrimSpace(external); ext != "" {
		return Parse(ext)
	}
	return Parse(raw)
}
