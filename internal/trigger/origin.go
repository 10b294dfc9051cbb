package trigger

import "net/url"

// Origin returns scheme://host of raw, or raw itself when it does not parse.
func Origin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}
	return u.Scheme + "://" + u.Host
}
