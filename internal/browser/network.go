package browser

import (
	"encoding/base64"
	"strings"
)

func matchRoutes(routes []responseRoute, url string) []responseRoute {
	var matched []responseRoute
	for _, r := range routes {
		if strings.Contains(url, r.match) {
			matched = append(matched, r)
		}
	}
	return matched
}

func decodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
