package route

import (
	"net/url"
	"strings"
)

// BuildLink returns a Yandex Maps driving route link visiting origin, each
// pickup in order, then destination.
func BuildLink(origin, destination string, pickups []string) string {
	points := make([]string, 0, len(pickups)+2)
	points = append(points, origin)
	points = append(points, pickups...)
	points = append(points, destination)
	for i, p := range points {
		points[i] = url.QueryEscape(strings.ReplaceAll(p, " ", ""))
	}
	return "https://yandex.ru/maps/?rtext=" + strings.Join(points, "~") + "&rtt=auto"
}
