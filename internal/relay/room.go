package relay

import "strings"

const roomSeparator = "_"

// RoomID returns the identifier of the two-party room shared by a and b.
// The pair is unordered: RoomID(a, b) == RoomID(b, a).
func RoomID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return strings.Join([]string{a, b}, roomSeparator)
}
