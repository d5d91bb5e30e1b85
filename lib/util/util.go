// Package util contains helper functions used around the code.
package util

import "strings"

// In returns true if s is found in ss, false otherwise
func In(ss []string, s string) bool {
	for _, v := range ss {
		if s == v {
			return true
		}
	}
	return false
}

// SameAddr compares two hex addresses ignoring case and checksum.
func SameAddr(a, b string) bool {
	return strings.EqualFold(a, b)
}
