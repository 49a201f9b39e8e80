//go:build !linux

package utils

func affinityCPUs() (int, bool) {
	return 0, false
}
