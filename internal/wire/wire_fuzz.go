//go:build gofuzz
// +build gofuzz

package wire

func Fuzz(data []byte) int {
	_, err := ParseFrame(string(data))
	if err != nil {
		return 0
	}
	return 1
}
