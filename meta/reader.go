package meta

import "io"

// readString reads and returns exactly n bytes from r as a string. Each call
// allocates its own buffer; metadata parsing is infrequent enough that this
// costs nothing next to the read itself, and it keeps every Block free of
// state shared with any other Block being parsed concurrently.
func readString(r io.Reader, n int) (string, error) {
	if n == 0 {
		return "", nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
