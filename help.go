package batdev

import (
	"fmt"
	"io"
	"os"
)

// ShowHelp streams the help text at path to w. When the file cannot be
// opened a one-line notice is written instead and the open error returned.
func ShowHelp(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(w, "Sorry, can't find help file %s\n", path)
		return err
	}
	defer f.Close()

	_, err = io.Copy(w, f)
	return err
}
