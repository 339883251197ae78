package cli

import (
	"io"
	"os"

	"golang.org/x/term"
)

// colorEnabled reports whether styled output should be written to w.
func colorEnabled(w io.Writer) bool {
	if noColor {
		return false
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return isTTY(w)
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
