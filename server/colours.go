package server

import (
	"fmt"
	"io"
	"net/http"
)

// ANSI escapes used by the DEV route listing
const (
	ansiGreen   = "\033[32m"
	ansiYellow  = "\033[33m"
	ansiBlue    = "\033[34m"
	ansiMagenta = "\033[35m"
	ansiCyan    = "\033[36m"
	ansiGray    = "\033[90m"
	ansiReset   = "\033[0m"
)

var methodColours = map[string]string{
	http.MethodGet:     ansiGreen,
	http.MethodPost:    ansiBlue,
	http.MethodPut:     ansiCyan,
	http.MethodPatch:   ansiMagenta,
	http.MethodDelete:  ansiYellow,
	http.MethodOptions: ansiGray,
}

// printRoute writes one coloured "[METHOD] /path" line. Method-less patterns print in gray.
func printRoute(w io.Writer, method, path string) {
	colour, ok := methodColours[method]
	if !ok {
		colour = ansiGray
	}
	fmt.Fprintf(w, "[%s%-7s%s] %s\n", colour, method, ansiReset, path)
}
