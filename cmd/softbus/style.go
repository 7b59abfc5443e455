package main

import (
	"io"
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// palette colors command output. Output that is not a terminal stays plain.
type palette struct {
	profile termenv.Profile
}

func newPalette(w io.Writer) palette {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return palette{profile: termenv.ColorProfile()}
	}
	return palette{profile: termenv.Ascii}
}

func (p palette) ok(s string) termenv.Style {
	return p.profile.String(s).Foreground(p.profile.Color("#34d399")).Bold()
}

func (p palette) bad(s string) termenv.Style {
	return p.profile.String(s).Foreground(p.profile.Color("#f87171")).Bold()
}

func (p palette) dim(s string) termenv.Style {
	return p.profile.String(s).Foreground(p.profile.Color("#94a3b8"))
}
