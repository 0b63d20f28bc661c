package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/zulandar/hoxy/internal/chat"
	"github.com/zulandar/hoxy/internal/models"
	"golang.org/x/term"
)

const (
	ansiReset  = "\033[0m"
	ansiDim    = "\033[2m"
	ansiBold   = "\033[1m"
	ansiCyan   = "\033[36m"
	ansiYellow = "\033[33m"
)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// printer renders chat messages as text lines, with ANSI styling when
// writing to a terminal.
type printer struct {
	w       io.Writer
	color   bool
	role    models.Sender
	artist  string
	lastDay string
}

func newPrinter(w io.Writer, role models.Sender, artist string) *printer {
	return &printer{w: w, color: isTerminal(w), role: role, artist: artist}
}

func (p *printer) style(code, s string) string {
	if !p.color || s == "" {
		return s
	}
	return code + s + ansiReset
}

func (p *printer) who(m models.Message) string {
	switch {
	case m.Sender == models.SenderSystem:
		return "알림"
	case m.Sender == p.role:
		return "나"
	case m.Sender == models.SenderAuthor:
		return p.artist
	}
	return "고객"
}

// body returns the display text of m.
func body(m models.Message) string {
	switch {
	case m.Kind == models.KindReservationInquiry && m.Structured != nil:
		var b strings.Builder
		b.WriteString("예약 문의: " + m.Structured.ProductName)
		for i, d := range m.Structured.DateCandidates {
			fmt.Fprintf(&b, "\n    %d순위 %s", i+1, chat.CandidateLabel(d))
		}
		return b.String()
	case m.Kind == models.KindConfirmReservation:
		return m.Summary()
	case m.HasImages():
		label := fmt.Sprintf("[이미지 %d장]", len(m.ImageURLs))
		if m.IsUploading {
			return label + " 업로드 중..."
		}
		return label + " " + strings.Join(m.ImageURLs, " ")
	}
	return m.Text
}

// message prints m, preceded by a date separator when the day changes.
// Hidden messages are skipped.
func (p *printer) message(m models.Message) {
	if !m.Visible() {
		return
	}
	if day := m.DayKey(); day != p.lastDay {
		p.lastDay = day
		fmt.Fprintln(p.w, p.style(ansiDim, "── "+chat.DateSeparator(m.CreatedAt)+" ──"))
	}
	name := p.who(m)
	if m.Sender == p.role {
		name = p.style(ansiCyan, name)
	} else {
		name = p.style(ansiBold, name)
	}
	line := fmt.Sprintf("%s %s: %s", p.style(ansiDim, "["+m.Timestamp+"]"), name, body(m))
	if m.Sender == p.role && m.IsRead {
		line += " " + p.style(ansiYellow, "(읽음)")
	}
	fmt.Fprintln(p.w, line)
}

func (p *printer) messages(msgs []models.Message) {
	for _, m := range msgs {
		p.message(m)
	}
}
