package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/reddiedev/tenext-app/internal/conversation"
	"github.com/reddiedev/tenext-app/internal/model"
)

var (
	userPrompt      = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).Render("you> ")
	assistantPrompt = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("agent> ")

	failMark        = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("✗")
	dimStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	keyStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	nameStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Bold(true)
	annotationStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("141")).Italic(true)
)

const clearLine = "\r\033[K"

// renderer prints the events of one session. It is used from the goroutine
// driving the session only.
type renderer struct {
	w        io.Writer
	thinking bool
	started  bool
}

func newRenderer(w io.Writer) *renderer {
	return &renderer{w: w}
}

func (r *renderer) observe(e conversation.Event) {
	switch e.Kind {
	case conversation.EventLoading:
		if e.Loading {
			r.thinking = true
			fmt.Fprint(r.w, dimStyle.Render("agent is typing..."))
		} else if r.thinking {
			r.thinking = false
			fmt.Fprint(r.w, clearLine)
		}
	case conversation.EventDelta:
		if e.Source != model.PrimarySource {
			return
		}
		if !r.started {
			r.started = true
			fmt.Fprint(r.w, assistantPrompt)
		}
		fmt.Fprint(r.w, e.Delta)
	case conversation.EventMessage:
		fmt.Fprintln(r.w)
	case conversation.EventAnnotation:
		fmt.Fprintf(r.w, "  %s %s\n",
			annotationStyle.Render("["+e.Source+"]"),
			annotationStyle.Render(e.Content),
		)
	case conversation.EventFailed:
		if r.started {
			fmt.Fprintln(r.w)
		}
		msg := "stream failed"
		if e.Err != nil {
			msg = e.Err.Error()
		}
		fmt.Fprintf(r.w, "  %s %s\n", failMark, msg)
	}
}
