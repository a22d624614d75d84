// ABOUTME: Console sink printing colored transition alerts
// ABOUTME: Used by the run command for local feedback

package notify

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/harper/geofence/internal/models"
)

// Console writes one line per transition to an io.Writer.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsole creates a console sink writing to out.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) Deliver(_ context.Context, tr models.Transition) error {
	msg := Compose(tr)

	marker := color.GreenString("→")
	if tr.Kind == models.TransitionExit {
		marker = color.YellowString("←")
	}
	title := msg.Title
	if msg.Priority == PriorityHigh {
		title = color.New(color.FgRed, color.Bold).Sprint(title)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, "%s %s %s %s\n",
		color.New(color.Faint).Sprint(tr.Time().Format("15:04:05")),
		marker,
		title,
		color.New(color.Faint).Sprint(msg.Body))
	return err
}
