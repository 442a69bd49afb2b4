package watch

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"FeedbackFlow/internal/domain"
)

// Printer renders events as one colored line each.
type Printer struct {
	out       io.Writer
	colors    map[domain.EventType]*color.Color
	fallback  *color.Color
	heartbeat bool
}

// NewPrinter builds a printer; heartbeats are hidden unless showHeartbeat is set.
func NewPrinter(out io.Writer, useColor, showHeartbeat bool) *Printer {
	p := &Printer{
		out: out,
		colors: map[domain.EventType]*color.Color{
			domain.EventConnected:           color.New(color.FgCyan),
			domain.EventHeartbeat:           color.New(color.FgHiBlack),
			domain.EventProcessingStarted:   color.New(color.FgBlue, color.Bold),
			domain.EventProcessingProgress:  color.New(color.FgWhite),
			domain.EventTaskCreated:         color.New(color.FgGreen),
			domain.EventTaskSkipped:         color.New(color.FgYellow),
			domain.EventProcessingError:     color.New(color.FgRed),
			domain.EventProcessingCompleted: color.New(color.FgBlue, color.Bold),
		},
		fallback:  color.New(color.Reset),
		heartbeat: showHeartbeat,
	}
	if !useColor {
		for _, c := range p.colors {
			c.DisableColor()
		}
		p.fallback.DisableColor()
	}
	return p
}

// Print writes event to the output.
func (p *Printer) Print(event domain.Event) error {
	if event.Type == domain.EventHeartbeat && !p.heartbeat {
		return nil
	}

	c, ok := p.colors[event.Type]
	if !ok {
		c = p.fallback
	}

	stamp := "--:--:--"
	if event.Timestamp > 0 {
		stamp = time.UnixMilli(event.Timestamp).Format("15:04:05")
	}

	_, err := fmt.Fprintf(p.out, "%s %s %s\n", stamp, c.Sprintf("%-21s", event.Type), describe(event))
	return err
}

func describe(event domain.Event) string {
	switch event.Type {
	case domain.EventConnected:
		return "listening as " + event.UserID
	case domain.EventHeartbeat:
		return ""
	case domain.EventProcessingStarted:
		total := 0
		if event.Progress != nil {
			total = event.Progress.Total
		}
		return fmt.Sprintf("run %s: %d pending", event.RunID, total)
	case domain.EventProcessingProgress:
		return fmt.Sprintf("%s %q", progressLabel(event.Progress), event.Preview)
	case domain.EventTaskCreated:
		if event.Task == nil {
			return progressLabel(event.Progress)
		}
		return fmt.Sprintf("%s %s [%s, urgency %d]", progressLabel(event.Progress), event.Task.Title, event.Task.Priority, event.Task.Urgency)
	case domain.EventTaskSkipped:
		return strings.TrimSpace(fmt.Sprintf("%s %s", progressLabel(event.Progress), event.Message))
	case domain.EventProcessingError:
		return strings.TrimSpace(fmt.Sprintf("%s %s: %s", progressLabel(event.Progress), event.FeedbackID, event.Error))
	case domain.EventProcessingCompleted:
		if event.Analytics == nil {
			return event.Message
		}
		a := event.Analytics
		return fmt.Sprintf("%d processed, %d tasks (%d ai, %d fallback), %d skipped, %d failed",
			a.TotalProcessed, a.TasksCreated, a.AIClassified, a.FallbackClassified, a.SkippedNonActionable, a.Failed)
	default:
		return event.Message
	}
}

func progressLabel(p *domain.Progress) string {
	if p == nil {
		return ""
	}
	return fmt.Sprintf("[%d/%d]", p.Current, p.Total)
}
