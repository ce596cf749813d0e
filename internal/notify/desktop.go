package notify

import (
	"fmt"
	"os/exec"
	"runtime"
)

// DesktopNotifier raises a desktop notification for events a person at the
// bench cares about: a batch is ready, or the engine fell back to random
// sampling.
type DesktopNotifier struct {
	enabled bool
}

// NewDesktopNotifier creates a desktop notifier.
func NewDesktopNotifier(enabled bool) *DesktopNotifier {
	return &DesktopNotifier{enabled: enabled}
}

// Notify shows a notification for persisted batches and fallbacks; other
// event kinds stay silent.
func (d *DesktopNotifier) Notify(e Event) {
	if !d.enabled {
		return
	}
	title, message := render(e)
	if title == "" {
		return
	}
	switch runtime.GOOS {
	case "darwin":
		script := fmt.Sprintf("display notification %q with title %q", message, title)
		exec.Command("osascript", "-e", script).Run()
	case "linux":
		exec.Command("notify-send", title, message).Run()
	}
}

func render(e Event) (title, message string) {
	switch e.Kind {
	case BatchPersisted:
		return "Batch ready", fmt.Sprintf("Campaign %s: %d suggestions in batch %s (%s)",
			e.CampaignID, e.Rows, e.BatchID, e.Provenance)
	case FallbackUsed:
		return "Optimizer unavailable", fmt.Sprintf("Campaign %s: batch %s was drawn at random",
			e.CampaignID, e.BatchID)
	default:
		return "", ""
	}
}
