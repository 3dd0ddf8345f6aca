package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/aarontekluuu/pm.ag-sub000/internal/domain"
)

// defaultAlertThreshold is the minimum edge that raises an alert when the
// operator does not configure one.
const defaultAlertThreshold = 0.02

// EdgeAlerter raises notifications for markets whose edge reaches the
// configured threshold. A market that already alerted stays quiet until its
// edge grows past the alerted value or drops below the threshold and comes
// back, so a persistent edge does not page the operator every cycle.
type EdgeAlerter struct {
	notifier  *Notifier
	threshold float64

	mu      sync.Mutex
	alerted map[string]float64 // venue:market -> last alerted edge
}

// NewEdgeAlerter creates an EdgeAlerter over the given notifier. A threshold
// of zero or below selects the default.
func NewEdgeAlerter(notifier *Notifier, threshold float64) *EdgeAlerter {
	if threshold <= 0 {
		threshold = defaultAlertThreshold
	}
	return &EdgeAlerter{
		notifier:  notifier,
		threshold: threshold,
		alerted:   make(map[string]float64),
	}
}

// Threshold returns the minimum edge that triggers an alert.
func (a *EdgeAlerter) Threshold() float64 {
	return a.threshold
}

// Observe scans one cycle's edges and notifies for each market newly at or
// above the threshold. It returns the number of alerts raised. Sender
// failures are logged by the notifier and do not stop the scan.
func (a *EdgeAlerter) Observe(ctx context.Context, edges []domain.MarketEdge) int {
	fire := a.record(edges)
	for _, e := range fire {
		title, message := formatEdgeAlert(e)
		// Sender errors are already logged by the notifier.
		_ = a.notifier.Notify(ctx, EventEdgeAlert, title, message)
	}
	return len(fire)
}

// record updates the alerted set under the lock and returns the edges that
// should fire, keeping network sends out of the critical section.
func (a *EdgeAlerter) record(edges []domain.MarketEdge) []domain.MarketEdge {
	a.mu.Lock()
	defer a.mu.Unlock()

	var fire []domain.MarketEdge
	current := make(map[string]bool, len(edges))

	for _, e := range edges {
		if e.Edge < a.threshold {
			continue
		}
		key := e.Venue + ":" + e.MarketID
		current[key] = true

		if last, ok := a.alerted[key]; ok && e.Edge <= last {
			continue
		}
		a.alerted[key] = e.Edge
		fire = append(fire, e)
	}

	// Markets that no longer clear the threshold re-arm for next time.
	for key := range a.alerted {
		if !current[key] {
			delete(a.alerted, key)
		}
	}

	return fire
}

func formatEdgeAlert(e domain.MarketEdge) (title, message string) {
	title = fmt.Sprintf("Edge %.2f%% on %s", e.Edge*100, e.Venue)
	message = fmt.Sprintf("%s\nYES %.3f + NO %.3f = %.3f\nvolume %.0f",
		e.Title, e.Yes.Price, e.No.Price, e.Sum, e.Volume)
	return title, message
}
