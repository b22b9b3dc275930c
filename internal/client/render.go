package client

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/DoyleJ11/weatherboard/internal/onboarding"
)

// Render writes a plain-text view of snap: a header, our own placeholder while
// the room looks up our weather, then everyone hottest first.
func Render(w io.Writer, snap onboarding.Snapshot) error {
	var b strings.Builder

	if snap.HasTag(onboarding.TagNoPermission) {
		b.WriteString("y u no permission\n")
	} else {
		b.WriteString("Weatherboard\n")
	}
	if snap.State == onboarding.Connecting {
		b.WriteString("connecting...\n")
	}
	if who := snap.Context.LastJoined; who != "" {
		fmt.Fprintf(&b, "(%s joined)\n", who)
	}

	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	if snap.Pending() {
		fmt.Fprintf(tw, "  ?\t?? °C\t%s\tfinding a thermometer…\n", snap.Context.Name)
	}
	for i, e := range snap.Context.Leaderboard.Ranked() {
		marker := " "
		if e.ID == snap.Context.ClientID {
			marker = "*"
		}
		place := e.Location.Name
		if e.Location.Country != "" {
			place += ", " + e.Location.Country
		}
		fmt.Fprintf(tw, "%s%2d\t%.1f °C\t%s\t%s\t%s\n", marker, i+1, e.Current.TempC, e.Name, place, e.Current.Condition.Text)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}
