package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/llehouerou/scrobblesync/internal/scrobble"
	"github.com/llehouerou/scrobblesync/internal/syncer"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// describeLastSync renders the watermark for humans.
func describeLastSync(at time.Time, ok bool, now time.Time) string {
	if !ok {
		return "Never synced"
	}
	return "Last synced " + humanize.RelTime(at, now, "ago", "from now")
}

func statusStyle(s scrobble.Status) lipgloss.Style {
	switch s.(type) {
	case scrobble.StatusSuccess:
		return successStyle
	case scrobble.StatusFailed:
		return failedStyle
	default:
		return pendingStyle
	}
}

// statusIcon is the one-character marker shown before a record.
func statusIcon(s scrobble.Status) string {
	switch s.(type) {
	case scrobble.StatusSuccess:
		return "✓"
	case scrobble.StatusFailed:
		return "✗"
	default:
		return "•"
	}
}

// formatRecord renders one log line:
//
//	✓ Artist - Track (Album)  3 hours ago  [id]
func formatRecord(r *scrobble.Record, now time.Time) string {
	var sb strings.Builder
	style := statusStyle(r.Status)
	sb.WriteString(style.Render(statusIcon(r.Status)))
	sb.WriteString(" ")
	sb.WriteString(r.Artist)
	sb.WriteString(" - ")
	sb.WriteString(r.Track)
	if r.Album != "" && r.Album != scrobble.UnknownAlbum {
		sb.WriteString(subtleStyle.Render(" (" + r.Album + ")"))
	}

	when := humanize.RelTime(r.Timestamp, now, "ago", "from now")
	if r.Estimated {
		when = "~" + when
	}
	sb.WriteString("  ")
	sb.WriteString(subtleStyle.Render(when))
	sb.WriteString("  ")
	sb.WriteString(subtleStyle.Render("[" + r.ID + "]"))

	if reason := scrobble.Reason(r.Status); reason != "" {
		sb.WriteString("\n    ")
		sb.WriteString(failedStyle.Render(reason))
	}
	return sb.String()
}

func printRecords(w io.Writer, records []scrobble.Record, now time.Time) {
	if len(records) == 0 {
		fmt.Fprintln(w, subtleStyle.Render("No scrobbles"))
		return
	}
	for i := range records {
		fmt.Fprintln(w, formatRecord(&records[i], now))
	}
}

// formatSummary renders the outcome of a sync or retry.
func formatSummary(s syncer.Summary) string {
	if s.Submitted == 0 && s.New == 0 {
		if s.Fetched > 0 {
			return "Nothing new to scrobble"
		}
		return "No recently played tracks"
	}
	parts := []string{}
	if s.Fetched > 0 || s.New > 0 {
		parts = append(parts, fmt.Sprintf("%d new of %d played", s.New, s.Fetched))
	}
	if s.Submitted == 0 {
		parts = append(parts, pendingStyle.Render(fmt.Sprintf("%d pending (not signed in to Last.fm)", s.New)))
		return strings.Join(parts, ", ")
	}
	parts = append(parts, successStyle.Render(fmt.Sprintf("%d scrobbled", s.Accepted)))
	if s.Failed > 0 {
		parts = append(parts, failedStyle.Render(fmt.Sprintf("%d failed", s.Failed)))
	}
	return strings.Join(parts, ", ")
}

func printStats(w io.Writer, st scrobble.Stats) {
	fmt.Fprintf(w, "%s %s today, %s this week, %s total\n",
		titleStyle.Render("Scrobbles:"),
		humanize.Comma(int64(st.Today)),
		humanize.Comma(int64(st.Week)),
		humanize.Comma(int64(st.Total)))
	if st.Pending > 0 {
		fmt.Fprintln(w, pendingStyle.Render(fmt.Sprintf("%d pending", st.Pending)))
	}
	if st.Failed > 0 {
		fmt.Fprintln(w, failedStyle.Render(fmt.Sprintf("%d failed (run 'scrobblesync retry-all')", st.Failed)))
	}
}
