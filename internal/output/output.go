package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/samber/lo"

	"cockpit/internal/domain"
)

type Formatter struct {
	w io.Writer
}

func NewFormatter(w io.Writer) *Formatter {
	return &Formatter{w: w}
}

func (f *Formatter) RecordingStarted(appointmentID string) {
	fmt.Fprintf(f.w, "🎙️  Recording %s (p pause, r resume, s stop, a abort)\n", appointmentLabel(appointmentID))
}

func (f *Formatter) RecordingState(state domain.RecorderState, message string) {
	if message == "" {
		message = string(state)
	}
	fmt.Fprintf(f.w, "%s %s\n", stateIcon(state), message)
}

func (f *Formatter) ArtifactSaved(a domain.RecordingArtifact) {
	fmt.Fprintf(f.w, "💾 Saved %s (%s, %s) for %s\n", a.FileName, formatSize(a.Size), a.ID, a.CustomerID)
}

func (f *Formatter) ArtifactChanged(a domain.RecordingArtifact) {
	fmt.Fprintf(f.w, "  %s %s %s%s\n", syncIcon(a.State), a.ID, a.State, deliveredSuffix(a))
}

func (f *Formatter) ArtifactListHeader(artifacts []domain.RecordingArtifact) {
	pending := lo.CountBy(artifacts, func(a domain.RecordingArtifact) bool { return a.State != domain.SyncStateSynced })
	fmt.Fprintf(f.w, "📁 Recordings: %d (%d not synced)\n\n", len(artifacts), pending)
}

func (f *Formatter) ArtifactListItem(a domain.RecordingArtifact) {
	fmt.Fprintf(f.w, "  %s %-36s %-10s %-12s %-8s %s%s\n",
		syncIcon(a.State),
		a.ID,
		a.State,
		appointmentLabel(a.AppointmentID),
		a.CustomerID,
		a.CreatedAt.Local().Format("2006-01-02 15:04"),
		deliveredSuffix(a),
	)
}

func (f *Formatter) RemoteListing(listing domain.RemoteListing) {
	fmt.Fprintf(f.w, "☁️  Delivery service (%s storage): %d recordings\n\n", listing.Mode, listing.Count)
	for _, rec := range listing.Recordings {
		fmt.Fprintf(f.w, "  %-36s %-8s %-10s stored %s%s\n",
			rec.ID,
			rec.CustomerID,
			formatSize(rec.Size),
			rec.StoredAt.Local().Format("2006-01-02 15:04"),
			lo.Ternary(rec.DeliveredAt != nil, " 📨", ""),
		)
	}
}

func (f *Formatter) Appointment(id, title, customerName, status string) {
	fmt.Fprintf(f.w, "  %-8s %-28s %-16s %s\n", id, title, customerName, strings.ToLower(status))
}

func (f *Formatter) Delivered(a domain.RecordingArtifact) {
	at := ""
	if a.DeliveredAt != nil {
		at = a.DeliveredAt.Local().Format(time.RFC822)
	}
	fmt.Fprintf(f.w, "📨 Sent %s to %s at %s\n", a.ID, a.CustomerID, at)
}

func (f *Formatter) Fetched(path string, d domain.AudioDownload) {
	fmt.Fprintf(f.w, "🔊 Wrote %s (%s, %s source)\n", path, formatSize(int64(len(d.Data))), d.Source)
}

func (f *Formatter) Error(msg string) {
	fmt.Fprintf(f.w, "❌ %s\n", msg)
}

func (f *Formatter) Info(msg string) {
	fmt.Fprintf(f.w, "ℹ️  %s\n", msg)
}

func (f *Formatter) Success(msg string) {
	fmt.Fprintf(f.w, "✅ %s\n", msg)
}

func (f *Formatter) Warning(msg string) {
	fmt.Fprintf(f.w, "⚠️  %s\n", msg)
}

func (f *Formatter) SetupCheck(name string, ok bool, detail string) {
	if ok {
		fmt.Fprintf(f.w, "  ✅ %s: %s\n", name, detail)
	} else {
		fmt.Fprintf(f.w, "  ❌ %s: %s\n", name, detail)
	}
}

func appointmentLabel(appointmentID string) string {
	if appointmentID == "" {
		return domain.UnassignedAppointment
	}
	return appointmentID
}

func deliveredSuffix(a domain.RecordingArtifact) string {
	if !a.Delivered() {
		return ""
	}
	return " 📨"
}

func stateIcon(state domain.RecorderState) string {
	switch state {
	case domain.RecorderStateRecording:
		return "🔴"
	case domain.RecorderStatePaused:
		return "⏸️ "
	case domain.RecorderStateFinalising:
		return "⏳"
	default:
		return "⏹️ "
	}
}

func syncIcon(state domain.SyncState) string {
	switch state {
	case domain.SyncStateSynced:
		return "☁️ "
	case domain.SyncStateUploading:
		return "⏫"
	case domain.SyncStateFailed:
		return "⚠️ "
	default:
		return "💽"
	}
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
