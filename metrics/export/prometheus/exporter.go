// Package prometheus renders engine metrics in Prometheus text exposition
// format without pulling in the Prometheus client library.
package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	authkit "github.com/opennotebook/authkit"
	"github.com/opennotebook/authkit/metrics/export/internaldefs"
)

type metricsSource interface {
	MetricsSnapshot() authkit.MetricsSnapshot
	AuditDropped() uint64
}

// Exporter renders authkit metrics in Prometheus text exposition format.
type Exporter struct {
	source metricsSource
}

// NewExporter creates an Exporter reading from the given [authkit.Engine].
func NewExporter(engine *authkit.Engine) *Exporter {
	return &Exporter{source: engine}
}

// NewExporterFromSource creates an Exporter from a custom source.
func NewExporterFromSource(source metricsSource) *Exporter {
	return &Exporter{source: source}
}

// Handler returns an http.Handler serving the metrics endpoint.
func (p *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render returns the current metrics as exposition text.
func (p *Exporter) Render() string {
	snap := p.source.MetricsSnapshot()

	var b strings.Builder
	for _, def := range internaldefs.CounterDefs {
		b.WriteString("# HELP ")
		b.WriteString(def.Name)
		b.WriteByte(' ')
		b.WriteString(def.Help)
		b.WriteByte('\n')
		b.WriteString("# TYPE ")
		b.WriteString(def.Name)
		b.WriteString(" counter\n")
		b.WriteString(def.Name)
		b.WriteByte(' ')
		b.WriteString(strconv.FormatUint(snap.Counters[def.ID], 10))
		b.WriteByte('\n')
	}

	b.WriteString("# HELP authkit_audit_dropped_total Audit events dropped under backpressure.\n")
	b.WriteString("# TYPE authkit_audit_dropped_total counter\n")
	b.WriteString("authkit_audit_dropped_total ")
	b.WriteString(strconv.FormatUint(p.source.AuditDropped(), 10))
	b.WriteByte('\n')

	return b.String()
}
