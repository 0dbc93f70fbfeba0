package logging

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

// SyslogIdentifier tags every journal entry.
const SyslogIdentifier = "shadercam"

// JournalHandler sends records to the systemd journal. Attributes become
// uppercase journal fields, nested groups joined with underscores.
type JournalHandler struct {
	level  slog.Leveler
	fields map[string]string // from WithAttrs, already prefixed
	prefix string
}

// NewJournalHandler creates a journal handler.
func NewJournalHandler(level slog.Leveler) *JournalHandler {
	return &JournalHandler{level: level}
}

// Enabled implements slog.Handler.
func (h *JournalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *JournalHandler) Handle(_ context.Context, r slog.Record) error {
	fields := make(map[string]string, len(h.fields)+r.NumAttrs()+1)
	for k, v := range h.fields {
		fields[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		addJournalField(fields, h.prefix, a)
		return true
	})
	fields["SYSLOG_IDENTIFIER"] = SyslogIdentifier
	return journal.Send(r.Message, journalPriority(r.Level), fields)
}

// WithAttrs implements slog.Handler.
func (h *JournalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	fields := make(map[string]string, len(h.fields)+len(attrs))
	for k, v := range h.fields {
		fields[k] = v
	}
	for _, a := range attrs {
		addJournalField(fields, h.prefix, a)
	}
	return &JournalHandler{level: h.level, fields: fields, prefix: h.prefix}
}

// WithGroup implements slog.Handler.
func (h *JournalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &JournalHandler{level: h.level, fields: h.fields, prefix: h.prefix + journalKey(name) + "_"}
}

func journalPriority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

func addJournalField(fields map[string]string, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += journalKey(a.Key) + "_"
		}
		for _, ga := range a.Value.Group() {
			addJournalField(fields, prefix, ga)
		}
		return
	}

	key := prefix + journalKey(a.Key)
	switch a.Value.Kind() {
	case slog.KindInt64:
		fields[key] = strconv.FormatInt(a.Value.Int64(), 10)
	case slog.KindUint64:
		fields[key] = strconv.FormatUint(a.Value.Uint64(), 10)
	case slog.KindFloat64:
		fields[key] = strconv.FormatFloat(a.Value.Float64(), 'f', -1, 64)
	case slog.KindBool:
		fields[key] = strconv.FormatBool(a.Value.Bool())
	case slog.KindTime:
		fields[key] = a.Value.Time().Format(time.RFC3339Nano)
	default:
		fields[key] = a.Value.String()
	}
}

// journalKey maps an attribute key to a valid journal field name: uppercase
// letters, digits and underscores, not starting with an underscore or digit.
func journalKey(key string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(key) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	out := strings.TrimLeft(b.String(), "_")
	if out == "" || (out[0] >= '0' && out[0] <= '9') {
		out = "F_" + out
	}
	return out
}

// IsJournalAvailable reports whether the systemd journal socket exists.
func IsJournalAvailable() bool {
	return journal.Enabled()
}
