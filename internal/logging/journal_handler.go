package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

// SyslogIdentifier tags every journal entry, for `journalctl -t simstream`.
const SyslogIdentifier = "simstream"

// JournalHandler writes records to the systemd journal. Attributes become
// upper-case journal fields so `journalctl MODULE=capture UDID=...` works.
type JournalHandler struct {
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

// NewJournalHandler returns a journal handler gated by level.
func NewJournalHandler(level slog.Leveler) *JournalHandler {
	return &JournalHandler{level: level}
}

func (h *JournalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *JournalHandler) Handle(_ context.Context, r slog.Record) error {
	fields := make(map[string]string, len(h.attrs)+r.NumAttrs()+1)
	fields["SYSLOG_IDENTIFIER"] = SyslogIdentifier
	for _, a := range h.attrs {
		addAttrToFields(fields, a, h.groups)
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttrToFields(fields, a, h.groups)
		return true
	})

	err := journal.Send(r.Message, journalPriority(r.Level), fields)
	if err != nil {
		// the journal is the sink that failed, so report on stderr
		fmt.Fprintf(os.Stderr, "journal: %v\n", err)
	}
	return err
}

func (h *JournalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(slices.Clone(h.attrs), attrs...)
	return &clone
}

func (h *JournalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(slices.Clone(h.groups), name)
	return &clone
}

func journalPriority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	}
	return journal.PriDebug
}

// journalKey joins groups and key into a valid journal field name.
func journalKey(groups []string, key string) string {
	if len(groups) > 0 {
		key = strings.Join(groups, "_") + "_" + key
	}
	return strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

// addAttrToFields flattens a into fields. Groups nest with underscores.
func addAttrToFields(fields map[string]string, a slog.Attr, groups []string) {
	if a.Equal(slog.Attr{}) {
		return
	}

	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindGroup:
		nested := append(slices.Clone(groups), a.Key)
		for _, ga := range v.Group() {
			addAttrToFields(fields, ga, nested)
		}
		return
	case slog.KindInt64:
		fields[journalKey(groups, a.Key)] = strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		fields[journalKey(groups, a.Key)] = strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		fields[journalKey(groups, a.Key)] = strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindBool:
		fields[journalKey(groups, a.Key)] = strconv.FormatBool(v.Bool())
	case slog.KindTime:
		fields[journalKey(groups, a.Key)] = v.Time().Format(time.RFC3339Nano)
	default:
		fields[journalKey(groups, a.Key)] = v.String()
	}
}

// IsJournalAvailable reports whether journald is listening.
func IsJournalAvailable() bool {
	return journal.Enabled()
}
