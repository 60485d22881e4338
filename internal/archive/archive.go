// Package archive implements C7, the Archiver: a single consumer behind a
// queue buffered to 256 records that formats completed-game records as PGN
// and appends them to a configured sink. The queue is not unbounded: a
// record enqueued while the buffer is full is dropped and logged. Grounded on the reference bot's single-writer
// append patterns (internal/obslog's file-core sink) generalised from log
// lines to PGN records; §5 states the Archiver "runs as a single consumer
// behind a queue" and failures here "are logged and do not block other
// components".
package archive

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/lichess-bot-go/internal/domain"
	"github.com/park285/lichess-bot-go/internal/obslog"
)

// Archiver owns the append-only sink and the queue goroutine. Enqueue never
// blocks the caller on I/O (§8: "Every spawned Game Worker either produces
// exactly one archive record or the archiver queue shows a matching drop
// log").
type Archiver struct {
	path string

	mu     sync.Mutex
	queue  chan domain.ArchiveRecord
	done   chan struct{}
	closed bool
}

// New starts the consumer goroutine immediately, so a record enqueued right
// after New returns is already being drained.
func New(path string) *Archiver {
	a := &Archiver{
		path:  path,
		queue: make(chan domain.ArchiveRecord, 256),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

// Enqueue hands off a completed-game record. Never blocks past the channel
// buffer; if the buffer is full the record is dropped and logged (§8).
func (a *Archiver) Enqueue(rec domain.ArchiveRecord) {
	select {
	case a.queue <- rec:
	default:
		obslog.L().Error("archive_queue_full_drop",
			obslog.KindField("internal"),
			zap.String("game_id", rec.GameID),
		)
	}
}

// Close stops accepting new records and waits for the queue to drain.
func (a *Archiver) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()
	<-a.done
}

func (a *Archiver) run() {
	defer close(a.done)
	for rec := range a.queue {
		if err := a.append(rec); err != nil {
			obslog.L().Error("archive_write_failed",
				obslog.KindField("internal"),
				zap.String("game_id", rec.GameID),
				zap.Error(err),
			)
		}
	}
}

func (a *Archiver) append(rec domain.ArchiveRecord) error {
	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open archive %s: %w", a.path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(FormatPGN(rec)); err != nil {
		return fmt.Errorf("write archive %s: %w", a.path, err)
	}
	return nil
}

// FormatPGN renders rec as a standard portable-game-notation record: tag
// pairs followed by the move list, with clock annotations per half-move
// where available (§4.7).
func FormatPGN(rec domain.ArchiveRecord) string {
	var b strings.Builder

	tag := func(name, value string) {
		fmt.Fprintf(&b, "[%s \"%s\"]\n", name, value)
	}
	tag("Event", orDefault(rec.Event, "Casual game"))
	tag("Site", orDefault(rec.Site, "?"))
	tag("Date", rec.Date.UTC().Format("2006.01.02"))
	tag("White", orDefault(rec.White, "?"))
	tag("Black", orDefault(rec.Black, "?"))
	tag("Result", orDefault(rec.Result, "*"))
	tag("TimeControl", orDefault(rec.TimeControl, "-"))
	tag("Variant", string(rec.Variant))
	tag("Termination", string(rec.Method))
	b.WriteByte('\n')

	for i, mv := range rec.Moves {
		if i%2 == 0 {
			fmt.Fprintf(&b, "%d. ", i/2+1)
		}
		b.WriteString(mv)
		if ann := clockAnnotation(rec.ClockAnnotations, i); ann != "" {
			b.WriteString(" ")
			b.WriteString(ann)
		}
		b.WriteByte(' ')
	}
	b.WriteString(orDefault(rec.Result, "*"))
	b.WriteString("\n\n")
	return b.String()
}

func clockAnnotation(clocks []time.Duration, ply int) string {
	if ply >= len(clocks) {
		return ""
	}
	d := clocks[ply]
	if d <= 0 {
		return ""
	}
	return fmt.Sprintf("{[%%clk %s]}", formatClock(d))
}

func formatClock(d time.Duration) string {
	total := int(d.Seconds())
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
