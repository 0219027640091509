package logger

import (
	"context"
	"encoding/json"
	"time"

	ax "github.com/axiomhq/axiom-go/axiom"
	"github.com/axiomhq/axiom-go/axiom/ingest"
	"github.com/rs/zerolog"
)

const (
	axiomBatch   = 200
	axiomBuffer  = 1000
	axiomTimeout = 15 * time.Second
)

// axiomSink is an io.Writer that ships info and higher events to an Axiom
// dataset in batches. Events are dropped when the buffer is full.
type axiomSink struct {
	client  *ax.Client
	dataset string
	events  chan ax.Event
	stop    chan struct{}
	done    chan struct{}
}

func newAxiomSink(token, orgID, dataset string, every time.Duration) (*axiomSink, error) {
	opts := []ax.Option{ax.SetToken(token)}
	if orgID != "" {
		opts = append(opts, ax.SetOrganizationID(orgID))
	}
	c, err := ax.NewClient(opts...)
	if err != nil {
		return nil, err
	}
	if dataset == "" {
		dataset = "dev_dmscan"
	}
	if every <= 0 {
		every = 10 * time.Second
	}

	s := &axiomSink{
		client:  c,
		dataset: dataset,
		events:  make(chan ax.Event, axiomBuffer),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.run(every)
	return s, nil
}

func (s *axiomSink) Write(p []byte) (int, error) {
	if ev, ok := toEvent(p, time.Now()); ok {
		select {
		case s.events <- ev:
		default:
		}
	}
	return len(p), nil
}

// toEvent turns one zerolog JSON line into an Axiom event. Debug and trace
// lines are skipped.
func toEvent(p []byte, now time.Time) (ax.Event, bool) {
	ev := ax.Event{}
	if err := json.Unmarshal(p, &ev); err != nil {
		ev = ax.Event{zerolog.MessageFieldName: string(p), zerolog.LevelFieldName: zerolog.InfoLevel.String()}
	}
	if s, ok := ev[zerolog.LevelFieldName].(string); ok {
		if lvl, err := zerolog.ParseLevel(s); err == nil && lvl < zerolog.InfoLevel {
			return nil, false
		}
	}
	ev["service"] = "dmscan"
	if _, ok := ev[ingest.TimestampField]; !ok {
		ev[ingest.TimestampField] = now
	}
	return ev, true
}

func (s *axiomSink) run(every time.Duration) {
	defer close(s.done)
	tick := time.NewTicker(every)
	defer tick.Stop()

	batch := make([]ax.Event, 0, axiomBatch)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), axiomTimeout)
		_, _ = s.client.IngestEvents(ctx, s.dataset, batch)
		cancel()
		batch = batch[:0]
	}

	for {
		select {
		case ev := <-s.events:
			if batch = append(batch, ev); len(batch) >= axiomBatch {
				flush()
			}
		case <-tick.C:
			flush()
		case <-s.stop:
			for len(s.events) > 0 {
				batch = append(batch, <-s.events)
			}
			flush()
			return
		}
	}
}

// Close sends what is buffered and stops the sink.
func (s *axiomSink) Close() {
	close(s.stop)
	<-s.done
}
