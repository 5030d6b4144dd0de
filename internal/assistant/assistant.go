// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package assistant

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeranaias/glance/internal/classify"
	"github.com/jeranaias/glance/internal/confidence"
	"github.com/jeranaias/glance/internal/config"
	"github.com/jeranaias/glance/internal/prompt"
	"github.com/jeranaias/glance/internal/provider"
	"github.com/jeranaias/glance/internal/storage"
	"github.com/jeranaias/glance/internal/telemetry"
	"github.com/jeranaias/glance/internal/thread"
	"github.com/jeranaias/glance/internal/util"
)

const (
	// eventBuffer decouples the provider relay from a slow consumer.
	eventBuffer = 16

	// persistTimeout bounds history writes after a round ends.
	persistTimeout = 5 * time.Second
)

// ProviderFactory creates the adapter for a provider id.
type ProviderFactory func(name, baseURL string) (provider.Provider, error)

// =============================================================================
// ASSISTANT
// =============================================================================

// Assistant runs analysis rounds. It is safe for concurrent use.
type Assistant struct {
	cfg atomic.Pointer[config.Config]

	newProvider ProviderFactory
	history     *storage.HistoryStore
	tracker     *telemetry.Tracker
	now         func() time.Time

	mu      sync.Mutex
	current *thread.Manager
}

// New creates an assistant using cfg. Usage is tracked in memory and
// history is not persisted until WithTracker and WithHistory are called.
func New(cfg *config.Config) *Assistant {
	a := &Assistant{
		newProvider: provider.New,
		tracker:     telemetry.NewTracker(nil),
		now:         time.Now,
	}
	a.cfg.Store(cfg.Clone())
	return a
}

// WithHistory persists every round's thread to h.
func (a *Assistant) WithHistory(h *storage.HistoryStore) *Assistant {
	a.history = h
	return a
}

// WithTracker records usage into t.
func (a *Assistant) WithTracker(t *telemetry.Tracker) *Assistant {
	if t != nil {
		a.tracker = t
	}
	return a
}

// WithProviderFactory replaces how adapters are created.
func (a *Assistant) WithProviderFactory(f ProviderFactory) *Assistant {
	if f != nil {
		a.newProvider = f
	}
	return a
}

// SetConfig swaps the configuration used by later rounds.
func (a *Assistant) SetConfig(cfg *config.Config) {
	a.cfg.Store(cfg.Clone())
}

// Config returns the configuration in effect.
func (a *Assistant) Config() *config.Config {
	return a.cfg.Load()
}

// Tracker returns the usage tracker.
func (a *Assistant) Tracker() *telemetry.Tracker {
	return a.tracker
}

// History returns the history store, or nil when history is not persisted.
func (a *Assistant) History() *storage.HistoryStore {
	return a.history
}

// Current returns a copy of the most recently started thread.
func (a *Assistant) Current() (thread.Thread, bool) {
	a.mu.Lock()
	m := a.current
	a.mu.Unlock()
	if m == nil {
		return thread.Thread{}, false
	}
	return m.Snapshot()
}

// =============================================================================
// ANALYZE
// =============================================================================

// Analyze runs one round as a single non-streaming provider call and
// returns the whole answer.
func (a *Assistant) Analyze(ctx context.Context, in Input) Result {
	r, err := a.prepare(ctx, in)
	if err != nil {
		return failedResult(err)
	}

	start := a.now()
	p, err := a.newProvider(r.provider, r.baseURL)
	if err != nil {
		return resultFrom(a.fail(ctx, r, start, &provider.ConfigurationError{Provider: r.provider, Err: err}))
	}

	answer, err := p.Complete(ctx, r.req)
	if err != nil {
		if ctx.Err() != nil {
			a.cancelled(ctx, r, start)
			return failedResult(ctx.Err())
		}
		return resultFrom(a.fail(ctx, r, start, err))
	}
	return resultFrom(a.succeed(ctx, r, start, answer))
}

// AnalyzeStream starts one round and relays the answer as it arrives.
//
// Caller misuse is returned directly and nothing is recorded. Otherwise the
// channel yields zero or more EventChunk followed by exactly one EventDone
// or EventError, then closes. If ctx is cancelled the channel closes with
// no terminal event and the round is recorded as failed.
func (a *Assistant) AnalyzeStream(ctx context.Context, in Input) (<-chan Event, error) {
	r, err := a.prepare(ctx, in)
	if err != nil {
		return nil, err
	}

	out := make(chan Event, eventBuffer)
	go a.run(ctx, r, out)
	return out, nil
}

// prepare validates in, opens the round's thread and appends the user turn.
func (a *Assistant) prepare(ctx context.Context, in Input) (*round, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	m, err := a.session(ctx, in)
	if err != nil {
		return nil, err
	}

	cfg := a.Config()
	r := a.newRound(cfg, m, in)

	if err := m.AppendUser(in.Text, in.Image); err != nil {
		return nil, err
	}
	r.req.Prior = m.PriorContext()

	log.Printf("ANALYZE_START | thread=%s provider=%s model=%s category=%s follow_up=%t words=%d",
		r.threadID, r.provider, r.req.Model, r.category, in.FollowUp, r.descriptor.WordCount)
	return r, nil
}

func failedResult(err error) Result {
	return Result{Success: false, Error: err.Error(), Confidence: confidence.Failed, Err: err}
}

// resultFrom converts a terminal event into a Result.
func resultFrom(ev Event) Result {
	res := Result{
		Success:    ev.Kind == EventDone,
		Answer:     ev.FullAnswer,
		Confidence: ev.Confidence,
		LatencyMs:  ev.LatencyMs,
		ThreadID:   ev.ThreadID,
		Category:   ev.Category,
		Err:        ev.Err,
	}
	if ev.Err != nil {
		res.Error = ev.Err.Error()
	}
	return res
}

func validateInput(in Input) error {
	if strings.TrimSpace(in.Text) == "" && !in.Image.IsImage() {
		return &thread.CallerMisuseError{Op: "analyze", Err: ErrEmptyInput}
	}
	if len(in.Text) > MaxInputBytes {
		return &thread.CallerMisuseError{Op: "analyze", Err: ErrInputTooLong}
	}
	return nil
}

// session returns the thread manager for the round: a fresh thread for a
// top-level analysis, the requested thread for a follow-up.
func (a *Assistant) session(ctx context.Context, in Input) (*thread.Manager, error) {
	if !in.FollowUp {
		m := thread.NewManager()
		m.Start()
		a.setCurrent(m)
		return m, nil
	}

	a.mu.Lock()
	m := a.current
	a.mu.Unlock()

	if in.ThreadID != "" && (m == nil || m.ID() != in.ThreadID) {
		m = nil
		if a.history != nil {
			t, err := a.history.Get(ctx, in.ThreadID)
			switch {
			case errors.Is(err, storage.ErrThreadNotFound):
			case err != nil:
				return nil, err
			default:
				m = thread.NewManager()
				m.Resume(t)
				a.setCurrent(m)
			}
		}
	}

	if m == nil {
		return nil, &thread.CallerMisuseError{Op: "follow-up", Err: thread.ErrNoActiveThread}
	}
	if err := m.CheckFollowUp(in.Text); err != nil {
		return nil, err
	}
	return m, nil
}

func (a *Assistant) setCurrent(m *thread.Manager) {
	a.mu.Lock()
	a.current = m
	a.mu.Unlock()
}

// =============================================================================
// ROUND
// =============================================================================

// round is the immutable plan for one request.
type round struct {
	threadID   string
	manager    *thread.Manager
	descriptor classify.Descriptor
	category   classify.Category
	provider   string
	baseURL    string
	req        provider.Request
}

func (a *Assistant) newRound(cfg *config.Config, m *thread.Manager, in Input) *round {
	d := classify.Classify(in.Text)
	isImage := in.Image.IsImage()

	var plan prompt.Plan
	if in.FollowUp {
		plan = prompt.BuildFollowUp(in.Text, d)
	} else {
		plan = prompt.Build(in.Text, d, isImage)
	}
	// The configured temperature replaces the default; math stays deterministic.
	if !d.IsMath {
		plan.Temperature = cfg.Temperature
	}

	name := strings.ToLower(cfg.Provider)
	pc, _ := cfg.ProviderConfig(name)

	var img *thread.Image
	if isImage {
		img = in.Image
	}

	return &round{
		threadID:   m.ID(),
		manager:    m,
		descriptor: d,
		category:   plan.Category,
		provider:   name,
		baseURL:    pc.BaseURL,
		req: provider.Request{
			Prompt:     plan,
			Image:      img,
			Credential: pc.APIKey,
			Model:      cfg.ModelFor(name),
			MaxTokens:  cfg.MaxTokens,
		},
	}
}

// run drives the provider stream and finishes the round. It is the only
// goroutine that writes to out.
func (a *Assistant) run(ctx context.Context, r *round, out chan<- Event) {
	defer close(out)
	start := a.now()

	p, err := a.newProvider(r.provider, r.baseURL)
	if err != nil {
		a.emit(ctx, out, a.fail(ctx, r, start, &provider.ConfigurationError{Provider: r.provider, Err: err}))
		return
	}

	events, err := p.Stream(ctx, r.req)
	if err != nil {
		if ctx.Err() != nil {
			a.cancelled(ctx, r, start)
			return
		}
		a.emit(ctx, out, a.fail(ctx, r, start, err))
		return
	}

	for ev := range events {
		switch ev.Kind {
		case provider.EventChunk:
			a.emit(ctx, out, Event{Kind: EventChunk, Chunk: ev.Text, ThreadID: r.threadID})
		case provider.EventDone:
			a.emit(ctx, out, a.succeed(ctx, r, start, ev.Text))
			return
		case provider.EventError:
			a.emit(ctx, out, a.fail(ctx, r, start, ev.Err))
			return
		}
	}

	a.cancelled(ctx, r, start)
}

// succeed closes the round with answer and returns the terminal event.
// Usage is folded in memory and written to storage in the background.
func (a *Assistant) succeed(ctx context.Context, r *round, start time.Time, answer string) Event {
	latency := a.now().Sub(start)
	score := confidence.Estimate(answer, r.descriptor)

	if err := r.manager.CompleteRound(answer, score); err != nil {
		log.Printf("THREAD_ERROR | thread=%s error=%v", r.threadID, err)
	}
	a.persist(ctx, r)

	a.tracker.Record(telemetry.Event{
		Provider:    r.provider,
		Model:       r.req.Model,
		Success:     true,
		Latency:     latency,
		ContentType: r.category.String(),
		Timestamp:   a.now(),
	})

	log.Printf("ANALYZE_COMPLETE | thread=%s provider=%s confidence=%d latency=%dms chars=%d",
		r.threadID, r.provider, score, latency.Milliseconds(), len(answer))

	return Event{
		Kind:       EventDone,
		FullAnswer: answer,
		Confidence: score,
		LatencyMs:  latency.Milliseconds(),
		ThreadID:   r.threadID,
		Category:   r.category.String(),
	}
}

func (a *Assistant) fail(ctx context.Context, r *round, start time.Time, err error) Event {
	latency := a.now().Sub(start)
	a.recordFailure(ctx, r, err)

	log.Printf("ANALYZE_ERROR | thread=%s provider=%s latency=%dms error=%s",
		r.threadID, r.provider, latency.Milliseconds(), util.TruncateRunes(err.Error(), 200))

	return Event{
		Kind:       EventError,
		Confidence: confidence.Failed,
		LatencyMs:  latency.Milliseconds(),
		ThreadID:   r.threadID,
		Category:   r.category.String(),
		Err:        err,
	}
}

// cancelled finishes a round whose consumer went away. No event is sent.
func (a *Assistant) cancelled(ctx context.Context, r *round, start time.Time) {
	err := ctx.Err()
	if err == nil {
		err = context.Canceled
	}
	a.recordFailure(ctx, r, err)
	log.Printf("ANALYZE_CANCELLED | thread=%s provider=%s after=%dms",
		r.threadID, r.provider, a.now().Sub(start).Milliseconds())
}

func (a *Assistant) recordFailure(ctx context.Context, r *round, err error) {
	r.manager.FailRound()
	a.persist(ctx, r)
	a.tracker.Record(telemetry.Event{
		Provider:    r.provider,
		Model:       r.req.Model,
		Success:     false,
		ContentType: r.category.String(),
		Error:       err.Error(),
		Timestamp:   a.now(),
	})
}

// persist saves the thread even when the request context is already done.
func (a *Assistant) persist(ctx context.Context, r *round) {
	if a.history == nil {
		return
	}
	t, ok := r.manager.Snapshot()
	if !ok {
		return
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := a.history.Save(pctx, t); err != nil {
		log.Printf("HISTORY_SAVE_ERROR | thread=%s error=%v", r.threadID, err)
	}
}

// emit delivers ev unless the consumer has gone away.
func (a *Assistant) emit(ctx context.Context, out chan<- Event, ev Event) {
	select {
	case out <- ev:
	case <-ctx.Done():
	}
}
