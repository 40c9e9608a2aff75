package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/adserving/internal/domain"
	"github.com/ignite/adserving/internal/pkg/httputil"
	"github.com/ignite/adserving/internal/pkg/logger"
	"github.com/ignite/adserving/internal/preferences"
	"github.com/ignite/adserving/internal/serving"
	"github.com/ignite/adserving/internal/targeting"
)

// Handlers contains the HTTP handlers
type Handlers struct {
	opts Options
}

// NewHandlers fills in defaults.
func NewHandlers(opts Options) *Handlers {
	if opts.AdType == "" {
		opts.AdType = domain.AdTypeNotification
	}
	if opts.MaxSegmentsPerCategory <= 0 {
		opts.MaxSegmentsPerCategory = targeting.DefaultMaxSegmentsPerCategory
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.New().String() }
	}
	return &Handlers{opts: opts}
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]interface{}{
		"status":    "healthy",
		"state":     h.opts.Scheduler.Status().State,
		"timestamp": h.opts.Now().UTC(),
	})
}

// GetStatus returns the scheduler snapshot.
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, h.opts.Scheduler.Status())
}

// StartServing arms the scheduler from persisted state.
func (h *Handlers) StartServing(w http.ResponseWriter, r *http.Request) {
	if err := h.opts.Scheduler.MaybeServe(r.Context()); err != nil {
		if errors.Is(err, serving.ErrServingDisabled) {
			httputil.Conflict(w, err.Error())
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.Accepted(w, h.opts.Scheduler.Status())
}

// StopServing disarms the scheduler.
func (h *Handlers) StopServing(w http.ResponseWriter, r *http.Request) {
	h.opts.Scheduler.StopServing()
	httputil.OK(w, h.opts.Scheduler.Status())
}

// cycleResponse is the JSON form of serving.Result.
type cycleResponse struct {
	Outcome    serving.Outcome    `json:"outcome"`
	Tier       string             `json:"tier"`
	Ad         *domain.CreativeAd `json:"ad,omitempty"`
	Error      string             `json:"error,omitempty"`
	DurationMS int64              `json:"duration_ms"`
}

// ServeNow runs one cycle synchronously.
func (h *Handlers) ServeNow(w http.ResponseWriter, r *http.Request) {
	res, err := h.opts.Scheduler.ServeNow(r.Context())
	switch {
	case errors.Is(err, serving.ErrCycleInFlight), errors.Is(err, serving.ErrServingDisabled):
		httputil.Conflict(w, err.Error())
		return
	case err != nil:
		httputil.InternalError(w, err)
		return
	}

	resp := cycleResponse{
		Outcome:    res.Outcome,
		Tier:       res.Tier.String(),
		Ad:         res.Ad,
		DurationMS: res.Duration.Milliseconds(),
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	httputil.OK(w, resp)
}

// eventRequest is a user interaction reported by the presentation surface.
type eventRequest struct {
	CreativeInstanceID string             `json:"creative_instance_id"`
	CreativeSetID      string             `json:"creative_set_id"`
	CampaignID         string             `json:"campaign_id"`
	AdvertiserID       string             `json:"advertiser_id"`
	Segment            string             `json:"segment"`
	EventType          domain.AdEventType `json:"event_type"`
	AdType             domain.AdType      `json:"ad_type,omitempty"`
}

// RecordEvent appends a viewed, clicked, dismissed or timed_out event.
// Served events are written only by the serving cycle.
func (h *Handlers) RecordEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.CreativeInstanceID == "" {
		httputil.BadRequest(w, "creative_instance_id is required")
		return
	}
	if !req.EventType.IsValid() || req.EventType == domain.AdServed {
		httputil.Errorf(w, "event_type %q is not accepted", req.EventType)
		return
	}
	adType := req.AdType
	if adType == "" {
		adType = h.opts.AdType
	}

	ev := domain.AdEvent{
		ID:                 h.opts.NewID(),
		AdType:             adType,
		CreativeInstanceID: req.CreativeInstanceID,
		CreativeSetID:      req.CreativeSetID,
		CampaignID:         req.CampaignID,
		AdvertiserID:       req.AdvertiserID,
		Segment:            req.Segment,
		Type:               req.EventType,
		Timestamp:          h.opts.Now(),
	}
	if err := h.opts.Events.RecordEvent(r.Context(), ev); err != nil {
		httputil.InternalError(w, err)
		return
	}
	if h.opts.OnEvent != nil {
		h.opts.OnEvent(ev.Type)
	}
	logger.Debug("event recorded", "creative_instance_id", ev.CreativeInstanceID, "event_type", ev.Type)
	httputil.Created(w, ev)
}

// DefaultHistoryWindow is how far back GetAdsHistory looks when from is omitted.
const DefaultHistoryWindow = 30 * 24 * time.Hour

// historyResponse lists events in [from, to], newest first.
type historyResponse struct {
	From   time.Time        `json:"from"`
	To     time.Time        `json:"to"`
	Count  int              `json:"count"`
	Events []domain.AdEvent `json:"events"`
}

// GetAdsHistory returns recorded events between the RFC 3339 query
// parameters from and to, optionally narrowed by event_type.
func (h *Handlers) GetAdsHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	to := h.opts.Now()
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.Errorf(w, "invalid to: %v", err)
			return
		}
		to = t
	}
	from := to.Add(-DefaultHistoryWindow)
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.Errorf(w, "invalid from: %v", err)
			return
		}
		from = t
	}
	if from.After(to) {
		httputil.BadRequest(w, "from is after to")
		return
	}
	eventType := domain.AdEventType(q.Get("event_type"))
	if eventType != "" && !eventType.IsValid() {
		httputil.Errorf(w, "unknown event_type %q", eventType)
		return
	}

	all, err := h.opts.Events.GetAllEvents(r.Context(), h.opts.AdType)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	events := []domain.AdEvent{}
	for _, e := range all {
		if e.Timestamp.Before(from) || e.Timestamp.After(to) {
			continue
		}
		if eventType != "" && e.Type != eventType {
			continue
		}
		events = append(events, e)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Timestamp.After(events[j].Timestamp) })

	httputil.OK(w, historyResponse{From: from, To: to, Count: len(events), Events: events})
}

// GetPreferences returns the opted-in and opted-out segments and flagged creative sets.
func (h *Handlers) GetPreferences(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, h.opts.Preferences.Snapshot())
}

type segmentRequest struct {
	Segment string `json:"segment"`
}

// ToggleOptOut stops (or resumes) ads for a segment and its children.
func (h *Handlers) ToggleOptOut(w http.ResponseWriter, r *http.Request) {
	h.toggleSegment(w, r, h.opts.Preferences.ToggleOptOut)
}

// ToggleOptIn marks a segment as liked, clearing any opt-out.
func (h *Handlers) ToggleOptIn(w http.ResponseWriter, r *http.Request) {
	h.toggleSegment(w, r, h.opts.Preferences.ToggleOptIn)
}

func (h *Handlers) toggleSegment(w http.ResponseWriter, r *http.Request, toggle func(ctx context.Context, segment string) (preferences.Action, error)) {
	var req segmentRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	action, err := toggle(r.Context(), req.Segment)
	switch {
	case errors.Is(err, preferences.ErrEmptyKey):
		httputil.BadRequest(w, "segment is required")
		return
	case err != nil:
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"segment": req.Segment, "action": action})
}

type flagRequest struct {
	CreativeSetID string `json:"creative_set_id"`
}

// ToggleFlagged flags (or unflags) a creative set so it is never served again.
func (h *Handlers) ToggleFlagged(w http.ResponseWriter, r *http.Request) {
	var req flagRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	flagged, err := h.opts.Preferences.ToggleFlagged(r.Context(), req.CreativeSetID)
	switch {
	case errors.Is(err, preferences.ErrEmptyKey):
		httputil.BadRequest(w, "creative_set_id is required")
		return
	case err != nil:
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"creative_set_id": req.CreativeSetID, "flagged": flagged})
}

// GetSegments reports the targeting segments the next cycle would use.
func (h *Handlers) GetSegments(w http.ResponseWriter, r *http.Request) {
	p, err := h.opts.Profile.Profile(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	n := h.opts.MaxSegmentsPerCategory
	child := targeting.GetTopSegments(p.UserModel, n, false)
	parent := targeting.GetTopSegments(p.UserModel, n, true)
	if child == nil {
		child = []string{}
	}
	if parent == nil {
		parent = []string{}
	}
	httputil.OK(w, map[string]interface{}{
		"segments":        child,
		"parent_segments": parent,
		"untargeted":      len(child) == 0,
	})
}
