// Package delivery presents a selected creative to the user: it renders the
// notification text with Liquid templates and hands it to a sink (the log or
// an HTTP webhook).
package delivery

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/osteele/liquid"

	"github.com/ignite/adserving/internal/domain"
)

const (
	DefaultTitleTemplate = "{{ title }}"
	DefaultBodyTemplate  = "{{ body | truncate_chars: 120 }}"
)

// ErrTemplate is returned when a notification template does not compile or render.
var ErrTemplate = errors.New("notification template error")

// Notification is the rendered payload sent to the user's surface.
type Notification struct {
	CreativeInstanceID string `json:"creative_instance_id"`
	CreativeSetID      string `json:"creative_set_id"`
	CampaignID         string `json:"campaign_id"`
	AdvertiserID       string `json:"advertiser_id"`
	Segment            string `json:"segment"`
	Title              string `json:"title"`
	Body               string `json:"body"`
	TargetURL          string `json:"target_url"`
}

// Renderer turns a creative into a Notification.
type Renderer struct {
	engine *liquid.Engine
	title  *liquid.Template
	body   *liquid.Template
	mu     sync.Mutex
}

// NewRenderer compiles the title and body templates. Empty strings take the defaults.
func NewRenderer(titleTpl, bodyTpl string) (*Renderer, error) {
	if titleTpl == "" {
		titleTpl = DefaultTitleTemplate
	}
	if bodyTpl == "" {
		bodyTpl = DefaultBodyTemplate
	}

	engine := liquid.NewEngine()
	registerFilters(engine)

	title, err := engine.ParseString(titleTpl)
	if err != nil {
		return nil, fmt.Errorf("%w: title: %v", ErrTemplate, err)
	}
	body, err := engine.ParseString(bodyTpl)
	if err != nil {
		return nil, fmt.Errorf("%w: body: %v", ErrTemplate, err)
	}
	return &Renderer{engine: engine, title: title, body: body}, nil
}

func registerFilters(engine *liquid.Engine) {
	// {{ body | truncate_chars: 60 }} counts runes and appends an ellipsis.
	engine.RegisterFilter("truncate_chars", func(s string, n int) string {
		if n <= 0 || utf8.RuneCountInString(s) <= n {
			return s
		}
		r := []rune(s)
		if n <= 1 {
			return string(r[:n])
		}
		return strings.TrimSpace(string(r[:n-1])) + "…"
	})
	// {{ target_url | host }}
	engine.RegisterFilter("host", func(s string) string {
		return domain.HostOf(s)
	})
}

// Render fills the templates from ad.
func (r *Renderer) Render(ad domain.CreativeAd) (Notification, error) {
	bindings := map[string]interface{}{
		"title":         ad.Title,
		"body":          ad.Body,
		"target_url":    ad.TargetURL,
		"advertiser_id": ad.AdvertiserID,
		"segment":       ad.Segment,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	title, err := r.title.RenderString(bindings)
	if err != nil {
		return Notification{}, fmt.Errorf("%w: title: %v", ErrTemplate, err)
	}
	body, err := r.body.RenderString(bindings)
	if err != nil {
		return Notification{}, fmt.Errorf("%w: body: %v", ErrTemplate, err)
	}

	return Notification{
		CreativeInstanceID: ad.CreativeInstanceID,
		CreativeSetID:      ad.CreativeSetID,
		CampaignID:         ad.CampaignID,
		AdvertiserID:       ad.AdvertiserID,
		Segment:            ad.Segment,
		Title:              strings.TrimSpace(title),
		Body:               strings.TrimSpace(body),
		TargetURL:          ad.TargetURL,
	}, nil
}
