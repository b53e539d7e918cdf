package pages

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"supernova/api/internal/routes"
	"supernova/api/internal/session"
)

// RenderFunc draws a page into frame.Canvas.
type RenderFunc func(frame *Frame) error

// Page is a compiled page. Render is preferred over Main.
type Page struct {
	Slug   string
	Render RenderFunc
	Main   RenderFunc
}

func (p Page) entry() RenderFunc {
	if p.Render != nil {
		return p.Render
	}
	return p.Main
}

// Frame is what a page sees while rendering.
type Frame struct {
	Ctx        context.Context
	Session    *session.Session
	Canvas     *Canvas
	Dispatcher *routes.Dispatcher
	Params     url.Values
	Logger     *zap.Logger
}

// Dispatch calls a route on behalf of the session's active user.
func (f *Frame) Dispatch(name string, payload map[string]any) (any, error) {
	return f.Dispatcher.Call(f.Ctx, name, payload, routes.Call{CurrentUser: f.Session.EnsureActiveUser()})
}

// Guard runs a dispatch and turns a failure into an error element. It
// reports whether the call succeeded.
func (f *Frame) Guard(name string, payload map[string]any) (any, bool) {
	result, err := f.Dispatch(name, payload)
	if err != nil {
		f.Canvas.Error("%s failed: %v", name, err)
		return nil, false
	}
	return result, true
}

// RequireDispatcher writes the degraded mode banner and reports false when
// no route registry is available.
func (f *Frame) RequireDispatcher() bool {
	if f.Dispatcher.Available() {
		return true
	}
	f.Canvas.Warning("Governance routes are unavailable. This section is read-only until the route registry is configured.")
	return false
}

// TitleCase turns a slug such as "video_chat" into "Video Chat".
func TitleCase(slug string) string {
	words := strings.FieldsFunc(slug, func(r rune) bool { return r == '_' || r == '-' || r == ' ' })
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + strings.ToLower(word[1:])
	}
	return strings.Join(words, " ")
}

// Slugify turns a label such as "Video Chat" into "video_chat".
func Slugify(label string) string {
	return strings.ToLower(strings.Join(strings.Fields(label), "_"))
}
