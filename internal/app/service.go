package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"supernova/api/internal/authpw"
	"supernova/api/internal/config"
	"supernova/api/internal/diary"
	"supernova/api/internal/export"
	"supernova/api/internal/governance"
	"supernova/api/internal/logging"
	"supernova/api/internal/pages"
	"supernova/api/internal/relay"
	"supernova/api/internal/rfc"
	"supernova/api/internal/routes"
	"supernova/api/internal/search"
	"supernova/api/internal/session"
)

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BackendStatus is the part of the backend client the status banner uses.
type BackendStatus interface {
	BaseURL() string
	Health(ctx context.Context) error
	Status(ctx context.Context) (map[string]any, error)
}

// Deps are the collaborators a Service is built from. A nil field disables
// the matching feature; the rest of the service keeps serving.
type Deps struct {
	DB         Pinger
	Sessions   session.Store
	Dispatcher *routes.Dispatcher
	Governance *governance.Service
	Search     *search.Adapter
	Auth       *authpw.Service
	Backend    BackendStatus
	RFCs       *rfc.Repo
	Diary      *diary.Exporter
	Hub        *relay.Hub
	Logger     *zap.Logger
}

type Service struct {
	cfg        config.Config
	db         Pinger
	sessions   session.Store
	dispatcher *routes.Dispatcher
	pages      *pages.Registry
	loader     *pages.Loader
	navigator  *pages.Navigator
	governance *governance.Service
	search     *search.Adapter
	auth       *authpw.Service
	backend    BackendStatus
	rfcs       *rfc.Repo
	diary      *diary.Exporter
	hub        *relay.Hub
	logger     *zap.Logger
	now        func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func New(cfg config.Config, deps Deps) *Service {
	logger := logging.OrNop(deps.Logger)
	sessions := deps.Sessions
	if sessions == nil {
		sessions = session.NewMemoryStore()
	}
	s := &Service{
		cfg:        cfg,
		db:         deps.DB,
		sessions:   sessions,
		dispatcher: deps.Dispatcher,
		governance: deps.Governance,
		search:     deps.Search,
		auth:       deps.Auth,
		backend:    deps.Backend,
		rfcs:       deps.RFCs,
		diary:      deps.Diary,
		hub:        deps.Hub,
		logger:     logger,
		now:        time.Now,
		locks:      make(map[string]*sessionLock),
	}
	s.pages = pages.NewRegistry(logger)
	s.registerPages(s.pages)
	s.loader = pages.NewLoader(s.pages, cfg.PagesDirs, logger)
	s.navigator = pages.NewNavigator(Navigation, session.KeyActivePage)
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	if s.db == nil {
		return missing("database")
	}
	return s.db.Ping(ctx)
}

// Hub returns the signaling relay, or nil when it is not wired.
func (s *Service) Hub() *relay.Hub {
	return s.hub
}

// lockSession serializes all work on one session id.
func (s *Service) lockSession(id string) func() {
	s.locksMu.Lock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &sessionLock{}
		s.locks[id] = lock
	}
	lock.refs++
	s.locksMu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.locksMu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, id)
		}
		s.locksMu.Unlock()
	}
}

// withSession loads the session, runs fn and saves the session only when fn
// succeeds, so a failed action leaves the stored state unchanged.
func (s *Service) withSession(ctx context.Context, id string, fn func(*session.Session) error) error {
	unlock := s.lockSession(id)
	defer unlock()

	sess, err := s.sessions.Load(ctx, id)
	if errors.Is(err, session.ErrNotFound) {
		sess = session.New(id)
	} else if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	sess.EnsureActiveUser()

	if err := fn(sess); err != nil {
		return err
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Alert is a banner shown above the page.
type Alert struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

type StatusReport struct {
	Badge       string         `json:"badge"`
	Environment string         `json:"environment"`
	LiveBackend bool           `json:"live_backend"`
	BackendURL  string         `json:"backend_url,omitempty"`
	Backend     map[string]any `json:"backend,omitempty"`
	Routes      bool           `json:"routes_available"`
	Relay       bool           `json:"relay_running"`
	Alerts      []Alert        `json:"alerts"`
}

// Status reports the environment badge and the health of optional
// dependencies as banners.
func (s *Service) Status(ctx context.Context) StatusReport {
	report := StatusReport{
		Badge:       "Development",
		Environment: s.cfg.AppEnv,
		LiveBackend: s.cfg.UseRealBackend,
		Routes:      s.dispatcher.Available(),
		Relay:       s.hub != nil && s.hub.Running(),
		Alerts:      []Alert{},
	}
	if s.cfg.Production() {
		report.Badge = "Production"
	}
	if !report.Routes {
		report.Alerts = append(report.Alerts, Alert{Level: "warning", Message: missing("route registry").Error()})
	}

	if s.backend == nil {
		report.Alerts = append(report.Alerts, Alert{Level: "warning", Message: missing("backend URL").Error()})
		return report
	}
	report.BackendURL = s.backend.BaseURL()
	if err := s.backend.Health(ctx); err != nil {
		s.logger.Warn("backend health check failed", zap.String("backend_url", report.BackendURL), zap.Error(err))
		report.Alerts = append(report.Alerts, Alert{Level: "error", Message: fmt.Sprintf("Backend unreachable at %s", report.BackendURL)})
		return report
	}
	status, err := s.backend.Status(ctx)
	if err != nil {
		report.Alerts = append(report.Alerts, Alert{Level: "warning", Message: fmt.Sprintf("Backend status unavailable: %v", err)})
		return report
	}
	report.Backend = status
	return report
}

type SessionView struct {
	ActiveUser     string         `json:"active_user"`
	Theme          string         `json:"theme"`
	RecentSearches []string       `json:"recent_searches"`
	Values         map[string]any `json:"values"`
}

func viewOf(sess *session.Session) SessionView {
	searches := sess.GetStrings(session.KeyRecentSearches)
	if searches == nil {
		searches = []string{}
	}
	return SessionView{
		ActiveUser:     sess.EnsureActiveUser(),
		Theme:          sess.GetString(session.KeyTheme, session.ThemeLight),
		RecentSearches: searches,
		Values:         sess.Snapshot(),
	}
}

func (s *Service) Session(ctx context.Context, id string) (SessionView, error) {
	var view SessionView
	err := s.withSession(ctx, id, func(sess *session.Session) error {
		view = viewOf(sess)
		return nil
	})
	return view, err
}

// Login verifies the harmonizer's password and makes it the active user.
func (s *Service) Login(ctx context.Context, id, username, password string) (SessionView, error) {
	if s.auth == nil {
		return SessionView{}, missing("harmonizer store")
	}
	var view SessionView
	err := s.withSession(ctx, id, func(sess *session.Session) error {
		h, err := s.auth.SignIn(ctx, authpw.SignInRequest{Username: username, Password: password})
		if err != nil {
			return err
		}
		sess.Set(session.KeyActiveUser, h.Username)
		sess.Set(session.KeyProfileData, map[string]any{"username": h.Username, "bio": h.Bio, "is_admin": h.IsAdmin})
		view = viewOf(sess)
		return nil
	})
	return view, err
}

type SignUpInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Bio      string `json:"bio"`
}

// SignUp registers a harmonizer and signs the session in as it.
func (s *Service) SignUp(ctx context.Context, id string, input SignUpInput) (SessionView, error) {
	if s.auth == nil {
		return SessionView{}, missing("harmonizer store")
	}
	var view SessionView
	err := s.withSession(ctx, id, func(sess *session.Session) error {
		h, err := s.auth.SignUp(ctx, authpw.SignUpRequest{
			Username: input.Username,
			Email:    input.Email,
			Password: input.Password,
			Bio:      input.Bio,
		})
		if err != nil {
			return err
		}
		sess.Set(session.KeyActiveUser, h.Username)
		sess.Set(session.KeyProfileData, map[string]any{"username": h.Username, "bio": h.Bio, "is_admin": h.IsAdmin})
		view = viewOf(sess)
		return nil
	})
	return view, err
}

func (s *Service) Logout(ctx context.Context, id string) (SessionView, error) {
	var view SessionView
	err := s.withSession(ctx, id, func(sess *session.Session) error {
		sess.Set(session.KeyActiveUser, session.GuestUser)
		sess.Delete(session.KeyProfileData)
		sess.Delete(session.KeyProfileFollowers)
		sess.Delete(session.KeyProfileFollowing)
		view = viewOf(sess)
		return nil
	})
	return view, err
}

func (s *Service) ToggleTheme(ctx context.Context, id string) (string, error) {
	var theme string
	err := s.withSession(ctx, id, func(sess *session.Session) error {
		theme = sess.ToggleTheme()
		return nil
	})
	return theme, err
}

func (s *Service) RecordSearch(ctx context.Context, id, query string) ([]string, error) {
	var searches []string
	err := s.withSession(ctx, id, func(sess *session.Session) error {
		searches = sess.AddRecentSearch(query)
		return nil
	})
	return searches, err
}

// SearchUsers records the query as a recent search and returns matching
// usernames.
func (s *Service) SearchUsers(ctx context.Context, id, query string) ([]string, error) {
	if s.search == nil {
		return nil, missing("user search")
	}
	var users []string
	err := s.withSession(ctx, id, func(sess *session.Session) error {
		if strings.TrimSpace(query) != "" {
			sess.AddRecentSearch(query)
		}
		users = s.search.SearchUsers(ctx, query)
		return nil
	})
	return users, err
}

// AppendMessage adds a message from the active user to the conversation
// with peer.
func (s *Service) AppendMessage(ctx context.Context, id, peer, content string) (session.Conversation, error) {
	peer = strings.TrimSpace(peer)
	content = strings.TrimSpace(content)
	if peer == "" {
		return session.Conversation{}, routes.Invalid("to", "is required")
	}
	if content == "" {
		return session.Conversation{}, routes.Invalid("content", "is required")
	}
	var conversation session.Conversation
	err := s.withSession(ctx, id, func(sess *session.Session) error {
		conversation = sess.AppendMessage(peer, sess.EnsureActiveUser(), content)
		return nil
	})
	return conversation, err
}

type NavView struct {
	Labels []string `json:"labels"`
	Active string   `json:"active"`
	Slug   string   `json:"slug"`
}

func (s *Service) navView(sess *session.Session) NavView {
	active := s.navigator.Active(sess)
	slug, _ := s.navigator.Slug(active)
	return NavView{Labels: s.navigator.Labels(), Active: active, Slug: slug}
}

func (s *Service) Navigation(ctx context.Context, id string) (NavView, error) {
	var view NavView
	err := s.withSession(ctx, id, func(sess *session.Session) error {
		view = s.navView(sess)
		return nil
	})
	return view, err
}

func (s *Service) Navigate(ctx context.Context, id, label string) (NavView, error) {
	var view NavView
	err := s.withSession(ctx, id, func(sess *session.Session) error {
		if err := s.navigator.Select(sess, label); err != nil {
			return routes.Invalid("label", "%v", err)
		}
		view = s.navView(sess)
		return nil
	})
	return view, err
}

type PageView struct {
	Label    string          `json:"label"`
	Slug     string          `json:"slug"`
	Result   pages.Result    `json:"result"`
	Elements []pages.Element `json:"elements"`
	DevTools pages.DevTools  `json:"dev_tools"`
}

// RenderPage renders slug, or the active navigation page when slug is
// empty. Page failures are rendered into the elements, never returned.
func (s *Service) RenderPage(ctx context.Context, id, slug string, params url.Values) (PageView, error) {
	var view PageView
	err := s.withSession(ctx, id, func(sess *session.Session) error {
		label := ""
		if slug == "" {
			label = s.navigator.Active(sess)
			slug, _ = s.navigator.Slug(label)
		} else {
			label = s.labelFor(slug)
		}

		frame := &pages.Frame{
			Ctx:        ctx,
			Session:    sess,
			Canvas:     pages.NewCanvas(),
			Dispatcher: s.dispatcher,
			Params:     params,
			Logger:     s.logger,
		}
		result := s.loader.Load(frame, slug)
		view = PageView{
			Label:    label,
			Slug:     slug,
			Result:   result,
			Elements: frame.Canvas.Elements(),
			DevTools: s.loader.DevTools(),
		}
		return nil
	})
	return view, err
}

func (s *Service) labelFor(slug string) string {
	for label, candidate := range s.navigator.Mapping() {
		if strings.EqualFold(candidate, slug) {
			return label
		}
	}
	return pages.TitleCase(slug)
}

// Routes lists the registered routes, empty in degraded mode.
func (s *Service) Routes() []routes.Route {
	list := s.dispatcher.Routes()
	if list == nil {
		return []routes.Route{}
	}
	return list
}

// routeCache names the session key that caches a route's result, and the
// result field to keep. An empty field keeps the whole result.
var routeCache = map[string]struct{ key, field string }{
	"list_proposals": {session.KeyProposalsCache, "proposals"},
	"load_votes":     {session.KeyVotesCache, "votes"},
	"list_agents":    {session.KeyAgentList, "agents"},
	"get_user":       {session.KeyProfileData, ""},
	"get_followers":  {session.KeyProfileFollowers, "followers"},
	"get_following":  {session.KeyProfileFollowing, "following"},
}

// CallRoute dispatches name on behalf of the session's active user.
func (s *Service) CallRoute(ctx context.Context, id, name string, payload map[string]any) (any, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	var result any
	err := s.withSession(ctx, id, func(sess *session.Session) error {
		out, err := s.dispatcher.Call(ctx, name, payload, routes.Call{CurrentUser: sess.EnsureActiveUser()})
		if err != nil {
			return routeError(name, err)
		}
		if rule, ok := routeCache[name]; ok {
			value := out
			if fields, isMap := out.(map[string]any); isMap && rule.field != "" {
				value = fields[rule.field]
			}
			sess.Set(rule.key, value)
		}
		result = out
		return nil
	})
	return result, err
}

func routeError(name string, err error) error {
	switch {
	case errors.Is(err, routes.ErrUnavailable),
		errors.Is(err, routes.ErrStopped),
		errors.Is(err, routes.ErrUnknownRoute),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return &RouteFailure{Route: name, Err: err}
}

type DecideInput struct {
	ProposalID string             `json:"proposal_id"`
	Sliders    governance.Sliders `json:"sliders"`
	Approve    bool               `json:"approve"`
}

func (s *Service) Decide(ctx context.Context, id string, input DecideInput) (governance.Decision, error) {
	if s.governance == nil {
		return governance.Decision{}, missing("governance")
	}
	var decision governance.Decision
	err := s.withSession(ctx, id, func(sess *session.Session) error {
		var err error
		decision, err = s.governance.Decide(ctx, sess, input.ProposalID, input.Sliders, input.Approve)
		return err
	})
	return decision, err
}

type ExecuteInput struct {
	ProposalID string `json:"proposal_id"`
	Mode       string `json:"mode"`
}

func (s *Service) Execute(ctx context.Context, id string, input ExecuteInput) (governance.Run, error) {
	if s.governance == nil {
		return governance.Run{}, missing("governance")
	}
	var run governance.Run
	err := s.withSession(ctx, id, func(sess *session.Session) error {
		var err error
		run, err = s.governance.Execute(ctx, sess, input.ProposalID, governance.ExecutionMode(input.Mode))
		return err
	})
	return run, err
}

type RunsView struct {
	Decision *governance.Decision `json:"decision,omitempty"`
	Runs     []governance.Run     `json:"runs"`
}

func (s *Service) Runs(ctx context.Context, id string) (RunsView, error) {
	var view RunsView
	err := s.withSession(ctx, id, func(sess *session.Session) error {
		view.Runs = governance.RunHistory(sess)
		if view.Runs == nil {
			view.Runs = []governance.Run{}
		}
		if decision, ok := governance.CurrentDecision(sess); ok {
			view.Decision = &decision
		}
		return nil
	})
	return view, err
}

func (s *Service) ListRFCs() ([]rfc.Entry, error) {
	if s.rfcs == nil {
		return nil, missing("RFC directory")
	}
	entries, err := s.rfcs.List()
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []rfc.Entry{}
	}
	return entries, nil
}

func (s *Service) GetRFC(id string) (rfc.Entry, error) {
	if s.rfcs == nil {
		return rfc.Entry{}, missing("RFC directory")
	}
	return s.rfcs.Get(id)
}

func (s *Service) RFCHistory(id string, limit int) ([]rfc.Revision, error) {
	if s.rfcs == nil {
		return nil, missing("RFC directory")
	}
	history, err := s.rfcs.History(id, limit)
	if err != nil {
		return nil, err
	}
	if history == nil {
		history = []rfc.Revision{}
	}
	return history, nil
}

type PublishRFCInput struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// PublishRFC commits an RFC authored by the active user. Guests cannot
// publish.
func (s *Service) PublishRFC(ctx context.Context, id string, input PublishRFCInput) (rfc.Revision, error) {
	if s.rfcs == nil {
		return rfc.Revision{}, missing("RFC directory")
	}
	if strings.TrimSpace(input.Text) == "" {
		return rfc.Revision{}, routes.Invalid("text", "is required")
	}
	var revision rfc.Revision
	err := s.withSession(ctx, id, func(sess *session.Session) error {
		author := sess.EnsureActiveUser()
		if author == session.GuestUser {
			return domainError(http.StatusForbidden, "FORBIDDEN", "Sign in to publish RFCs", nil)
		}
		var err error
		revision, err = s.rfcs.Publish(input.ID, input.Text, author)
		return err
	})
	return revision, err
}

func (s *Service) Diary(ctx context.Context, id string) ([]diary.Entry, error) {
	var entries []diary.Entry
	err := s.withSession(ctx, id, func(sess *session.Session) error {
		var err error
		entries, err = diary.Entries(sess)
		return err
	})
	return entries, err
}

type DiaryInput struct {
	Note   string   `json:"note"`
	RFCIDs []string `json:"rfc_ids"`
}

func (s *Service) AddDiaryEntry(ctx context.Context, id string, input DiaryInput) (diary.Entry, error) {
	var entry diary.Entry
	err := s.withSession(ctx, id, func(sess *session.Session) error {
		var err error
		entry, err = diary.Append(sess, input.Note, input.RFCIDs, s.now())
		return err
	})
	return entry, err
}

func (s *Service) ExportDiary(ctx context.Context, id, format string) (*export.Result, error) {
	if s.diary == nil {
		return nil, missing("diary exporter")
	}
	var result *export.Result
	err := s.withSession(ctx, id, func(sess *session.Session) error {
		entries, err := diary.Entries(sess)
		if err != nil {
			return err
		}
		result, err = s.diary.Export(ctx, sess.EnsureActiveUser(), entries, format)
		return err
	})
	return result, err
}
