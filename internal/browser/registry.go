// internal/browser/registry.go
package browser

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/0xfaultline/chatmux/internal/config"
)

// AgentSession binds one logical agent identity to one live browser tab.
// There is at most one session per agent at any time, and readiness never
// reverts once reached.
type AgentSession struct {
	agentID string
	page    Page

	readyMu sync.Mutex
	ready   bool

	// mu serializes full exchanges on this tab. Two logical sends to the same
	// agent must never interleave their injection and trigger steps.
	mu sync.Mutex
}

// NewAgentSession constructs a session around an existing page handle.
func NewAgentSession(agentID string, page Page) *AgentSession {
	return &AgentSession{agentID: agentID, page: page}
}

func (s *AgentSession) ID() string { return s.agentID }

func (s *AgentSession) Page() Page { return s.page }

func (s *AgentSession) Ready() bool {
	s.readyMu.Lock()
	defer s.readyMu.Unlock()
	return s.ready
}

func (s *AgentSession) markReady() {
	s.readyMu.Lock()
	s.ready = true
	s.readyMu.Unlock()
}

// Lock acquires the session's exchange lock.
func (s *AgentSession) Lock() { s.mu.Lock() }

// Unlock releases the session's exchange lock.
func (s *AgentSession) Unlock() { s.mu.Unlock() }

// Registry owns the agentId to tab mapping against one shared remote browser
// connection. It is the sole mutator of that mapping; provisioning for one
// agent is deduplicated so concurrent first requests cannot open duplicate
// tabs.
type Registry struct {
	browserCfg config.BrowserConfig
	target     config.TargetConfig
	logger     *zap.Logger

	mu       sync.Mutex
	sessions map[string]*AgentSession

	flight singleflight.Group

	connectMu   sync.Mutex
	connected   bool
	browserCtx  context.Context
	allocCancel context.CancelFunc

	// openPage provisions a fresh tab navigated to the given URL. Overridden
	// in tests to avoid a live browser.
	openPage func(ctx context.Context, pageURL string) (Page, error)
}

// NewRegistry creates an unconnected registry. Call Connect before use.
func NewRegistry(browserCfg config.BrowserConfig, target config.TargetConfig, logger *zap.Logger) *Registry {
	r := &Registry{
		browserCfg: browserCfg,
		target:     target,
		logger:     logger.Named("registry"),
		sessions:   make(map[string]*AgentSession),
	}
	r.openPage = r.openCDPPage
	return r
}

// Connect establishes the shared connection to the remote browser's debugging
// endpoint. Idempotent: a connected registry returns nil immediately. The
// browser process itself is externally owned and never started or stopped
// from here.
func (r *Registry) Connect(ctx context.Context) error {
	r.connectMu.Lock()
	defer r.connectMu.Unlock()
	if r.connected {
		return nil
	}

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), r.browserCfg.DevtoolsURL)
	browserCtx, _ := chromedp.NewContext(allocCtx)

	// An empty task list forces the websocket handshake now instead of on
	// the first agent request.
	if err := chromedp.Run(browserCtx); err != nil {
		allocCancel()
		return fmt.Errorf("%w: %s: %v", ErrBrowserUnreachable, r.browserCfg.DevtoolsURL, err)
	}

	r.browserCtx = browserCtx
	r.allocCancel = allocCancel
	r.connected = true
	r.logger.Info("Connected to remote browser.", zap.String("devtools_url", r.browserCfg.DevtoolsURL))

	r.discoverExisting(ctx)
	return nil
}

// discoverExisting adopts already-open tabs whose URL matches the agent URL
// pattern, so pre-existing logged-in tabs are reused instead of duplicated.
// Adopted tabs are tracked unready; their first use re-validates readiness.
func (r *Registry) discoverExisting(ctx context.Context) {
	infos, err := chromedp.Targets(r.browserCtx)
	if err != nil {
		r.logger.Warn("Failed to list existing browser targets.", zap.Error(err))
		return
	}

	for _, info := range infos {
		if info.Type != "page" || !strings.HasPrefix(info.URL, r.target.BaseURL) {
			continue
		}
		agentID := r.inferAgentID(info.URL)
		if agentID == "" {
			continue
		}

		r.mu.Lock()
		_, tracked := r.sessions[agentID]
		if tracked {
			r.mu.Unlock()
			continue
		}
		tabCtx, _ := chromedp.NewContext(r.browserCtx, chromedp.WithTargetID(info.TargetID))
		page := newCDPPage(tabCtx, r.browserCfg.NavigationTimeout, r.logger)
		r.sessions[agentID] = NewAgentSession(agentID, page)
		r.mu.Unlock()

		r.logger.Info("Adopted existing tab for agent.",
			zap.String("agent_id", agentID), zap.String("url", info.URL))
	}
}

// inferAgentID maps a tab URL back to the agent identity that would have
// produced it. The bare application URL belongs to account "0"; indexed
// sub-paths carry the identity as their trailing segment.
func (r *Registry) inferAgentID(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	segments := splitPath(u.Path)
	base, err := url.Parse(r.target.BaseURL)
	if err != nil {
		return ""
	}
	baseSegments := splitPath(base.Path)
	rest := segments[len(baseSegments):]

	if len(rest) == 0 {
		return "0"
	}
	if len(rest) == 2 && rest[0] == r.target.AgentPathPrefix {
		return rest[1]
	}
	return ""
}

func splitPath(p string) []string {
	var out []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// AgentURL returns the canonical conversation URL for an agent identity.
func (r *Registry) AgentURL(agentID string) string {
	if agentID == "0" {
		return r.target.BaseURL
	}
	return strings.TrimRight(r.target.BaseURL, "/") + "/" + r.target.AgentPathPrefix + "/" + agentID
}

// AgentPage returns a ready session for the given identity, provisioning and
// navigating a new tab on first use. Concurrent calls for the same agent are
// collapsed into one provisioning flight; a second caller waits for the first
// rather than racing it.
func (r *Registry) AgentPage(ctx context.Context, agentID string) (*AgentSession, error) {
	r.mu.Lock()
	sess := r.sessions[agentID]
	r.mu.Unlock()
	if sess != nil && sess.Ready() {
		return sess, nil
	}

	v, err, _ := r.flight.Do(agentID, func() (any, error) {
		return r.provision(ctx, agentID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*AgentSession), nil
}

func (r *Registry) provision(ctx context.Context, agentID string) (*AgentSession, error) {
	r.mu.Lock()
	sess := r.sessions[agentID]
	r.mu.Unlock()

	if sess != nil && sess.Ready() {
		return sess, nil
	}

	if sess == nil {
		pageURL := r.AgentURL(agentID)
		r.logger.Info("Provisioning tab for agent.",
			zap.String("agent_id", agentID), zap.String("url", pageURL))

		page, err := r.openPage(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("failed to provision tab for agent %s: %w", agentID, err)
		}
		sess = NewAgentSession(agentID, page)
		r.mu.Lock()
		r.sessions[agentID] = sess
		r.mu.Unlock()
	}

	matched, err := WaitReady(ctx, sess.Page(), r.target)
	if err != nil {
		return nil, fmt.Errorf("agent %s page not ready: %w", agentID, err)
	}
	sess.markReady()
	r.logger.Debug("Agent page ready.",
		zap.String("agent_id", agentID), zap.String("matched_selector", matched))
	return sess, nil
}

// openCDPPage creates a new tab in the remote browser and navigates it.
func (r *Registry) openCDPPage(ctx context.Context, pageURL string) (Page, error) {
	r.connectMu.Lock()
	browserCtx := r.browserCtx
	r.connectMu.Unlock()
	if browserCtx == nil {
		return nil, fmt.Errorf("%w: registry is not connected", ErrBrowserUnreachable)
	}

	tabCtx, _ := chromedp.NewContext(browserCtx)
	page := newCDPPage(tabCtx, r.browserCfg.NavigationTimeout, r.logger)
	if err := page.Navigate(ctx, pageURL); err != nil {
		return nil, err
	}
	return page, nil
}

// ListActiveAgents returns the sorted set of currently tracked identities.
func (r *Registry) ListActiveAgents() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	agents := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		agents = append(agents, id)
	}
	sort.Strings(agents)
	return agents
}

// Close drops the session map and the debugging connection. Tabs are left
// alive: the browser and its pages belong to whoever started the browser.
func (r *Registry) Close() {
	r.connectMu.Lock()
	defer r.connectMu.Unlock()
	if !r.connected {
		return
	}
	r.mu.Lock()
	r.sessions = make(map[string]*AgentSession)
	r.mu.Unlock()

	r.allocCancel()
	r.connected = false
	r.browserCtx = nil
	r.logger.Info("Disconnected from remote browser.")
}
