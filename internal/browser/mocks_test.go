// internal/browser/mocks_test.go
package browser

import (
	"context"
	"sync"
)

// fakePage is a scripted Page. Tests discriminate requests by recognizable
// fragments of the evaluated script.
type fakePage struct {
	mu sync.Mutex

	EvaluateFunc   func(ctx context.Context, script string, out any) error
	NavigateFunc   func(ctx context.Context, url string) error
	PressEnterFunc func(ctx context.Context) error
	URLFunc        func(ctx context.Context) (string, error)

	NavigatedTo []string
	EnterCount  int
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	p.NavigatedTo = append(p.NavigatedTo, url)
	p.mu.Unlock()
	if p.NavigateFunc != nil {
		return p.NavigateFunc(ctx, url)
	}
	return nil
}

func (p *fakePage) Evaluate(ctx context.Context, script string, out any) error {
	if p.EvaluateFunc != nil {
		return p.EvaluateFunc(ctx, script, out)
	}
	return nil
}

func (p *fakePage) PressEnter(ctx context.Context) error {
	p.mu.Lock()
	p.EnterCount++
	p.mu.Unlock()
	if p.PressEnterFunc != nil {
		return p.PressEnterFunc(ctx)
	}
	return nil
}

func (p *fakePage) URL(ctx context.Context) (string, error) {
	if p.URLFunc != nil {
		return p.URLFunc(ctx)
	}
	return "https://chat.example.com/c/abc123", nil
}

// fakeProvider hands out pre-built sessions.
type fakeProvider struct {
	sessions map[string]*AgentSession
	baseURL  string
}

func (f *fakeProvider) AgentPage(_ context.Context, agentID string) (*AgentSession, error) {
	return f.sessions[agentID], nil
}

func (f *fakeProvider) AgentURL(agentID string) string {
	if agentID == "0" {
		return f.baseURL
	}
	return f.baseURL + "/a/" + agentID
}

// fakeProbe scripts the detector's poll sequence by poll number.
type fakeProbe struct {
	mu         sync.Mutex
	polls      int
	generating func(poll int) (bool, error)
	extract    func(poll int) (string, error)
}

func (p *fakeProbe) Generating(context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.polls++
	if p.generating == nil {
		return false, nil
	}
	return p.generating(p.polls)
}

func (p *fakeProbe) Extract(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.extract == nil {
		return "", nil
	}
	return p.extract(p.polls)
}

func (p *fakeProbe) pollCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.polls
}

func setOut[T any](out any, v T) {
	if ptr, ok := out.(*T); ok {
		*ptr = v
	}
}
