package guard

import (
	"context"
	"net/url"
	"strings"

	"novelshelf/framework"
)

const RedirectQueryKey = "redirect"

type AuthStatus interface {
	IsAuthenticated(ctx context.Context) bool
}

type AuthStatusFunc func(ctx context.Context) bool

func (f AuthStatusFunc) IsAuthenticated(ctx context.Context) bool {
	return f(ctx)
}

// RequireAuth sends unauthenticated navigations to routes marked RequiresAuth to
// loginPath, carrying the intended full path in the redirect query value.
func RequireAuth(status AuthStatus, loginPath string) framework.Guard {
	loginPath = "/" + strings.Trim(strings.TrimSpace(loginPath), "/")

	return framework.GuardFunc(func(ctx context.Context, to framework.Location, _ framework.Location) (string, error) {
		if to.Path == loginPath || !to.RequiresAuth() {
			return "", nil
		}
		if status != nil && status.IsAuthenticated(ctx) {
			return "", nil
		}

		q := make(url.Values)
		q.Set(RedirectQueryKey, to.FullPath)
		return loginPath + "?" + q.Encode(), nil
	})
}

// Chain runs guards in order; the first redirect or error decides the transition.
func Chain(guards ...framework.Guard) framework.Guard {
	return framework.GuardFunc(func(ctx context.Context, to framework.Location, from framework.Location) (string, error) {
		for _, g := range guards {
			if g == nil {
				continue
			}
			redirect, err := g.BeforeEach(ctx, to, from)
			if err != nil || redirect != "" {
				return redirect, err
			}
		}
		return "", nil
	})
}

// SafeReturnPath accepts only same-site absolute paths as post-login destinations.
func SafeReturnPath(raw string, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.Contains(raw, "\\") {
		return fallback
	}

	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme != "" || parsed.Host != "" {
		return fallback
	}
	return raw
}
