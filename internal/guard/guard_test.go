package guard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/go-forum-client/internal/models"
)

type staticSessions struct{ sess models.Session }

func (s *staticSessions) Current() models.Session { return s.sess }

var (
	pending = models.Session{}
	guest   = models.Session{Verified: true}
	member  = models.Session{
		Authenticated: true,
		Identity:      &models.Identity{ID: "u1"},
		Verified:      true,
	}
)

func newGuard(sess models.Session) (*Guard, *staticSessions) {
	src := &staticSessions{sess: sess}
	return New(src, Options{LoginPath: "/login", HomePath: "/home", RetryAfter: 1500 * time.Millisecond}), src
}

func TestDecisions(t *testing.T) {
	cases := []struct {
		name       string
		sess       models.Session
		protected  Decision
		publicOnly Decision
	}{
		{
			name:       "pending_verify",
			sess:       pending,
			protected:  Decision{Outcome: Loading},
			publicOnly: Decision{Outcome: Loading},
		},
		{
			name:       "guest",
			sess:       guest,
			protected:  Decision{Outcome: Redirect, Target: "/login"},
			publicOnly: Decision{Outcome: Allow},
		},
		{
			name:       "member",
			sess:       member,
			protected:  Decision{Outcome: Allow},
			publicOnly: Decision{Outcome: Redirect, Target: "/home"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g, _ := newGuard(tc.sess)

			require.Equal(t, tc.protected, g.Protected())
			require.Equal(t, tc.publicOnly, g.PublicOnly())
			require.Equal(t, tc.sess.Authenticated, g.CanEnterProtected())
			require.Equal(t, !tc.sess.Authenticated, g.CanEnterPublicOnly())
		})
	}
}

func TestPendingVerify_NeverRedirects(t *testing.T) {
	g, src := newGuard(pending)

	for i := 0; i < 10; i++ {
		require.NotEqual(t, Redirect, g.Protected().Outcome)
		require.NotEqual(t, Redirect, g.PublicOnly().Outcome)
	}

	src.sess = guest
	require.Equal(t, Redirect, g.Protected().Outcome)
}

func TestDefaults(t *testing.T) {
	g := New(&staticSessions{sess: guest}, Options{})

	require.Equal(t, "/login", g.Protected().Target)
	require.Equal(t, time.Second, g.retryAfter)
}

func TestMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("loading_503", func(t *testing.T) {
		g, _ := newGuard(pending)

		rr := httptest.NewRecorder()
		g.RequireProtected()(ok).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/chats", nil))

		require.Equal(t, http.StatusServiceUnavailable, rr.Code)
		require.Equal(t, "2", rr.Header().Get("Retry-After"))
		require.Equal(t, "application/json", rr.Header().Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		require.Equal(t, "loading", body["state"])
	})

	t.Run("protected_redirects_guest", func(t *testing.T) {
		g, _ := newGuard(guest)

		rr := httptest.NewRecorder()
		g.RequireProtected()(ok).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/chats", nil))

		require.Equal(t, http.StatusSeeOther, rr.Code)
		require.Equal(t, "/login", rr.Header().Get("Location"))
	})

	t.Run("public_only_redirects_member", func(t *testing.T) {
		g, _ := newGuard(member)

		rr := httptest.NewRecorder()
		g.RequirePublicOnly()(ok).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/login", nil))

		require.Equal(t, http.StatusSeeOther, rr.Code)
		require.Equal(t, "/home", rr.Header().Get("Location"))
	})

	t.Run("allow_passes_through", func(t *testing.T) {
		g, _ := newGuard(member)

		rr := httptest.NewRecorder()
		g.RequireProtected()(ok).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/chats", nil))

		require.Equal(t, http.StatusNoContent, rr.Code)
	})
}

func TestOutcomeString(t *testing.T) {
	require.Equal(t, "loading", Loading.String())
	require.Equal(t, "allow", Allow.String())
	require.Equal(t, "redirect", Redirect.String())
	require.Equal(t, "unknown", Outcome(42).String())
}
