package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/feenthu/movie-tracker-web-sub001/internal/cache"
	"github.com/feenthu/movie-tracker-web-sub001/internal/gql"
	"github.com/feenthu/movie-tracker-web-sub001/internal/link"
	"github.com/feenthu/movie-tracker-web-sub001/internal/reqid"
	"github.com/feenthu/movie-tracker-web-sub001/internal/session"
	"github.com/feenthu/movie-tracker-web-sub001/internal/transport"
)

var (
	moviesQuery = gql.Request{OperationName: "Movies", Query: "query Movies { movies { __typename id title } }"}
	rateMovie   = gql.Request{
		OperationName: "RateMovie",
		Query:         "mutation RateMovie($id: ID!, $stars: Int!) { rateMovie(id: $id, stars: $stars) { __typename id title rating } }",
		Variables:     map[string]any{"id": "1", "stars": 5},
	}
)

type fakeAPI struct {
	mu       sync.Mutex
	auth     []string
	status   int
	response string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	status, body := f.status, f.response
	f.mu.Unlock()
	_, _ = io.Copy(io.Discard, r.Body)
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func (f *fakeAPI) headers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.auth...)
}

type redirects struct {
	mu    sync.Mutex
	paths []string
}

func (r *redirects) record(_ context.Context, path string) {
	r.mu.Lock()
	r.paths = append(r.paths, path)
	r.mu.Unlock()
}

func newAPIClient(t *testing.T, api *fakeAPI, opts ...Option) (*Client, *redirects) {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	rd := &redirects{}
	opts = append([]Option{
		WithTransport(transport.New(transport.WithEndpoint(srv.URL))),
		OnUnauthorized(rd.record),
	}, opts...)
	return New(opts...), rd
}

func TestLoginThenProtectedQuery(t *testing.T) {
	api := &fakeAPI{response: `{"data":{"movies":[{"__typename":"Movie","id":"1","title":"Alien"}]}}`}
	c, rd := newAPIClient(t, api)
	require.NoError(t, c.Login("T1"))

	res, err := c.Execute(context.Background(), moviesQuery)
	require.NoError(t, err)
	require.False(t, res.HasErrors())
	require.Equal(t, []string{"Bearer T1"}, api.headers())

	var data struct {
		Movies []struct{ ID, Title string }
	}
	require.NoError(t, res.UnmarshalData(&data))
	require.Equal(t, "Alien", data.Movies[0].Title)

	cached, ok := c.Cache().Read(cache.OperationKey("Movies", moviesQuery))
	require.True(t, ok)
	want := map[string]any{"movies": []any{map[string]any{"__typename": "Movie", "id": "1", "title": "Alien"}}}
	if diff := cmp.Diff(want, cached); diff != "" {
		t.Fatalf("cache mismatch (-want +got):\n%s", diff)
	}
	require.Empty(t, rd.paths)
}

func TestUnauthorizedInvalidatesSession(t *testing.T) {
	api := &fakeAPI{status: http.StatusUnauthorized, response: `{"errors":[{"message":"token expired"}]}`}
	c, rd := newAPIClient(t, api)
	require.NoError(t, c.Login("T1"))

	res, err := c.Execute(context.Background(), moviesQuery)
	require.Nil(t, res)
	require.True(t, transport.IsUnauthorized(err))
	require.Contains(t, err.Error(), "Unauthorized")

	_, ok, err := c.Session().Token()
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, []string{"/login"}, rd.paths)

	_, ok = c.Cache().Read(cache.OperationKey("Movies", moviesQuery))
	require.False(t, ok)
}

func TestForbiddenAndServerErrorKeepSession(t *testing.T) {
	for _, code := range []int{http.StatusForbidden, http.StatusInternalServerError} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			api := &fakeAPI{status: code, response: `{}`}
			c, rd := newAPIClient(t, api)
			require.NoError(t, c.Login("T1"))

			_, err := c.Execute(context.Background(), moviesQuery)
			status, ok := link.StatusOf(err)
			require.True(t, ok)
			require.Equal(t, code, status)

			tok, ok, _ := c.Session().Token()
			require.True(t, ok)
			require.Equal(t, "T1", tok)
			require.Empty(t, rd.paths)
		})
	}
}

func TestNoAuthorizationAfterLogout(t *testing.T) {
	api := &fakeAPI{response: `{"data":{"movies":[]}}`}
	c, _ := newAPIClient(t, api)
	require.NoError(t, c.Login("T1"))
	_, err := c.Execute(context.Background(), moviesQuery)
	require.NoError(t, err)

	require.NoError(t, c.Logout())
	_, err = c.Execute(context.Background(), moviesQuery)
	require.NoError(t, err)

	require.Equal(t, []string{"Bearer T1", ""}, api.headers())
}

func TestPartialDataAndErrorsResolveTogether(t *testing.T) {
	api := &fakeAPI{response: `{
		"data": {"movies": [{"__typename": "Movie", "id": "1", "title": null}]},
		"errors": [{"message": "title redacted", "path": ["movies", 0, "title"]}]
	}`}
	c, _ := newAPIClient(t, api)

	res, err := c.Execute(context.Background(), moviesQuery)
	require.NoError(t, err)
	require.True(t, res.HasData())
	require.Len(t, res.Errors, 1)
	require.Equal(t, "title redacted", res.Errors[0].Message)

	_, ok := c.Cache().Read(cache.OperationKey("Movies", moviesQuery))
	require.True(t, ok, "partial data is cached")
}

func TestNetworkFirstAlwaysDispatches(t *testing.T) {
	mock := transport.NewMock(
		transport.Respond(`{"data":{"movies":[{"__typename":"Movie","id":"1","title":"Alien"}]}}`),
		transport.Respond(`{"data":{"movies":[{"__typename":"Movie","id":"2","title":"Heat"}]}}`),
	)
	c := New(WithTransport(mock))

	_, err := c.Execute(context.Background(), moviesQuery)
	require.NoError(t, err)
	res, err := c.Execute(context.Background(), moviesQuery)
	require.NoError(t, err)
	require.Len(t, mock.Calls(), 2)

	m, err := res.DataMap()
	require.NoError(t, err)
	require.Equal(t, "Heat", m["movies"].([]any)[0].(map[string]any)["title"])

	cached, _ := c.Cache().Read(cache.OperationKey("Movies", moviesQuery))
	require.Equal(t, m, cached, "listing replaced, not accumulated")
}

func TestCacheFirstServesPriorResult(t *testing.T) {
	mock := transport.NewMock(transport.Respond(`{"data":{"movies":[{"__typename":"Movie","id":"1","title":"Alien"}]}}`))
	c := New(WithTransport(mock))

	_, err := c.Execute(context.Background(), moviesQuery, WithFetchPolicy(CacheFirst))
	require.NoError(t, err)
	res, err := c.Execute(context.Background(), moviesQuery, WithFetchPolicy(CacheFirst))
	require.NoError(t, err)
	require.Len(t, mock.Calls(), 1)
	require.JSONEq(t, `{"movies":[{"__typename":"Movie","id":"1","title":"Alien"}]}`, string(res.Data))
}

func TestMutationUpdatesCachedEntities(t *testing.T) {
	mock := transport.NewMock(
		transport.Respond(`{"data":{"movies":[{"__typename":"Movie","id":"1","title":"Alien"}]}}`),
		transport.Respond(`{"data":{"rateMovie":{"__typename":"Movie","id":"1","title":"Alien","rating":5}}}`),
	)
	c := New(WithTransport(mock))

	_, err := c.Execute(context.Background(), moviesQuery)
	require.NoError(t, err)
	_, err = c.Execute(context.Background(), rateMovie)
	require.NoError(t, err)

	ent, ok := c.Cache().Read("Movie:1")
	require.True(t, ok)
	require.Equal(t, 5.0, ent.(map[string]any)["rating"])

	_, ok = c.Cache().Read(cache.OperationKey("RateMovie", rateMovie))
	require.False(t, ok, "mutation results are not stored by operation key")
}

func TestOutOfOrderCompletionLastWriteWins(t *testing.T) {
	var dispatched atomic.Int32
	release := make(chan struct{})
	h := link.HandlerFunc(func(ctx context.Context, op *link.Operation) (*gql.Response, error) {
		if dispatched.Add(1) == 1 {
			<-release
			return &gql.Response{Data: json.RawMessage(`{"movies":[{"__typename":"Movie","id":"1","title":"first dispatched"}]}`)}, nil
		}
		return &gql.Response{Data: json.RawMessage(`{"movies":[{"__typename":"Movie","id":"2","title":"second dispatched"}]}`)}, nil
	})
	c := New(WithTransport(h))

	done := make(chan error, 1)
	go func() {
		_, err := c.Execute(context.Background(), moviesQuery)
		done <- err
	}()
	require.Eventually(t, func() bool { return dispatched.Load() == 1 }, time.Second, time.Millisecond)

	_, err := c.Execute(context.Background(), moviesQuery)
	require.NoError(t, err)
	close(release)
	require.NoError(t, <-done)

	cached, _ := c.Cache().Read(cache.OperationKey("Movies", moviesQuery))
	titles := cached.(map[string]any)["movies"].([]any)
	require.Len(t, titles, 1)
	require.Equal(t, "first dispatched", titles[0].(map[string]any)["title"])
}

func TestWatchRedeliversOnWrites(t *testing.T) {
	mock := transport.NewMock(
		transport.Respond(`{"data":{"movies":[{"__typename":"Movie","id":"1","title":"Alien"}]}}`),
		transport.Respond(`{"data":{"rateMovie":{"__typename":"Movie","id":"1","title":"Alien (1979)"}}}`),
	)
	c := New(WithTransport(mock))

	var mu sync.Mutex
	var titles []string
	cancel, err := c.Watch(context.Background(), moviesQuery, func(res *gql.Response) {
		var data struct{ Movies []struct{ Title string } }
		require.NoError(t, res.UnmarshalData(&data))
		mu.Lock()
		titles = append(titles, data.Movies[0].Title)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer cancel()

	_, err = c.Execute(context.Background(), rateMovie)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"Alien", "Alien (1979)"}, titles)
}

func TestWatchCallbackMayRefetch(t *testing.T) {
	mock := transport.NewMock(
		transport.Respond(`{"data":{"movies":[{"__typename":"Movie","id":"1","title":"Alien"}]}}`),
		transport.Respond(`{"data":{"movies":[{"__typename":"Movie","id":"1","title":"Aliens"}]}}`),
	)
	c := New(WithTransport(mock))

	var titles []string
	done := make(chan error, 1)
	go func() {
		cancel, err := c.Watch(context.Background(), moviesQuery, func(res *gql.Response) {
			var data struct{ Movies []struct{ Title string } }
			_ = res.UnmarshalData(&data)
			titles = append(titles, data.Movies[0].Title)
			if len(titles) == 1 {
				_, _ = c.Execute(context.Background(), moviesQuery)
			}
		})
		if cancel != nil {
			cancel()
		}
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("refetch from a watch callback did not return")
	}
	require.Equal(t, []string{"Alien", "Aliens"}, titles)
	require.Len(t, mock.Calls(), 2)
}

func TestResetDropsCachedResults(t *testing.T) {
	mock := transport.NewMock(
		transport.Respond(`{"data":{"movies":[{"__typename":"Movie","id":"1","title":"Alien"}]}}`),
		transport.Respond(`{"data":{"movies":[{"__typename":"Movie","id":"1","title":"Alien"}]}}`),
	)
	c := New(WithTransport(mock))

	_, err := c.Execute(context.Background(), moviesQuery, WithFetchPolicy(CacheFirst))
	require.NoError(t, err)
	c.Reset()

	_, ok := c.Cache().Read(cache.OperationKey("Movies", moviesQuery))
	require.False(t, ok)
	_, ok = c.Cache().Read("Movie:1")
	require.False(t, ok)

	_, err = c.Execute(context.Background(), moviesQuery, WithFetchPolicy(CacheFirst))
	require.NoError(t, err)
	require.Len(t, mock.Calls(), 2, "cache-first dispatches again after reset")
}

func TestLargeNumericIDsStayDistinct(t *testing.T) {
	mock := transport.NewMock(transport.Respond(`{"data":{"movies":[
		{"__typename":"Movie","id":9007199254740993,"title":"Alien"},
		{"__typename":"Movie","id":9007199254740992,"title":"Heat"}
	]}}`))
	c := New(WithTransport(mock))

	_, err := c.Execute(context.Background(), moviesQuery)
	require.NoError(t, err)

	for key, title := range map[string]string{
		"Movie:9007199254740993": "Alien",
		"Movie:9007199254740992": "Heat",
	} {
		v, ok := c.Cache().Read(key)
		require.True(t, ok, key)
		require.Equal(t, title, v.(map[string]any)["title"], key)
	}
}

func TestWatchRejectsMutation(t *testing.T) {
	_, err := New(WithTransport(transport.NewMock())).Watch(context.Background(), rateMovie, func(*gql.Response) {})
	require.ErrorIs(t, err, ErrWatchMutation)
}

func TestWatchFailureCancels(t *testing.T) {
	c := New(WithTransport(transport.NewMock(transport.Fail(http.StatusInternalServerError))))
	cancel, err := c.Watch(context.Background(), moviesQuery, func(*gql.Response) { t.Fatal("unexpected delivery") })
	require.Error(t, err)
	require.Nil(t, cancel)
}

func TestRequestIDHeader(t *testing.T) {
	mock := transport.NewMock(transport.Respond(`{"data":{}}`), transport.Respond(`{"data":{}}`))
	c := New(WithTransport(mock))

	ctx, id := reqid.NewContext(context.Background())
	_, err := c.Execute(ctx, moviesQuery)
	require.NoError(t, err)
	_, err = c.Execute(context.Background(), moviesQuery)
	require.NoError(t, err)

	calls := mock.Calls()
	require.Equal(t, id, calls[0].Header.Get(reqid.Header))
	require.NotEmpty(t, calls[1].Header.Get(reqid.Header))
	require.NotEqual(t, id, calls[1].Header.Get(reqid.Header))
}

func TestExtraMiddlewareRunsInsideAuth(t *testing.T) {
	var seen string
	spy := link.MiddlewareFunc(func(ctx context.Context, op *link.Operation, next link.Handler) (*gql.Response, error) {
		seen = op.Header.Get("Authorization")
		return next.Handle(ctx, op)
	})
	c := New(
		WithSession(session.NewMemory("T9")),
		WithTransport(transport.NewMock(transport.Respond(`{"data":{}}`))),
		WithMiddleware(spy),
	)
	_, err := c.Execute(context.Background(), moviesQuery)
	require.NoError(t, err)
	require.Equal(t, "Bearer T9", seen)
}

func TestLoginRejectsEmptyToken(t *testing.T) {
	require.ErrorIs(t, New().Login(""), session.ErrEmptyToken)
}
