package board

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestServer_ClientContract(t *testing.T) {
	srv := NewServer("127.0.0.1:0", NewMemory())
	var posted []Entry
	srv.OnPost(func(e Entry) { posted = append(posted, e) })
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	c := NewHTTP(ts.URL, ts.Client())
	exercise(t, c)
	require.Len(t, posted, 4) // three new posts plus one idempotent repost
}

func TestServer_BadRequests(t *testing.T) {
	srv := NewServer("127.0.0.1:0", NewMemory())
	h := srv.Handler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/entries", bytes.NewBufferString("{")))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/entries?ppk=zz", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/entries", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, "[]", rr.Body.String())

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/entries/nope", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestServer_GetByID(t *testing.T) {
	mem := NewMemory()
	e, _ := entryFor(t, 9)
	stored, err := mem.Post(context.Background(), e)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	NewServer("", mem).Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/entries/"+stored.ID, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), stored.ID)
}

func TestServer_StartStop(t *testing.T) {
	srv := NewServer("127.0.0.1:0", NewMemory())
	require.NoError(t, srv.Start(context.Background()))
	c := NewHTTP("http://"+srv.Addr(), nil)
	all, err := c.All(context.Background())
	require.NoError(t, err)
	require.Empty(t, all)
	require.NoError(t, srv.Stop(context.Background()))
	_, err = c.All(context.Background())
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrInvalidEntry))
}
