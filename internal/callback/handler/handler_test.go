package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"casbot/internal/callback/metrics"
	"casbot/internal/roster/models"
	"casbot/internal/roster/store"
	"casbot/internal/verification/token"
	"casbot/pkg/platform/sentinel"
	"casbot/pkg/testutil"
)

type failingRoster struct{}

func (failingRoster) Upsert(context.Context, models.Identity) error {
	return errors.New("write concern timeout")
}

type HandlerSuite struct {
	suite.Suite
	tokens  *token.InMemoryRegistry
	roster  *store.InMemoryStore
	metrics *metrics.Metrics
	router  chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.tokens = token.NewInMemory()
	s.roster = store.NewInMemory()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.router = s.newRouter(s.roster)
}

func (s *HandlerSuite) newRouter(roster Roster) chi.Router {
	r := chi.NewRouter()
	New(s.tokens, roster, slog.New(slog.NewTextHandler(io.Discard, nil)), s.metrics).Register(r)
	return r
}

func (s *HandlerSuite) issue(requesterID string) string {
	p, _, err := s.tokens.Issue(context.Background(), requesterID)
	s.Require().NoError(err)
	return p.Token
}

func (s *HandlerSuite) post(router http.Handler, tok string, form url.Values) *httptest.ResponseRecorder {
	return testutil.DoRequest(router, testutil.NewFormRequest(s.T(), http.MethodPost, "/"+tok, form))
}

func fullForm() url.Values {
	return url.Values{
		FieldName:   {"Asha Rao"},
		FieldEmail:  {"asha@example.edu"},
		FieldRollNo: {"2021101"},
	}
}

func (s *HandlerSuite) TestSuccess() {
	tok := s.issue("42")

	rec := s.post(s.router, tok, fullForm())
	testutil.AssertStatus(s.T(), rec, http.StatusOK)
	testutil.AssertEmptyBody(s.T(), rec)

	identity, err := s.roster.FindByPlatformID(context.Background(), "42")
	s.Require().NoError(err)
	s.Equal("Asha Rao", identity.Name)
	s.Equal("asha@example.edu", identity.Email)
	s.Equal("2021101", identity.RollNo)
	s.False(identity.VerifiedAt.IsZero())

	_, err = s.tokens.Lookup(context.Background(), tok)
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.Requests.WithLabelValues(outcomeVerified)))
}

func (s *HandlerSuite) TestMultipartBody() {
	tok := s.issue("42")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fullForm() {
		s.Require().NoError(mw.WriteField(k, v[0]))
	}
	s.Require().NoError(mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/"+tok, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	s.Equal(http.StatusOK, rec.Code)
	_, err := s.roster.FindByPlatformID(context.Background(), "42")
	s.NoError(err)
}

func (s *HandlerSuite) TestUnknownToken() {
	rec := s.post(s.router, "never-issued", fullForm())
	s.Equal(http.StatusNotFound, rec.Code)
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.Requests.WithLabelValues(outcomeUnknownToken)))
}

func (s *HandlerSuite) TestTokenUsedTwice() {
	tok := s.issue("42")
	s.Equal(http.StatusOK, s.post(s.router, tok, fullForm()).Code)
	s.Equal(http.StatusNotFound, s.post(s.router, tok, fullForm()).Code)
}

func (s *HandlerSuite) TestMissingFieldKeepsToken() {
	for _, field := range []string{FieldName, FieldEmail, FieldRollNo} {
		s.Run(field, func() {
			tok := s.issue("missing-" + field)
			form := fullForm()
			form.Del(field)

			rec := s.post(s.router, tok, form)
			s.Equal(http.StatusBadRequest, rec.Code)
			s.Contains(rec.Body.String(), field)

			_, err := s.tokens.Lookup(context.Background(), tok)
			s.NoError(err, "token must survive a malformed callback")
			_, err = s.roster.FindByPlatformID(context.Background(), "missing-"+field)
			s.ErrorIs(err, sentinel.ErrNotFound)
		})
	}
}

func (s *HandlerSuite) TestEmptyFieldsAreAccepted() {
	tok := s.issue("42")
	rec := s.post(s.router, tok, url.Values{FieldName: {""}, FieldEmail: {""}, FieldRollNo: {""}})
	s.Equal(http.StatusOK, rec.Code)
}

func (s *HandlerSuite) TestRosterNotReady() {
	tok := s.issue("42")
	router := s.newRouter(store.NewLazy())

	rec := s.post(router, tok, fullForm())
	s.Equal(http.StatusInternalServerError, rec.Code)

	_, err := s.tokens.Lookup(context.Background(), tok)
	s.NoError(err, "token must survive while the roster is initializing")
}

func (s *HandlerSuite) TestRosterWriteFails() {
	tok := s.issue("42")
	router := s.newRouter(failingRoster{})

	rec := s.post(router, tok, fullForm())
	s.Equal(http.StatusInternalServerError, rec.Code)
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.Requests.WithLabelValues(outcomeError)))
}

func (s *HandlerSuite) TestConcurrentCallbacksHaveSingleWinner() {
	tok := s.issue("42")

	const callers = 16
	var wg sync.WaitGroup
	var ok, notFound atomic.Int32
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch s.post(s.router, tok, fullForm()).Code {
			case http.StatusOK:
				ok.Add(1)
			case http.StatusNotFound:
				notFound.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), ok.Load())
	s.Equal(int32(callers-1), notFound.Load())
}
