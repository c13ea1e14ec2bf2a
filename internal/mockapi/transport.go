package mockapi

import (
	"net/http"
	"net/http/httptest"
)

// BaseURL is the backend root to use together with Transport.
const BaseURL = "http://mockapi.local/api"

// Transport serves requests straight from h without touching the network.
type Transport struct {
	Handler http.Handler
}

func (t Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	rec := httptest.NewRecorder()
	t.Handler.ServeHTTP(rec, req)
	resp := rec.Result()
	resp.Request = req
	return resp, nil
}
