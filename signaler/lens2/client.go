package lens2

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type client struct {
	endpoint *url.URL
	token    string
	http     *http.Client
}

func newClient(endpoint string, token string) (*client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	return &client{
		endpoint: u,
		token:    token,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}, nil
}

// newReq targets topic t and, when event is set, names it with e.
func (c *client) newReq(ctx context.Context, method string, topic string, event string, body io.Reader) (req *http.Request, err error) {
	if req, err = http.NewRequestWithContext(ctx, method, c.endpoint.String(), body); err != nil {
		return
	}
	q := req.URL.Query()
	q.Set("t", topic)
	if event != "" {
		q.Set("e", event)
	}
	req.URL.RawQuery = q.Encode()
	req.URL.User = nil
	switch {
	case c.token != "":
		req.Header.Set("Authorization", "Bearer "+c.token)
	case c.endpoint.User != nil:
		u := c.endpoint.User
		pass, _ := u.Password()
		req.SetBasicAuth(u.Username(), pass)
	}
	return
}

func (c *client) doReq(req *http.Request) (res *http.Response, err error) {
	res, err = c.http.Do(req)
	if err != nil {
		return
	}
	if strings.HasPrefix(res.Status, "2") {
		return
	}
	defer res.Body.Close()
	var errText []byte
	if errText, err = io.ReadAll(res.Body); err != nil {
		return
	}
	err = fmt.Errorf("server err. status: %s. content: %s", res.Status, errText)
	return
}
