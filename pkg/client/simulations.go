package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/turtacn/terminal-planner/pkg/errors"
)

const simulationsPath = "/api/v1/simulations"

// SimulationsClient wraps /api/v1/simulations.
type SimulationsClient struct {
	client *Client
}

// CreateOptions tune Create.
type CreateOptions struct {
	// NoCache forces a fresh run even when an identical scenario has a
	// cached result.
	NoCache bool
}

// Create runs a scenario document, YAML or JSON, and returns the finished
// run. The call blocks until the server has completed the simulation.
func (s *SimulationsClient) Create(ctx context.Context, scenario []byte, opts *CreateOptions) (*Run, error) {
	if len(scenario) == 0 {
		return nil, errors.New(errors.ErrCodeScenarioInvalid, "scenario document is empty")
	}
	var query url.Values
	if opts != nil && opts.NoCache {
		query = url.Values{"no_cache": {"true"}}
	}
	contentType := "application/yaml"
	if json.Valid(scenario) {
		contentType = "application/json"
	}
	var run Run
	err := s.client.do(ctx, request{
		method:      http.MethodPost,
		path:        simulationsPath,
		query:       query,
		body:        scenario,
		contentType: contentType,
	}, &run)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListOptions filter and page List.
type ListOptions struct {
	Status string
	Offset int
	Limit  int
}

// List returns recent runs, newest first.
func (s *SimulationsClient) List(ctx context.Context, opts *ListOptions) (*RunList, error) {
	query := url.Values{}
	if opts != nil {
		if opts.Status != "" {
			query.Set("status", opts.Status)
		}
		if opts.Offset > 0 {
			query.Set("offset", strconv.Itoa(opts.Offset))
		}
		if opts.Limit > 0 {
			query.Set("limit", strconv.Itoa(opts.Limit))
		}
	}
	var out RunList
	if err := s.client.get(ctx, simulationsPath, query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get returns one run with its result.
func (s *SimulationsClient) Get(ctx context.Context, id string) (*Run, error) {
	if id == "" {
		return nil, errors.InvalidParam("run id is required")
	}
	var run Run
	if err := s.client.get(ctx, simulationsPath+"/"+url.PathEscape(id), nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// NPV returns the discounted cash-flow table of a completed run.
func (s *SimulationsClient) NPV(ctx context.Context, id string) (*NPVTable, error) {
	if id == "" {
		return nil, errors.InvalidParam("run id is required")
	}
	var table NPVTable
	if err := s.client.get(ctx, simulationsPath+"/"+url.PathEscape(id)+"/npv", nil, &table); err != nil {
		return nil, err
	}
	return &table, nil
}

// Elements returns the build plan of a run, optionally only one kind.
func (s *SimulationsClient) Elements(ctx context.Context, id, kind string) ([]Element, error) {
	if id == "" {
		return nil, errors.InvalidParam("run id is required")
	}
	var query url.Values
	if kind != "" {
		query = url.Values{"kind": {kind}}
	}
	var out struct {
		Elements []Element `json:"elements"`
	}
	if err := s.client.get(ctx, simulationsPath+"/"+url.PathEscape(id)+"/elements", query, &out); err != nil {
		return nil, err
	}
	return out.Elements, nil
}

// Reports returns download links for the exported reports of a run.
func (s *SimulationsClient) Reports(ctx context.Context, id string) ([]ReportLink, error) {
	if id == "" {
		return nil, errors.InvalidParam("run id is required")
	}
	var out struct {
		Reports []ReportLink `json:"reports"`
	}
	if err := s.client.get(ctx, simulationsPath+"/"+url.PathEscape(id)+"/reports", nil, &out); err != nil {
		return nil, err
	}
	return out.Reports, nil
}

// Stream calls fn for every planner event pushed by the server until ctx is
// cancelled, the server closes the stream or fn returns an error. An empty
// runID receives the events of every run. A normal close returns nil.
func (s *SimulationsClient) Stream(ctx context.Context, runID string, fn func(StreamEvent) error) error {
	u, err := url.Parse(s.client.baseURL + simulationsPath + "/stream")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeValidation, "invalid stream url")
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	if runID != "" {
		u.RawQuery = url.Values{"run_id": {runID}}.Encode()
	}

	header := http.Header{"User-Agent": {s.client.userAgent}}
	if s.client.apiKey != "" {
		header.Set("Authorization", "Bearer "+s.client.apiKey)
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment}
	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return &APIError{StatusCode: resp.StatusCode, Code: "STREAM", Message: "stream handshake rejected"}
		}
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "stream dial failed")
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	for {
		var ev StreamEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "stream read failed")
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}
