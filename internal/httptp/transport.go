// Package httptp is the HTTP transport used to reach subgraphs.
package httptp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	eventbus "github.com/hanpama/fedgraph/internal/eventbus"
	events "github.com/hanpama/fedgraph/internal/events"
	reqid "github.com/hanpama/fedgraph/internal/reqid"
	result "github.com/hanpama/fedgraph/internal/result"
	subgraph "github.com/hanpama/fedgraph/internal/subgraph"
	"github.com/tidwall/gjson"
	"google.golang.org/grpc/metadata"
)

// Transport posts GraphQL requests to subgraph URLs resolved through an
// EndpointProvider. Headers placed in the outgoing metadata of the context
// are forwarded on every request.
type Transport struct {
	opts   *Options
	client *http.Client
	closed atomic.Bool
}

func New(opts ...Option) *Transport {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}
	client := o.Client
	if client == nil {
		client = &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}
	}
	return &Transport{opts: o, client: client}
}

var _ subgraph.Transport = (*Transport)(nil)

func (t *Transport) Send(ctx context.Context, service string, req *subgraph.Request) (resp *subgraph.Response, err error) {
	if t.closed.Load() {
		return nil, &subgraph.StepError{Kind: result.KindTransport, Service: service, Message: "transport closed"}
	}
	if t.opts.Endpoints == nil {
		return nil, &subgraph.StepError{Kind: result.KindTransport, Service: service, Message: "endpoint provider not configured"}
	}
	url, err := t.opts.Endpoints.Endpoint(ctx, service)
	if err != nil {
		return nil, &subgraph.StepError{Kind: result.KindTransport, Service: service, Message: "no endpoint", Err: err}
	}

	if _, ok := ctx.Deadline(); !ok && t.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.RequestTimeout)
		defer cancel()
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, &subgraph.StepError{Kind: result.KindInternal, Service: service, Message: "encode request", Err: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &subgraph.StepError{Kind: result.KindTransport, Service: service, Message: "build request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/graphql-response+json, application/json")
	if md, ok := metadata.FromOutgoingContext(ctx); ok {
		for k, vs := range md {
			for _, v := range vs {
				httpReq.Header.Add(k, v)
			}
		}
	}
	if rid, ok := reqid.FromContext(ctx); ok {
		httpReq.Header.Set(reqid.Header, rid)
	}

	stepID, _ := subgraph.StepFromContext(ctx)
	status := 0
	start := time.Now()
	eventbus.Publish(ctx, events.SubgraphStart{Service: service, StepID: stepID, URL: url})
	defer func() {
		eventbus.Publish(ctx, events.SubgraphFinish{
			Service:  service,
			StepID:   stepID,
			URL:      url,
			Status:   status,
			Err:      err,
			Duration: time.Since(start),
		})
	}()

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()
	status = httpResp.StatusCode

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, t.opts.MaxResponseBytes+1))
	if err != nil {
		return nil, &subgraph.StepError{Kind: result.KindTransport, Service: service, Message: "read response", Err: err}
	}
	if int64(len(raw)) > t.opts.MaxResponseBytes {
		return nil, &subgraph.StepError{Kind: result.KindMalformedReply, Service: service, Message: "response too large"}
	}

	resp, err = Decode(raw)
	if err != nil {
		if status == http.StatusNotFound {
			return nil, &subgraph.StepError{Kind: result.KindNotFound, Service: service, Message: "no GraphQL endpoint at " + url}
		}
		if status < 200 || status > 299 {
			return nil, &subgraph.StepError{
				Kind:    result.KindTransport,
				Service: service,
				Message: fmt.Sprintf("unexpected status %d", status),
			}
		}
		return nil, &subgraph.StepError{Kind: result.KindMalformedReply, Service: service, Message: "decode response", Err: err}
	}
	return resp, nil
}

func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.client.CloseIdleConnections()
	return nil
}

// Decode parses a GraphQL response envelope. Numbers in data are kept as
// json.Number so IDs and large integers survive the round trip.
func Decode(raw []byte) (*subgraph.Response, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("invalid JSON")
	}
	envelope := gjson.ParseBytes(raw)
	if !envelope.IsObject() {
		return nil, fmt.Errorf("response is not an object")
	}
	fields := gjson.GetManyBytes(raw, "data", "errors")
	data, errs := fields[0], fields[1]
	if !data.Exists() && !errs.Exists() {
		return nil, fmt.Errorf("response has neither data nor errors")
	}

	resp := &subgraph.Response{}
	if data.IsObject() {
		dec := json.NewDecoder(strings.NewReader(data.Raw))
		dec.UseNumber()
		if err := dec.Decode(&resp.Data); err != nil {
			return nil, fmt.Errorf("decode data: %w", err)
		}
	}
	errs.ForEach(func(_, e gjson.Result) bool {
		re := subgraph.ResponseError{Message: e.Get("message").String()}
		e.Get("path").ForEach(func(_, p gjson.Result) bool {
			if p.Type == gjson.Number {
				re.Path = append(re.Path, int(p.Int()))
			} else {
				re.Path = append(re.Path, p.String())
			}
			return true
		})
		if ext, ok := e.Get("extensions").Value().(map[string]any); ok {
			re.Extensions = ext
		}
		resp.Errors = append(resp.Errors, re)
		return true
	})
	return resp, nil
}
