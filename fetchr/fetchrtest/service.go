// Package fetchrtest provides services for testing code built on the fetchr package.
package fetchrtest

import (
	"context"
	"sync"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

	"github.com/mdrohmann/fluxible-plugin-fetchr/fetchr"
	"github.com/mdrohmann/fluxible-plugin-fetchr/servicedef"
)

// CacheControlPrivate is the metadata that the Echo service attaches to reads.
var CacheControlPrivate = servicedef.ResponseMeta{Headers: map[string]string{"Cache-Control": "private"}}

// EchoService answers each verb with the verb's own name: Read returns "read" along with
// CacheControlPrivate metadata, the other verbs return their name and no metadata. Every
// request it receives is recorded.
type EchoService struct {
	ServiceName string
	requests    []fetchr.Request
	lock        sync.Mutex
}

func NewEchoService(name string) *EchoService {
	return &EchoService{ServiceName: name}
}

func (s *EchoService) Name() string { return s.ServiceName }

func (s *EchoService) Create(ctx context.Context, req fetchr.Request) (fetchr.Result, error) {
	return s.answer(req, servicedef.ResponseMeta{})
}

func (s *EchoService) Read(ctx context.Context, req fetchr.Request) (fetchr.Result, error) {
	return s.answer(req, CacheControlPrivate.Copy())
}

func (s *EchoService) Update(ctx context.Context, req fetchr.Request) (fetchr.Result, error) {
	return s.answer(req, servicedef.ResponseMeta{})
}

func (s *EchoService) Delete(ctx context.Context, req fetchr.Request) (fetchr.Result, error) {
	return s.answer(req, servicedef.ResponseMeta{})
}

// Requests returns the requests received so far.
func (s *EchoService) Requests() []fetchr.Request {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]fetchr.Request(nil), s.requests...)
}

func (s *EchoService) answer(req fetchr.Request, meta servicedef.ResponseMeta) (fetchr.Result, error) {
	s.lock.Lock()
	s.requests = append(s.requests, req)
	s.lock.Unlock()
	return fetchr.Result{Data: ldvalue.String(string(req.Operation)), Meta: meta}, nil
}

// FailingService returns Err from every verb.
func FailingService(name string, err error) fetchr.Service {
	h := func(context.Context, fetchr.Request) (fetchr.Result, error) {
		return fetchr.Result{}, err
	}
	return fetchr.ServiceFuncs{ServiceName: name, CreateFunc: h, ReadFunc: h, UpdateFunc: h, DeleteFunc: h}
}

// StaticService answers every verb with the same data and metadata.
func StaticService(name string, data ldvalue.Value, meta servicedef.ResponseMeta) fetchr.Service {
	h := func(context.Context, fetchr.Request) (fetchr.Result, error) {
		return fetchr.Result{Data: data, Meta: meta.Copy()}, nil
	}
	return fetchr.ServiceFuncs{ServiceName: name, CreateFunc: h, ReadFunc: h, UpdateFunc: h, DeleteFunc: h}
}
