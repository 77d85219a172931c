package graph

import (
	"context"
	"strings"
	"sync"
)

// MemoryClient is a Client test double. It records every statement and
// answers reads from canned results, either routed by a query fragment or
// taken from a FIFO queue.
type MemoryClient struct {
	mu           sync.Mutex
	writeCalls   []ExecutedQuery
	readCalls    []ExecutedQuery
	readQueue    []Result
	writeQueue   []Result
	routes       []route
	err          error
	connectivity error
}

type route struct {
	fragment string
	result   Result
}

// ExecutedQuery captures a statement and its parameters.
type ExecutedQuery struct {
	Query  string
	Params map[string]any
}

// NewMemoryClient returns an empty MemoryClient.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{}
}

// WithError makes every subsequent call fail with err.
func (m *MemoryClient) WithError(err error) *MemoryClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithConnectivityError makes VerifyConnectivity fail with err.
func (m *MemoryClient) WithConnectivityError(err error) *MemoryClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectivity = err
	return m
}

// OnQuery answers any statement containing fragment with res. Routes take
// precedence over queued results and are never consumed.
func (m *MemoryClient) OnQuery(fragment string, res Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = append(m.routes, route{fragment: fragment, result: res})
}

// PushReadResult queues a result for the next unrouted ExecuteRead.
func (m *MemoryClient) PushReadResult(res Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readQueue = append(m.readQueue, res)
}

// PushWriteResult queues a result for the next unrouted ExecuteWrite.
func (m *MemoryClient) PushWriteResult(res Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeQueue = append(m.writeQueue, res)
}

func (m *MemoryClient) ExecuteWrite(_ context.Context, cypher string, params map[string]any) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return Result{}, m.err
	}
	m.writeCalls = append(m.writeCalls, ExecutedQuery{Query: cypher, Params: cloneMap(params)})
	return m.answer(cypher, &m.writeQueue), nil
}

func (m *MemoryClient) ExecuteRead(_ context.Context, cypher string, params map[string]any) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return Result{}, m.err
	}
	m.readCalls = append(m.readCalls, ExecutedQuery{Query: cypher, Params: cloneMap(params)})
	return m.answer(cypher, &m.readQueue), nil
}

func (m *MemoryClient) answer(cypher string, queue *[]Result) Result {
	for _, r := range m.routes {
		if strings.Contains(cypher, r.fragment) {
			return r.result
		}
	}
	if len(*queue) == 0 {
		return Result{}
	}
	res := (*queue)[0]
	*queue = (*queue)[1:]
	return res
}

func (m *MemoryClient) VerifyConnectivity(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectivity
}

func (m *MemoryClient) Close(context.Context) error {
	return nil
}

// WriteCalls returns a snapshot of executed writes.
func (m *MemoryClient) WriteCalls() []ExecutedQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ExecutedQuery(nil), m.writeCalls...)
}

// ReadCalls returns a snapshot of executed reads.
func (m *MemoryClient) ReadCalls() []ExecutedQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ExecutedQuery(nil), m.readCalls...)
}

func cloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
