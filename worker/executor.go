package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	compute "github.com/zhengren252/ntn-sub004"
	"github.com/zhengren252/ntn-sub004/cache"
	"github.com/zhengren252/ntn-sub004/cluster"
	"github.com/zhengren252/ntn-sub004/ext"
	"github.com/zhengren252/ntn-sub004/handler"
	"github.com/zhengren252/ntn-sub004/middleware"
	"github.com/zhengren252/ntn-sub004/protocol"
	"github.com/zhengren252/ntn-sub004/requestlog"
)

// Store is the persistence a worker writes through.
type Store interface {
	requestlog.Store
	cluster.Store
}

// Result is the outcome of executing one payload.
type Result struct {
	Response *protocol.ServiceResponse
	// Payload is Response encoded with the executor's codec.
	Payload []byte
	Method  protocol.Method
	// Counted is false when the payload never reached a handler.
	Counted bool
	Elapsed time.Duration
	Err     error
}

// Executor turns one request payload into a response: parse, validate,
// cache lookup, middleware + handler, cache fill and request log writes.
// It never returns an error; every failure becomes an error response.
type Executor struct {
	registry   *handler.Registry
	mw         middleware.Middleware
	codec      *protocol.MessageHandler
	store      Store
	cache      *cache.Store
	extensions *ext.Registry
	logger     *slog.Logger
}

// NewExecutor creates an Executor. store, cache and extensions may be nil.
func NewExecutor(
	registry *handler.Registry,
	codec *protocol.MessageHandler,
	store Store,
	cacheStore *cache.Store,
	extensions *ext.Registry,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	if registry == nil {
		registry = handler.NewRegistry()
	}
	if codec == nil {
		codec = protocol.NewMessageHandler(protocol.JSONCodec{})
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry:   registry,
		mw:         middleware.Chain(mws...),
		codec:      codec,
		store:      store,
		cache:      cacheStore,
		extensions: extensions,
		logger:     logger,
	}
}

// Execute runs payload received from clientID on workerID. The returned
// Result always carries an encoded Payload.
func (e *Executor) Execute(ctx context.Context, workerID, clientID string, payload []byte) *Result {
	start := time.Now()
	res := &Result{}

	req, err := e.codec.ParseRequest(payload)
	if err != nil {
		requestID := e.codec.PeekRequestID(payload)
		e.logger.Warn("rejecting malformed request",
			slog.String("worker_id", workerID),
			slog.String("client_id", clientID),
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		res.Response = protocol.CreateErrorResponse(requestID, err.Error())
		res.Err = err
		e.finish(ctx, res, start, ext.Request{RequestID: requestID, ClientID: clientID, WorkerID: workerID})
		return res
	}
	res.Method = req.Method
	info := ext.Request{
		RequestID: req.RequestID,
		Method:    string(req.Method),
		ClientID:  clientID,
		WorkerID:  workerID,
	}

	e.logRequest(ctx, req, clientID, workerID)

	if err := protocol.Validate(req.Method, req.Params); err != nil {
		res.Response = protocol.CreateErrorResponse(req.RequestID, err.Error())
		res.Err = err
		e.finish(ctx, res, start, info)
		return res
	}

	res.Counted = true
	data, err := e.call(ctx, req)
	if err != nil {
		res.Response = protocol.CreateErrorResponse(req.RequestID, err.Error())
		res.Err = err
	} else {
		res.Response = protocol.CreateResponse(req.RequestID, data, protocol.StatusSuccess)
	}
	e.finish(ctx, res, start, info)
	return res
}

// encode serializes res.Response into res.Payload. A response the codec
// rejects, such as one carrying NaN, is replaced by an error response.
func (e *Executor) encode(res *Result) {
	payload, err := e.codec.SerializeResponse(res.Response)
	if err == nil {
		res.Payload = payload
		return
	}
	encErr := &compute.HandlerExecutionError{Method: string(res.Method), Kind: "encode", Err: err}
	e.logger.Error("encode response failed",
		slog.String("request_id", res.Response.RequestID),
		slog.String("method", string(res.Method)),
		slog.String("error", err.Error()),
	)
	elapsed := res.Response.ProcessingTimeMs
	res.Response = protocol.CreateErrorResponse(res.Response.RequestID, encErr.Error())
	res.Response.ProcessingTimeMs = elapsed
	res.Err = encErr
	if res.Payload, err = e.codec.SerializeResponse(res.Response); err != nil {
		// An error response holds only strings and numbers set here.
		panic(fmt.Sprintf("worker: encode error response: %v", err))
	}
}

// call consults the cache for cacheable methods before running the
// middleware chain and the handler.
func (e *Executor) call(ctx context.Context, req *protocol.ServiceRequest) (map[string]any, error) {
	cat, key, cacheable := cacheKey(req)
	if cacheable && e.cache != nil {
		var cached map[string]any
		if e.cache.Get(ctx, cat, key, &cached) {
			e.logger.Debug("cache hit",
				slog.String("request_id", req.RequestID),
				slog.String("category", string(cat)),
				slog.String("key", key),
			)
			return cached, nil
		}
	}

	data, err := e.run(ctx, req)
	if err != nil {
		var he *compute.HandlerExecutionError
		if !errors.As(err, &he) && !errors.Is(err, compute.ErrNoHandler) {
			err = handler.AsExecutionError(req.Method, err)
		}
		return nil, err
	}

	if cacheable && e.cache != nil {
		e.cache.Set(ctx, cat, key, data)
	}
	return data, nil
}

// run calls the middleware chain and the handler. A panic that escapes
// the chain becomes a HandlerExecutionError of kind "panic".
func (e *Executor) run(ctx context.Context, req *protocol.ServiceRequest) (data map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("handler panicked",
				slog.String("method", string(req.Method)),
				slog.String("request_id", req.RequestID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			data = nil
			err = &compute.HandlerExecutionError{
				Method: string(req.Method),
				Kind:   "panic",
				Err:    fmt.Errorf("%v", r),
			}
		}
	}()
	return e.mw(ctx, req, func(ctx context.Context) (map[string]any, error) {
		return e.registry.Call(ctx, req.Method, req.Params)
	})
}

// finish encodes the response, stamps timing, writes the response log and the response cache
// entry, and emits the lifecycle event.
func (e *Executor) finish(ctx context.Context, res *Result, start time.Time, info ext.Request) {
	res.Elapsed = time.Since(start)
	res.Response.ProcessingTimeMs = float64(res.Elapsed.Nanoseconds()) / float64(time.Millisecond)
	e.encode(res)
	resp := res.Response

	if resp.RequestID == "" {
		return
	}

	status := requestlog.StatusSuccess
	if !resp.OK() {
		status = requestlog.StatusError
	}
	if e.store != nil && res.Method != "" {
		if err := e.store.LogResponse(ctx, resp.RequestID, responseData(resp), resp.ProcessingTimeMs, status); err != nil {
			e.persistError("log response", resp.RequestID, err)
		}
	}
	if resp.OK() && e.cache != nil {
		e.cache.CacheResponse(ctx, resp.RequestID, resp)
	}

	if res.Err != nil {
		e.extensions.EmitRequestFailed(ctx, info, res.Err)
	} else {
		e.extensions.EmitRequestCompleted(ctx, info, res.Elapsed)
	}
}

func (e *Executor) logRequest(ctx context.Context, req *protocol.ServiceRequest, clientID, workerID string) {
	if e.store == nil {
		return
	}
	err := e.store.LogRequest(ctx, &requestlog.Entry{
		RequestID: req.RequestID,
		Method:    string(req.Method),
		ClientID:  clientID,
		WorkerID:  workerID,
		RequestData: map[string]any{
			"method":     string(req.Method),
			"params":     map[string]any(req.Params),
			"request_id": req.RequestID,
			"timestamp":  req.Timestamp,
		},
		Status: requestlog.StatusPending,
	})
	if err != nil {
		e.persistError("log request", req.RequestID, err)
	}
}

func (e *Executor) persistError(op, requestID string, err error) {
	e.logger.Warn("request log write failed",
		slog.String("op", op),
		slog.String("request_id", requestID),
		slog.String("error", fmt.Errorf("%w: %w", compute.ErrPersistence, err).Error()),
	)
}

func responseData(resp *protocol.ServiceResponse) map[string]any {
	out := map[string]any{
		"request_id":         resp.RequestID,
		"status":             string(resp.Status),
		"timestamp":          resp.Timestamp,
		"processing_time_ms": resp.ProcessingTimeMs,
	}
	if resp.Data != nil {
		out["data"] = resp.Data
	}
	if resp.Error != nil {
		out["error"] = *resp.Error
	}
	return out
}

// cacheKey returns the cache slot for methods whose results are cached
// by their params: market data by symbols and fields, analysis by symbol
// and indicators.
func cacheKey(req *protocol.ServiceRequest) (cache.Category, string, bool) {
	switch req.Method {
	case protocol.MethodGetMarketData:
		symbols, _ := req.Params.Strings("symbols")
		fields, _ := req.Params.Strings("fields")
		return cache.CategoryMarketData, cache.KeyFor(joinSorted(symbols), joinSorted(fields)), true
	case protocol.MethodAnalyzeStock:
		symbol, _ := req.Params.String("symbol")
		indicators, _ := req.Params.Strings("indicators")
		return cache.CategoryAnalysis, cache.KeyFor(symbol, joinSorted(indicators)), true
	default:
		return "", "", false
	}
}

func joinSorted(in []string) string {
	s := append([]string(nil), in...)
	sort.Strings(s)
	return strings.Join(s, ",")
}
