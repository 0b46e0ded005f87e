package api

import (
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/o1egl/paseto"
	"github.com/valyala/fasthttp"

	"bloomsketch/internal/core"
	"bloomsketch/internal/logger"
	"bloomsketch/internal/metrics"
)

type HttpApiRouter struct {
	SystemState *core.SystemState
}

type CreateFilterRequestPayload struct {
	Name              string  `json:"name"`
	Backend           string  `json:"backend"`
	ExpectedElements  int     `json:"expected_elements"`
	Size              int     `json:"size"`
	Hashes            int     `json:"hashes"`
	FalsePositiveRate float64 `json:"false_positive_rate"`
	HashMethod        string  `json:"hash_method"`
	CountingBits      int     `json:"counting_bits"`
	Charset           string  `json:"charset"`
}

type ElementRequestPayload struct {
	Name               string `json:"name"`
	Element            string `json:"element"`
	TimeToLiveInMillis int64  `json:"ttl_ms"`
}

func (router *HttpApiRouter) GetFastHTTPHandler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		router.handleRequest(ctx)
	}
}

func (router *HttpApiRouter) handleRequest(ctx *fasthttp.RequestCtx) {
	startTime := time.Now()
	defer func() {
		recoverPanic(ctx)
		logger.LogAccessEvent("%s %s %s %v", string(ctx.Method()), string(ctx.Path()), ctx.RemoteAddr(), time.Since(startTime))
	}()

	if !router.checkAuth(ctx) {
		ctx.Error("Unauthorized", fasthttp.StatusUnauthorized)
		return
	}

	router.routePath(ctx)
}

func (router *HttpApiRouter) routePath(ctx *fasthttp.RequestCtx) {
	switch string(ctx.Path()) {
	case "/create":
		router.HandleCreateFilterRequest(ctx)
	case "/delete":
		router.HandleDeleteFilterRequest(ctx)
	case "/add":
		router.HandleAddRequest(ctx)
	case "/remove":
		router.HandleRemoveRequest(ctx)
	case "/contains":
		router.HandleContainsRequest(ctx)
	case "/count":
		router.HandleCountRequest(ctx)
	case "/report-read":
		router.HandleReportReadRequest(ctx)
	case "/report-write":
		router.HandleReportWriteRequest(ctx)
	case "/cached":
		router.HandleCachedRequest(ctx)
	case "/metrics":
		router.HandleMetricsRequest(ctx)
	default:
		ctx.Error("Not Found", fasthttp.StatusNotFound)
	}
}

func (router *HttpApiRouter) checkAuth(ctx *fasthttp.RequestCtx) bool {
	configToken := router.SystemState.Configuration.AuthenticationToken
	headerToken := string(ctx.Request.Header.Peek("Authorization"))

	if configToken == "" && headerToken == "" {
		return true
	}

	var footer string
	var claims paseto.JSONToken
	secretKey := []byte(fmt.Sprintf("%-32s", router.SystemState.Configuration.AuthenticationSecret))[:32]

	return paseto.NewV2().Decrypt(headerToken, secretKey, &claims, &footer) == nil
}

func (router *HttpApiRouter) HandleCreateFilterRequest(ctx *fasthttp.RequestCtx) {
	if !isMethodAllowed(ctx, "POST") {
		return
	}

	var payload CreateFilterRequestPayload
	if err := json.Unmarshal(ctx.PostBody(), &payload); err != nil {
		ctx.Error("Bad Request", fasthttp.StatusBadRequest)
		return
	}

	_, err := router.SystemState.CreateFilter(payload.Name, payload.Backend, core.FilterParameters{
		ExpectedElements:  payload.ExpectedElements,
		Size:              payload.Size,
		Hashes:            payload.Hashes,
		FalsePositiveRate: payload.FalsePositiveRate,
		HashMethod:        payload.HashMethod,
		CountingBits:      payload.CountingBits,
		Charset:           payload.Charset,
	})
	if err != nil {
		ctx.Error(err.Error(), fasthttp.StatusBadRequest)
		return
	}
	logger.LogInfoEvent("created filter %q on backend %q", payload.Name, payload.Backend)
	ctx.SetStatusCode(fasthttp.StatusCreated)
}

func (router *HttpApiRouter) HandleDeleteFilterRequest(ctx *fasthttp.RequestCtx) {
	if !isMethodAllowed(ctx, "DELETE", "POST") {
		return
	}

	name := string(ctx.QueryArgs().Peek("name"))
	if name == "" {
		ctx.Error("Missing name", fasthttp.StatusBadRequest)
		return
	}
	if err := router.SystemState.DeleteFilter(name); err != nil {
		ctx.Error(err.Error(), fasthttp.StatusNotFound)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
}

func (router *HttpApiRouter) HandleAddRequest(ctx *fasthttp.RequestCtx) {
	filter, element, ok := router.filterAndElementFromBody(ctx)
	if !ok {
		return
	}

	count, err := filter.AddAndEstimateCount(element)
	if err != nil {
		ctx.Error(err.Error(), fasthttp.StatusInternalServerError)
		return
	}
	metrics.IncrementAddOperation()
	writeJSON(ctx, map[string]interface{}{"estimated_count": count})
}

func (router *HttpApiRouter) HandleRemoveRequest(ctx *fasthttp.RequestCtx) {
	filter, element, ok := router.filterAndElementFromBody(ctx)
	if !ok {
		return
	}

	count, err := filter.RemoveAndEstimateCount(element)
	if err != nil {
		ctx.Error(err.Error(), fasthttp.StatusInternalServerError)
		return
	}
	metrics.IncrementRemoveOperation()
	writeJSON(ctx, map[string]interface{}{"removed": count <= 0, "estimated_count": count})
}

func (router *HttpApiRouter) HandleContainsRequest(ctx *fasthttp.RequestCtx) {
	filter, element, ok := router.filterAndElementFromQuery(ctx)
	if !ok {
		return
	}

	contained, err := filter.Contains(element)
	if err != nil {
		ctx.Error(err.Error(), fasthttp.StatusInternalServerError)
		return
	}
	metrics.IncrementContainsOperation()
	writeJSON(ctx, map[string]interface{}{"contains": contained})
}

func (router *HttpApiRouter) HandleCountRequest(ctx *fasthttp.RequestCtx) {
	filter, element, ok := router.filterAndElementFromQuery(ctx)
	if !ok {
		return
	}

	count, err := filter.GetEstimatedCount(element)
	if err != nil {
		ctx.Error(err.Error(), fasthttp.StatusInternalServerError)
		return
	}
	writeJSON(ctx, map[string]interface{}{"estimated_count": count})
}

func (router *HttpApiRouter) HandleReportReadRequest(ctx *fasthttp.RequestCtx) {
	if !isMethodAllowed(ctx, "POST") {
		return
	}

	var payload ElementRequestPayload
	if err := json.Unmarshal(ctx.PostBody(), &payload); err != nil {
		ctx.Error("Bad Request", fasthttp.StatusBadRequest)
		return
	}
	filter, ok := router.SystemState.GetFilter(payload.Name)
	if !ok {
		ctx.Error("Filter Not Found", fasthttp.StatusNotFound)
		return
	}

	ttl := time.Duration(payload.TimeToLiveInMillis) * time.Millisecond
	if err := filter.ReportRead(filter.ToBytes(payload.Element), ttl.Nanoseconds()); err != nil {
		ctx.Error(err.Error(), fasthttp.StatusBadRequest)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
}

func (router *HttpApiRouter) HandleReportWriteRequest(ctx *fasthttp.RequestCtx) {
	filter, element, ok := router.filterAndElementFromBody(ctx)
	if !ok {
		return
	}

	if err := filter.ReportWrite(element); err != nil {
		ctx.Error(err.Error(), fasthttp.StatusBadRequest)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
}

func (router *HttpApiRouter) HandleCachedRequest(ctx *fasthttp.RequestCtx) {
	filter, element, ok := router.filterAndElementFromQuery(ctx)
	if !ok {
		return
	}

	cached, err := filter.IsCached(element)
	if err != nil {
		ctx.Error(err.Error(), fasthttp.StatusBadRequest)
		return
	}
	writeJSON(ctx, map[string]interface{}{"cached": cached})
}

func (router *HttpApiRouter) HandleMetricsRequest(ctx *fasthttp.RequestCtx) {
	if !isMethodAllowed(ctx, "GET") {
		return
	}
	ctx.SetContentType("application/json")
	json.NewEncoder(ctx).Encode(metrics.Snapshot())
}

func (router *HttpApiRouter) filterAndElementFromBody(ctx *fasthttp.RequestCtx) (*core.RegisteredFilter, []byte, bool) {
	if !isMethodAllowed(ctx, "POST") {
		return nil, nil, false
	}

	var payload ElementRequestPayload
	if err := json.Unmarshal(ctx.PostBody(), &payload); err != nil {
		ctx.Error("Bad Request", fasthttp.StatusBadRequest)
		return nil, nil, false
	}
	filter, ok := router.SystemState.GetFilter(payload.Name)
	if !ok {
		ctx.Error("Filter Not Found", fasthttp.StatusNotFound)
		return nil, nil, false
	}
	return filter, filter.ToBytes(payload.Element), true
}

func (router *HttpApiRouter) filterAndElementFromQuery(ctx *fasthttp.RequestCtx) (*core.RegisteredFilter, []byte, bool) {
	if !isMethodAllowed(ctx, "GET") {
		return nil, nil, false
	}

	name := string(ctx.QueryArgs().Peek("name"))
	element := string(ctx.QueryArgs().Peek("element"))
	if name == "" || element == "" {
		ctx.Error("Missing name or element", fasthttp.StatusBadRequest)
		return nil, nil, false
	}
	filter, ok := router.SystemState.GetFilter(name)
	if !ok {
		ctx.Error("Filter Not Found", fasthttp.StatusNotFound)
		return nil, nil, false
	}
	return filter, filter.ToBytes(element), true
}

func isMethodAllowed(ctx *fasthttp.RequestCtx, methods ...string) bool {
	requestMethod := string(ctx.Method())
	for _, method := range methods {
		if requestMethod == method {
			return true
		}
	}
	ctx.Error("Method Not Allowed", fasthttp.StatusMethodNotAllowed)
	return false
}

func recoverPanic(ctx *fasthttp.RequestCtx) {
	if r := recover(); r != nil {
		logger.LogErrorEvent("PANIC: %v\n%s", r, debug.Stack())
		ctx.Error("Internal Server Error", fasthttp.StatusInternalServerError)
	}
}

func writeJSON(ctx *fasthttp.RequestCtx, payload map[string]interface{}) {
	ctx.SetContentType("application/json")
	json.NewEncoder(ctx).Encode(payload)
}
