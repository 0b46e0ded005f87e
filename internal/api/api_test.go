package api

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/valyala/fasthttp"

	testfactory "bloomsketch/internal/testing"
)

func newTestRouter(t *testing.T) *HttpApiRouter {
	t.Helper()
	state := testfactory.NewTestFactory(t).CreateSystem()
	return &HttpApiRouter{SystemState: state}
}

func postRequest(router *HttpApiRouter, path string, payload interface{}) *fasthttp.RequestCtx {
	body, _ := json.Marshal(payload)
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod("POST")
	ctx.Request.SetRequestURI(path)
	ctx.Request.SetBody(body)
	router.handleRequest(ctx)
	return ctx
}

func getRequest(router *HttpApiRouter, path string) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod("GET")
	ctx.Request.SetRequestURI(path)
	router.handleRequest(ctx)
	return ctx
}

func decodeBody(t *testing.T, ctx *fasthttp.RequestCtx) map[string]interface{} {
	t.Helper()
	var decoded map[string]interface{}
	if err := json.Unmarshal(ctx.Response.Body(), &decoded); err != nil {
		t.Fatalf("invalid response body %q: %v", ctx.Response.Body(), err)
	}
	return decoded
}

func TestCreateAddContainsFlow(t *testing.T) {
	router := newTestRouter(t)

	created := postRequest(router, "/create", map[string]interface{}{
		"name": "flow", "expected_elements": 100, "false_positive_rate": 0.01,
	})
	if created.Response.StatusCode() != fasthttp.StatusCreated {
		t.Fatalf("create status = %d", created.Response.StatusCode())
	}

	added := postRequest(router, "/add", map[string]interface{}{"name": "flow", "element": "wert"})
	if added.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("add status = %d body=%s", added.Response.StatusCode(), added.Response.Body())
	}
	if count := decodeBody(t, added)["estimated_count"].(float64); count != 1 {
		t.Errorf("estimated_count = %v", count)
	}

	contains := getRequest(router, "/contains?name=flow&element=wert")
	if contains.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("contains status = %d", contains.Response.StatusCode())
	}
	if !decodeBody(t, contains)["contains"].(bool) {
		t.Error("inserted element not contained")
	}

	absent := getRequest(router, "/contains?name=flow&element=fehlt")
	if decodeBody(t, absent)["contains"].(bool) {
		t.Error("absent element reported contained")
	}
}

func TestRemoveFlow(t *testing.T) {
	router := newTestRouter(t)
	postRequest(router, "/create", map[string]interface{}{"name": "rm"})

	postRequest(router, "/add", map[string]interface{}{"name": "rm", "element": "zweimal"})
	postRequest(router, "/add", map[string]interface{}{"name": "rm", "element": "zweimal"})

	first := postRequest(router, "/remove", map[string]interface{}{"name": "rm", "element": "zweimal"})
	if decodeBody(t, first)["removed"].(bool) {
		t.Error("first remove of two occurrences reported last")
	}
	second := postRequest(router, "/remove", map[string]interface{}{"name": "rm", "element": "zweimal"})
	if !decodeBody(t, second)["removed"].(bool) {
		t.Error("second remove did not report last occurrence")
	}
}

func TestReportReadWriteCachedFlow(t *testing.T) {
	router := newTestRouter(t)
	postRequest(router, "/create", map[string]interface{}{"name": "sketch"})

	read := postRequest(router, "/report-read", map[string]interface{}{"name": "sketch", "element": "seite", "ttl_ms": 200})
	if read.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("report-read status = %d", read.Response.StatusCode())
	}

	cached := getRequest(router, "/cached?name=sketch&element=seite")
	if !decodeBody(t, cached)["cached"].(bool) {
		t.Fatal("element not cached after report-read")
	}

	write := postRequest(router, "/report-write", map[string]interface{}{"name": "sketch", "element": "seite"})
	if write.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("report-write status = %d", write.Response.StatusCode())
	}

	contains := getRequest(router, "/contains?name=sketch&element=seite")
	if !decodeBody(t, contains)["contains"].(bool) {
		t.Error("written element not contained")
	}

	time.Sleep(400 * time.Millisecond)
	expired := getRequest(router, "/contains?name=sketch&element=seite")
	if decodeBody(t, expired)["contains"].(bool) {
		t.Error("element still contained after TTL")
	}
}

func TestUnknownFilterAndPath(t *testing.T) {
	router := newTestRouter(t)

	missing := postRequest(router, "/add", map[string]interface{}{"name": "nirgends", "element": "x"})
	if missing.Response.StatusCode() != fasthttp.StatusNotFound {
		t.Errorf("add to unknown filter status = %d", missing.Response.StatusCode())
	}

	unknown := getRequest(router, "/no-such-path")
	if unknown.Response.StatusCode() != fasthttp.StatusNotFound {
		t.Errorf("unknown path status = %d", unknown.Response.StatusCode())
	}
}

func TestCreateRejectsBadParameters(t *testing.T) {
	router := newTestRouter(t)

	bad := postRequest(router, "/create", map[string]interface{}{
		"name": "bad", "expected_elements": 100, "false_positive_rate": 0.01, "hash_method": "NoSuchHash",
	})
	if bad.Response.StatusCode() != fasthttp.StatusBadRequest {
		t.Errorf("create with unknown hash method status = %d", bad.Response.StatusCode())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t)

	response := getRequest(router, "/metrics")
	if response.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("metrics status = %d", response.Response.StatusCode())
	}
	snapshot := decodeBody(t, response)
	if _, ok := snapshot["add_operations"]; !ok {
		t.Error("metrics response missing add_operations")
	}
}

func TestDeleteFilterEndpoint(t *testing.T) {
	router := newTestRouter(t)
	postRequest(router, "/create", map[string]interface{}{"name": "temp"})

	deleted := postRequest(router, "/delete?name=temp", nil)
	if deleted.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("delete status = %d", deleted.Response.StatusCode())
	}

	gone := postRequest(router, "/add", map[string]interface{}{"name": "temp", "element": "x"})
	if gone.Response.StatusCode() != fasthttp.StatusNotFound {
		t.Errorf("add to deleted filter status = %d", gone.Response.StatusCode())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	router := newTestRouter(t)
	postRequest(router, "/create", map[string]interface{}{"name": "methods"})

	wrongMethod := getRequest(router, fmt.Sprintf("/add?name=%s&element=x", "methods"))
	if wrongMethod.Response.StatusCode() != fasthttp.StatusMethodNotAllowed {
		t.Errorf("GET /add status = %d", wrongMethod.Response.StatusCode())
	}
}
