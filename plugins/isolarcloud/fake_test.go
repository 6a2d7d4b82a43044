package isolarcloud

import (
	"context"
	"sync"
)

type fakeTransport struct {
	mu        sync.Mutex
	responses map[string][]map[string]any
	err       error
	calls     []Request
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{responses: make(map[string][]map[string]any)}
}

// respond queues bodies for path. The last body is repeated once the queue drains.
func (f *fakeTransport) respond(path string, bodies ...map[string]any) *fakeTransport {
	f.responses[path] = append(f.responses[path], bodies...)
	return f
}

func (f *fakeTransport) Do(_ context.Context, req Request) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	queue := f.responses[req.Path]
	if len(queue) == 0 {
		return map[string]any{"result_code": "E404", "result_msg": "no fake response for " + req.Path}, nil
	}
	body := queue[0]
	if len(queue) > 1 {
		f.responses[req.Path] = queue[1:]
	}
	return body, nil
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeTransport) lastCall() Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func ok(data map[string]any) map[string]any {
	return map[string]any{"result_code": "1", "result_msg": "success", "result_data": data}
}

func realtimeBody(points []map[string]any, records ...map[string]any) map[string]any {
	list := make([]any, 0, len(records))
	for _, r := range records {
		list = append(list, r)
	}
	data := map[string]any{"device_point_list": list}
	if points != nil {
		dict := make([]any, 0, len(points))
		for _, p := range points {
			dict = append(dict, p)
		}
		data["point_dict"] = dict
	}
	return ok(data)
}

func strPtr(s string) *string { return &s }
