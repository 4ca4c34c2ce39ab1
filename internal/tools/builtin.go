package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// RegisterBuiltins wires the small set of deterministic, demo-mode-safe
// tools the router's keyword heuristics can recommend (web_search,
// browser, code_exec, file_read). None perform real network, process, or
// filesystem side effects; each returns a structured, reproducible
// placeholder result so the orchestrator's tool_call/tool_result event
// pair and retry paths can be exercised end-to-end without external
// dependencies. Real deployments are expected to replace these
// registrations with concrete integrations behind the same Func contract.
func RegisterBuiltins(e *Executor) {
	e.Register(Registration{ID: "web_search", Fn: webSearch})
	e.Register(Registration{ID: "browser", Fn: browserFetch})
	e.Register(Registration{ID: "code_exec", Fn: codeExec})
	e.Register(Registration{ID: "file_read", Fn: fileRead})
}

func webSearch(ctx context.Context, args map[string]any) (Result, error) {
	query, _ := args["query"].(string)
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{}, fmt.Errorf("web_search: missing required argument %q", "query")
	}
	return Result{
		Output: fmt.Sprintf("search results for %q (no live index configured)", query),
		Data:   map[string]any{"query": query, "results": []string{}},
	}, nil
}

func browserFetch(ctx context.Context, args map[string]any) (Result, error) {
	url, _ := args["url"].(string)
	url = strings.TrimSpace(url)
	if url == "" {
		return Result{}, fmt.Errorf("browser: missing required argument %q", "url")
	}
	return Result{
		Output: fmt.Sprintf("fetched %s (no live browser configured)", url),
		Data:   map[string]any{"url": url},
	}, nil
}

func codeExec(ctx context.Context, args map[string]any) (Result, error) {
	code, _ := args["code"].(string)
	code = strings.TrimSpace(code)
	if code == "" {
		return Result{}, fmt.Errorf("code_exec: missing required argument %q", "code")
	}
	return Result{
		Output: fmt.Sprintf("executed %d bytes of code (sandbox not wired)", len(code)),
		Data:   map[string]any{"bytes": len(code)},
	}, nil
}

func fileRead(ctx context.Context, args map[string]any) (Result, error) {
	path, _ := args["path"].(string)
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, fmt.Errorf("file_read: missing required argument %q", "path")
	}
	return Result{
		Output: fmt.Sprintf("read %s (no live filesystem scope configured)", path),
		Data:   map[string]any{"path": path},
	}, nil
}

// ListRegistered returns the sorted set of tool ids currently registered,
// used by /ai/models-adjacent introspection and tests.
func (e *Executor) ListRegistered() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.tools))
	for id := range e.tools {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
