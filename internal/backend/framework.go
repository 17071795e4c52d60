package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/hyperjump/sensei/internal/models"
)

const (
	toolOpen   = "[TOOL_REQUEST]"
	toolClose  = "[/TOOL_REQUEST]"
	resultOpen = "[TOOL_RESULT]"
	resultEnd  = "[/TOOL_RESULT]"

	answerDirectly = "You have used all available tool calls. Answer the original question directly now, without requesting tools."
)

type toolCall struct {
	Tool  string `json:"tool"`
	Input string `json:"input"`
}

// Framework wraps an inner adapter with a tool-use loop. The model may open its reply with a
// tool request; the tool runs and its result is fed back until the model answers or the round
// budget is spent.
type Framework struct {
	inner     Adapter
	tools     map[string]Tool
	maxRounds int
	logger    *zap.Logger
}

// NewFramework returns a Framework over inner with the given tools.
func NewFramework(inner Adapter, maxRounds int, tools []Tool, logger *zap.Logger) *Framework {
	if logger == nil {
		logger = zap.NewNop()
	}
	byName := make(map[string]Tool, len(tools))
	for _, t := range tools {
		byName[t.Name()] = t
	}
	if maxRounds < 0 {
		maxRounds = 0
	}
	return &Framework{inner: inner, tools: byName, maxRounds: maxRounds, logger: logger}
}

// Name implements Adapter.
func (f *Framework) Name() string { return KindFramework }

// Model implements Adapter.
func (f *Framework) Model() string { return f.inner.Model() }

func (f *Framework) toolsEnabled() bool {
	return f.maxRounds > 0 && len(f.tools) > 0
}

// withTools returns a copy of req whose system prompt describes the tools.
func (f *Framework) withTools(req *Request) *Request {
	out := *req
	out.History = append([]models.Message(nil), req.History...)
	if !f.toolsEnabled() {
		return &out
	}
	names := make([]string, 0, len(f.tools))
	for name := range f.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString(req.System)
	b.WriteString("\n\nYou can use these tools:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "- %s: %s\n", name, f.tools[name].Description())
	}
	b.WriteString("To use a tool, reply with only " + toolOpen + `{"tool":"<name>","input":"<input>"}` + toolClose +
		". The result comes back as " + resultOpen + "..." + resultEnd + ". Otherwise answer normally.")
	out.System = strings.TrimSpace(b.String())
	return &out
}

// next appends the tool exchange to cur and returns the follow-up request.
func (f *Framework) next(ctx context.Context, cur *Request, reply string, call *toolCall, last bool) *Request {
	result := f.run(ctx, call)
	out := *cur
	out.History = append(append([]models.Message(nil), cur.History...),
		models.Message{Role: models.RoleUser, Content: cur.Prompt},
		models.Message{Role: models.RoleAssistant, Content: strings.TrimSpace(reply)},
	)
	out.Prompt = resultOpen + result + resultEnd
	if last {
		out.Prompt += "\n" + answerDirectly
	}
	return &out
}

func (f *Framework) run(ctx context.Context, call *toolCall) string {
	tool, ok := f.tools[call.Tool]
	if !ok {
		f.logger.Debug("model requested unknown tool", zap.String("tool", call.Tool))
		return "error: unknown tool " + call.Tool
	}
	out, err := tool.Run(ctx, call.Input)
	if err != nil {
		f.logger.Warn("tool failed", zap.String("tool", call.Tool), zap.Error(err))
		return "error: " + err.Error()
	}
	f.logger.Debug("tool ran", zap.String("tool", call.Tool), zap.Int("result_len", len(out)))
	return out
}

// Complete implements Adapter.
func (f *Framework) Complete(ctx context.Context, req *Request) (string, error) {
	cur := f.withTools(req)
	for round := 0; ; round++ {
		reply, err := f.inner.Complete(ctx, cur)
		if err != nil {
			return "", err
		}
		if round >= f.maxRounds || !f.toolsEnabled() {
			return stripToolRequest(reply), nil
		}
		call, ok := parseToolRequest(reply)
		if !ok {
			return reply, nil
		}
		cur = f.next(ctx, cur, reply, call, round+1 >= f.maxRounds)
	}
}

// Stream implements Adapter. Each round's output is held back only until it is clear whether
// it opens with a tool request; plain answers are forwarded as they arrive.
func (f *Framework) Stream(ctx context.Context, req *Request) (<-chan Chunk, error) {
	cur := f.withTools(req)
	in, err := f.inner.Stream(ctx, cur)
	if err != nil {
		return nil, err
	}
	out := make(chan Chunk)
	go func() {
		defer close(out)
		for round := 0; ; round++ {
			detect := f.toolsEnabled() && round < f.maxRounds
			reply, call, err := relay(ctx, in, out, detect)
			if err != nil {
				send(ctx, out, Chunk{Err: err})
				return
			}
			if call == nil {
				return
			}
			cur = f.next(ctx, cur, reply, call, round+1 >= f.maxRounds)
			if in, err = f.inner.Stream(ctx, cur); err != nil {
				send(ctx, out, Chunk{Err: err})
				return
			}
		}
	}()
	return out, nil
}

// relay forwards in to out. It buffers the opening text until it either starts a tool request
// (then the whole reply is buffered) or cannot be one (then the buffer is flushed and the rest
// streams through). With detect set a buffered reply is returned with its parsed call; without
// it the request block is stripped as Complete does.
func relay(ctx context.Context, in <-chan Chunk, out chan<- Chunk, detect bool) (string, *toolCall, error) {
	var buf strings.Builder
	deciding := true
	for c := range in {
		if c.Err != nil {
			return "", nil, c.Err
		}
		if !deciding {
			if !send(ctx, out, Chunk{Text: c.Text}) {
				return "", nil, ctx.Err()
			}
			continue
		}
		buf.WriteString(c.Text)
		head := strings.TrimLeftFunc(buf.String(), unicode.IsSpace)
		if head == "" || strings.HasPrefix(head, toolOpen) || strings.HasPrefix(toolOpen, head) {
			continue
		}
		deciding = false
		if !send(ctx, out, Chunk{Text: buf.String()}) {
			return "", nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	if !deciding || buf.Len() == 0 {
		return "", nil, nil
	}
	text := buf.String()
	if detect {
		if call, ok := parseToolRequest(text); ok {
			return text, call, nil
		}
	} else {
		text = stripToolRequest(text)
	}
	if text != "" && !send(ctx, out, Chunk{Text: text}) {
		return "", nil, ctx.Err()
	}
	return "", nil, nil
}

// parseToolRequest recognizes a reply that opens (after whitespace) with a tool request block.
func parseToolRequest(reply string) (*toolCall, bool) {
	s := strings.TrimSpace(reply)
	if !strings.HasPrefix(s, toolOpen) {
		return nil, false
	}
	end := strings.Index(s, toolClose)
	if end < 0 {
		return nil, false
	}
	var call toolCall
	if err := json.Unmarshal([]byte(s[len(toolOpen):end]), &call); err != nil || call.Tool == "" {
		return nil, false
	}
	return &call, true
}

// stripToolRequest removes a leading tool request block from a reply that may no longer use tools.
func stripToolRequest(reply string) string {
	s := strings.TrimSpace(reply)
	if !strings.HasPrefix(s, toolOpen) {
		return reply
	}
	if end := strings.Index(s, toolClose); end >= 0 {
		return strings.TrimSpace(s[end+len(toolClose):])
	}
	return reply
}
