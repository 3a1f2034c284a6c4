package devkit

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-review/core"
)

// ChannelScript is one scripted answer for a channel call. Scripts are
// consumed per method in order; the last script repeats once exhausted.
type ChannelScript struct {
	MessageID string
	Err       error
}

// FakeChannelAPI records every call and plays back scripted responses, so
// tests can drive pin degradation and nudge send failures deterministically.
type FakeChannelAPI struct {
	mu sync.Mutex

	sendScripts  []ChannelScript
	editScripts  []ChannelScript
	pinScripts   []ChannelScript
	unpinScripts []ChannelScript

	sendCalls  []ChannelCall
	editCalls  []ChannelCall
	pinCalls   []ChannelCall
	unpinCalls []ChannelCall

	nextID int
}

type ChannelCall struct {
	StreamID  string
	MessageID string
	Text      string
}

func NewFakeChannelAPI() *FakeChannelAPI {
	return &FakeChannelAPI{}
}

func (f *FakeChannelAPI) ScriptSend(scripts ...ChannelScript) *FakeChannelAPI {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendScripts = append(f.sendScripts, scripts...)
	return f
}

func (f *FakeChannelAPI) ScriptEdit(scripts ...ChannelScript) *FakeChannelAPI {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.editScripts = append(f.editScripts, scripts...)
	return f
}

func (f *FakeChannelAPI) ScriptPin(scripts ...ChannelScript) *FakeChannelAPI {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pinScripts = append(f.pinScripts, scripts...)
	return f
}

func (f *FakeChannelAPI) ScriptUnpin(scripts ...ChannelScript) *FakeChannelAPI {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unpinScripts = append(f.unpinScripts, scripts...)
	return f
}

func (f *FakeChannelAPI) Send(_ context.Context, streamID string, text string) (string, error) {
	if f == nil {
		return "", fmt.Errorf("devkit: fake channel api is nil")
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sendCalls = append(f.sendCalls, ChannelCall{StreamID: streamID, Text: text})
	script, ok := takeScript(f.sendScripts, len(f.sendCalls)-1)
	if !ok {
		f.nextID++
		return fmt.Sprintf("msg-%d", f.nextID), nil
	}
	return script.MessageID, script.Err
}

func (f *FakeChannelAPI) Edit(_ context.Context, messageID string, text string) error {
	if f == nil {
		return fmt.Errorf("devkit: fake channel api is nil")
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.editCalls = append(f.editCalls, ChannelCall{MessageID: messageID, Text: text})
	script, _ := takeScript(f.editScripts, len(f.editCalls)-1)
	return script.Err
}

func (f *FakeChannelAPI) Pin(_ context.Context, messageID string) error {
	if f == nil {
		return fmt.Errorf("devkit: fake channel api is nil")
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pinCalls = append(f.pinCalls, ChannelCall{MessageID: messageID})
	script, _ := takeScript(f.pinScripts, len(f.pinCalls)-1)
	return script.Err
}

func (f *FakeChannelAPI) Unpin(_ context.Context, messageID string) error {
	if f == nil {
		return fmt.Errorf("devkit: fake channel api is nil")
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.unpinCalls = append(f.unpinCalls, ChannelCall{MessageID: messageID})
	script, _ := takeScript(f.unpinScripts, len(f.unpinCalls)-1)
	return script.Err
}

func (f *FakeChannelAPI) SendCalls() []ChannelCall {
	return f.callsCopy(&f.sendCalls)
}

func (f *FakeChannelAPI) EditCalls() []ChannelCall {
	return f.callsCopy(&f.editCalls)
}

func (f *FakeChannelAPI) PinCalls() []ChannelCall {
	return f.callsCopy(&f.pinCalls)
}

func (f *FakeChannelAPI) UnpinCalls() []ChannelCall {
	return f.callsCopy(&f.unpinCalls)
}

func (f *FakeChannelAPI) callsCopy(calls *[]ChannelCall) []ChannelCall {
	if f == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ChannelCall(nil), (*calls)...)
}

func takeScript(scripts []ChannelScript, index int) (ChannelScript, bool) {
	if len(scripts) == 0 {
		return ChannelScript{}, false
	}
	if index < len(scripts) {
		return scripts[index], true
	}
	return scripts[len(scripts)-1], true
}

// FakeRenderer returns deterministic text derived from the render input. An
// optional Err makes every render fail for degradation tests.
type FakeRenderer struct {
	mu     sync.Mutex
	Err    error
	inputs []core.RenderInput
}

func NewFakeRenderer() *FakeRenderer {
	return &FakeRenderer{}
}

func (f *FakeRenderer) Render(_ context.Context, in core.RenderInput) (string, error) {
	if f == nil {
		return "", fmt.Errorf("devkit: fake renderer is nil")
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.inputs = append(f.inputs, in)
	if f.Err != nil {
		return "", f.Err
	}
	parts := []string{string(in.Kind)}
	if in.RFC != nil {
		parts = append(parts, in.RFC.ID, string(in.RFC.Status))
	}
	if locale := strings.TrimSpace(in.Locale); locale != "" {
		parts = append(parts, locale)
	}
	return strings.Join(parts, "|"), nil
}

func (f *FakeRenderer) Inputs() []core.RenderInput {
	if f == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.RenderInput(nil), f.inputs...)
}

var (
	_ core.ChannelAPI = (*FakeChannelAPI)(nil)
	_ core.Renderer   = (*FakeRenderer)(nil)
)
