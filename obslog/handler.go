package obslog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// TextHandler formats Events as "time level [name] msg k=v k=v" lines,
// one per call to Log, and writes them to w under a mutex so
// concurrent loggers sharing a Handler never interleave partial lines.
type TextHandler struct {
	mu sync.Mutex
	w  io.Writer
}

// NewTextHandler returns a Handler writing human-readable lines to w.
func NewTextHandler(w io.Writer) *TextHandler {
	return &TextHandler{w: w}
}

func (h *TextHandler) Log(e Event) error {
	var buf bytes.Buffer
	buf.WriteString(e.Time.Format("2006-01-02T15:04:05.000Z07:00"))
	buf.WriteByte(' ')
	buf.WriteString(e.Lvl.String())
	if e.Name != "" {
		buf.WriteByte(' ')
		buf.WriteByte('[')
		buf.WriteString(e.Name)
		buf.WriteByte(']')
	}
	buf.WriteByte(' ')
	buf.WriteString(e.Msg)

	for i := 0; i+1 < len(e.KV); i += 2 {
		fmt.Fprintf(&buf, " %v=%v", e.KV[i], e.KV[i+1])
	}
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

// JSONHandler writes one JSON object per line, for log shippers that
// expect structured input.
type JSONHandler struct {
	mu sync.Mutex
	w  io.Writer
}

func NewJSONHandler(w io.Writer) *JSONHandler {
	return &JSONHandler{w: w}
}

type jsonLine struct {
	Time  string                 `json:"time"`
	Level string                 `json:"level"`
	Name  string                 `json:"name,omitempty"`
	Msg   string                 `json:"msg"`
	Data  map[string]interface{} `json:"data,omitempty"`
}

func (h *JSONHandler) Log(e Event) error {
	data := make(map[string]interface{}, len(e.KV)/2)
	for i := 0; i+1 < len(e.KV); i += 2 {
		key := fmt.Sprintf("%v", e.KV[i])
		data[key] = e.KV[i+1]
	}

	line := jsonLine{
		Time:  e.Time.Format("2006-01-02T15:04:05.000Z07:00"),
		Level: e.Lvl.String(),
		Name:  e.Name,
		Msg:   e.Msg,
		Data:  data,
	}

	b, err := json.Marshal(line)
	if err != nil {
		return err
	}
	b = append(b, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.w.Write(b)
	return err
}
