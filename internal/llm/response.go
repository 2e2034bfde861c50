package llm

// Response is the decoded JSON envelope returned by a model endpoint. The
// payload shape has drifted over API revisions, so callers go through the
// tolerant accessors below instead of indexing keys directly.
type Response map[string]any

// ID returns the response identifier, if present.
func (r Response) ID() string {
	return r.str("id")
}

// Status returns the lifecycle status ("queued", "in_progress", "completed",
// "failed", ...). Empty when the envelope carries none.
func (r Response) Status() string {
	return r.str("status")
}

// ErrorMessage extracts a failure description from the error block.
func (r Response) ErrorMessage() string {
	errBlock, ok := r["error"].(map[string]any)
	if !ok {
		return r.str("error")
	}
	if msg, ok := errBlock["message"].(string); ok {
		return msg
	}
	return ""
}

// OutputText returns the flattened model output. Newer envelopes carry a
// top-level output_text; older ones nest text segments under message-typed
// output items.
func (r Response) OutputText() string {
	if text := r.str("output_text"); text != "" {
		return text
	}

	items, ok := r["output"].([]any)
	if !ok {
		return ""
	}
	var combined string
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		switch entry["type"] {
		case "output_text":
			if text, ok := entry["text"].(string); ok {
				combined += text
			}
		case "message":
			parts, ok := entry["content"].([]any)
			if !ok {
				continue
			}
			for _, part := range parts {
				segment, ok := part.(map[string]any)
				if !ok || segment["type"] != "output_text" {
					continue
				}
				if text, ok := segment["text"].(string); ok {
					combined += text
				}
			}
		}
	}
	return combined
}

// Usage extracts token counts, accepting both the responses-API field names
// and the older chat-completion ones.
func (r Response) Usage() (input, output, total int) {
	usage, ok := r["usage"].(map[string]any)
	if !ok {
		return 0, 0, 0
	}
	input = intField(usage, "input_tokens", "prompt_tokens")
	output = intField(usage, "output_tokens", "completion_tokens")
	total = intField(usage, "total_tokens")
	if total == 0 {
		total = input + output
	}
	return input, output, total
}

func (r Response) str(key string) string {
	if value, ok := r[key].(string); ok {
		return value
	}
	return ""
}

func intField(m map[string]any, keys ...string) int {
	for _, key := range keys {
		switch v := m[key].(type) {
		case float64:
			return int(v)
		case int:
			return v
		}
	}
	return 0
}
