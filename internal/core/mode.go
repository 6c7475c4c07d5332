package core

// UseStreaming decides whether a file of the given size is streamed.
// An explicit mode always wins. In auto mode files larger than threshold
// stream; a non-positive threshold means DefaultStreamingThreshold and an
// unknown (negative) size counts as 0.
func UseStreaming(size int64, mode StreamingMode, threshold int64) bool {
	switch mode {
	case StreamingOn:
		return true
	case StreamingOff:
		return false
	}
	if threshold <= 0 {
		threshold = DefaultStreamingThreshold
	}
	if size < 0 {
		size = 0
	}
	return size > threshold
}
