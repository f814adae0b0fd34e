package docstore

// SendLatest delivers v without blocking. When the buffer is full the oldest
// pending snapshot is dropped, so slow readers skip to the newest state.
// Callers must serialise sends to the same channel.
func SendLatest[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}
