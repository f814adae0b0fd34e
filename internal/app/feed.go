package app

import (
	"chronotech-quiz-service/internal/docstore"
	"go.uber.org/zap"
)

// mapFeed converts a store subscription into a domain feed. Snapshots that
// fail to convert are logged and skipped. The output closes with the input.
func mapFeed[In, Out any](in <-chan In, log *zap.Logger, convert func(In) (Out, error)) <-chan Out {
	out := make(chan Out, 8)
	go func() {
		defer close(out)
		for snapshot := range in {
			view, err := convert(snapshot)
			if err != nil {
				log.Warn("dropping undecodable snapshot", zap.Error(err))
				continue
			}
			docstore.SendLatest(out, view)
		}
	}()
	return out
}
