package stages

import (
	"sift/internal/config"
	"sift/internal/pipeline"
)

// DefaultPipeline assembles the built-in stage sequence: dedupe, fetch,
// checksum, index. Enrichment stages from other packages slot in between
// fetch and index via Insert.
func DefaultPipeline(cfg *config.Config, store ArtifactStore) []pipeline.Stage {
	return []pipeline.Stage{
		{Name: "dedupe", Handler: NewDedupe(store)},
		{Name: "fetch", Handler: NewFetch(cfg.Fetch)},
		{Name: "checksum", Optional: true, Handler: NewChecksum()},
		{Name: "index", Handler: NewIndex(store, cfg.Paths.ArtifactDir)},
	}
}

// Insert returns a copy of stages with extra stages placed immediately before
// the named stage. When the name is absent the extras append at the end.
func Insert(stages []pipeline.Stage, before string, extra ...pipeline.Stage) []pipeline.Stage {
	for i, stage := range stages {
		if stage.Name == before {
			out := make([]pipeline.Stage, 0, len(stages)+len(extra))
			out = append(out, stages[:i]...)
			out = append(out, extra...)
			out = append(out, stages[i:]...)
			return out
		}
	}
	return append(append([]pipeline.Stage(nil), stages...), extra...)
}
