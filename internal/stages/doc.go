// Package stages provides the built-in pipeline stages the worker owns:
// dedupe against the artifact index, media fetch into a scratch directory,
// an optional checksum pass, and the final artifact index write. Enrichment
// collaborators proper (transcription, analysis, scoring) plug in as
// additional stages supplied by their own packages.
package stages
