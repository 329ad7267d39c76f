// Package pipeline defines the ordered stages a job moves through.
//
// Each Stage names the artifact the external agent must produce, builds the
// instruction text the agent reads, and validates the output it writes. The
// default pipeline is enhance, cover-letter, and an optional render stage
// enabled by pipeline.render_documents. Jobs snapshot the stage names at
// creation so later configuration changes never reorder running work.
package pipeline
