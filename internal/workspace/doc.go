// Package workspace owns the on-disk layout shared with the external content
// agent.
//
// Every path is derived from (job ID, stage name) so the record store never
// persists free-form paths:
//
//	{root}/{jobID}/                      job directory
//	{root}/{jobID}/.lock                 cross-process job lock
//	{root}/{jobID}/{stage}/INSTRUCTIONS.md
//	{root}/{jobID}/{stage}/{artifact}    output written by the agent
//	{root}/{jobID}/{stage}/history/      archived artifacts after a reset
//
// Instructions are written atomically (temp file + rename) so the agent never
// observes a partial file. Output presence is the only completion signal.
package workspace
