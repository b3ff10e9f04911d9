// Package review gates transcripts before publication. In auto-approve
// mode the stage validates the transcript artifact and approves it in the
// same attempt. In manual mode the scheduler leaves transcribed hearings
// alone; an operator approval records the decision and requests the stage,
// which still validates before advancing.
package review
