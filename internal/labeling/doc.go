// Package labeling attributes transcript segments to committee members. An
// ordered rule table matches each segment's text against role-indicative
// phrases; candidates are ranked by confidence with roster speaking order
// breaking ties. Labels are advisory metadata: results below the configured
// confidence floor fall back to the unknown speaker, and rule evaluation
// failures are tagged services.ErrLabeling so the transcribe stage can
// substitute all-unknown labels without blocking progression.
package labeling
