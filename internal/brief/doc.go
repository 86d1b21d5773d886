// Package brief defines the domain types shared by the content-brief pipeline:
// job state, stage outputs, the combined record, and the collaborator
// contracts (SERP fetching, research, model calls, persistence) that the
// pipeline drives.
package brief
