// Package pipeline owns the single job state of the brief pipeline and the
// controller and stage runners that move it through its four stages.
//
// Every mutation of the job goes through Store. Starting a stage happens
// synchronously in Store.Begin, which hands out a Ticket; the background stage
// later applies its outcome with Store.Commit or Store.Fail. A ticket stops
// being current once its stage has finished or a new run has started, and
// stale tickets are never allowed to write.
package pipeline
