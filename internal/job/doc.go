// Package job defines the unit of work carried through the pipeline.
//
// A Job owns the shared disc and metadata aggregate that successive plugins
// read and mutate. Jobs are never shared between concurrent pipeline runs and
// the controller guarantees a single writer at a time, so the types here
// carry no locking.
package job
