// Package rag coordinates the document pipeline: upload (extract + chunk),
// build (embed + index), ask (retrieve + compose) and reset.
//
// The service is the single owner of mutable state. All state transitions
// run under one RWMutex, giving the rest of the program a linearizable view:
// every question is answered either entirely before or entirely after any
// given upload, build or reset.
package rag
