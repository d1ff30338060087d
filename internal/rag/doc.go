// Package rag composes the retrieval core into the two pipelines the
// service exposes.
//
// Ingestion: Load -> (Redact) -> Chunk -> Embed -> Upsert. Point ids are
// derived from (source id, chunk index), so re-running any stage with the
// same input overwrites rather than duplicates.
//
// Query: Embed -> Search -> prompt assembly -> Generate.
//
// Both pipelines are split into step functions (LoadAndChunk,
// EmbedAndUpsert, Retrieve, Answer) that an orchestrator can run and retry
// independently. Every dependency is passed in explicitly.
package rag
