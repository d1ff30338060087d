// Package mcp exposes the ingestion and query pipelines as Model Context
// Protocol tools over stdio, so assistants can index PDFs and ask questions
// about them.
//
// Tools:
//
//	ingest_pdf       {pdf_path, source_id?}  -> {ingested, source_id}
//	query_documents  {question, top_k?}      -> {answer, sources, num_contexts}
//	collection_info  {}                      -> {collection, points}
//
// Pipeline failures are returned as tool errors (IsError) whose structured
// content carries error and error_kind.
package mcp
