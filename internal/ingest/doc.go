// Package ingest turns a delimited reference-data file into validated
// records and ships them to an import endpoint in bounded chunks.
//
// It contains no storage or transport of its own; callers inject an
// [Endpoint]. The HTTP implementation lives in package chunkclient.
//
// # Pipeline
//
//  1. [Tokenize] parses the text with encoding/csv. Structural failures
//     (no delimiter, no records, malformed header) are [*StructuralError].
//  2. On a structural failure [ParseFallback] retries with a line scanner,
//     delimiter detection, a synonym table and positional guessing.
//  3. [Plan] partitions records into ordered chunks.
//  4. [Scheduler.Upload] sends chunks in batches of at most K concurrent
//     requests. A failing chunk never stops the others.
//  5. [Aggregate] folds the per-chunk outcomes into one [Report], moving
//     every row error onto the file-global row number.
//
// [Importer] wires the steps together and reports [Progress] over two
// phases, parsing and uploading.
//
// # Error Codes
//
// [MapError] turns technical errors into coded user messages:
//
//   - FILE001-FILE006: file errors (size, format, encoding, empty)
//   - IMP001-IMP004: import errors (missing columns, endpoint failures)
//   - UPL001-UPL005: upload errors (cancelled, busy, timeouts)
//   - DB001-DB006: database errors raised by the endpoint
//   - RATE001: throttled
package ingest
