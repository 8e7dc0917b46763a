// Package server implements the MCP (Model Context Protocol) server for
// diagram extraction and instruction processing.
//
// This package provides a JSON-RPC 2.0 server that exposes both pipelines
// through the MCP protocol, so MCP-compatible clients can turn diagram
// images and editing instructions into structured diagram data.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
//   - diagram_extract: Convert a base64-encoded diagram image into
//     positioned class nodes, relationship edges, and extraction metadata.
//     Optionally merges the result into an existing diagram snapshot.
//   - diagram_command: Convert a natural-language editing instruction
//     (English or Spanish) into an incremental delta against a snapshot.
//
// # Error Handling
//
// Tool failures map the error taxonomy onto JSON-RPC codes:
//   - -32602: invalid input (bad encoding, size, dimensions, arguments)
//   - -32001: recognition backend unavailable
//   - -32002: no UML structure detected in a valid image
//   - -32003: instruction references a nonexistent element
//   - -32004: neither pattern table nor fallback recognized the command
//   - -32000: rate limit exceeded (data carries retry_after_seconds) or
//     any other execution failure
//
// # Usage
//
// The server is typically started by an MCP client:
//
//	srv := server.New(cfg, logger)
//	if err := srv.Run(ctx, os.Stdin, os.Stdout); err != nil {
//	    log.Fatal(err)
//	}
package server
