// Package mcp serves browser log extraction to MCP clients over stdio.
//
// Tools:
//   - extract_browser_logs: collect from the attached page for a window and
//     return filtered, formatted records
//   - classify_error: match a message against the known error taxonomy
//   - list_known_errors: the taxonomy in evaluation order
package mcp
