// Package logx wraps zerolog behind a small Logger value type.
//
// Console output is human readable with a short caller. The optional file
// sink writes JSON. The alert sink forwards warn+ records to an operator
// chat, rate limited and never blocking the caller.
package logx
