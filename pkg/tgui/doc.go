// Package tgui holds helpers for composing Telegram HTML messages.
// Everything built from these helpers is escaped and safe to send with
// ParseMode "HTML".
package tgui
