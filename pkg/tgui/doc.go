// Package tgui holds small Telegram UI helpers: inline keyboard building,
// callback data formatting, pagination and text truncation.
package tgui
