package model

import "strings"

// Flag is the event marker written by the cycler into the data column.
// Keep these values stable; they match the single-character codes in test logs.
type Flag string

const (
	FlagNone      Flag = ""
	FlagStartStop Flag = "S"
	FlagQuit      Flag = "Q"
)

// FlagFromCell maps a raw cell to a flag. Blank or unknown cells mean no event.
func FlagFromCell(cell string) Flag {
	switch strings.TrimSpace(cell) {
	case "S":
		return FlagStartStop
	case "Q":
		return FlagQuit
	default:
		return FlagNone
	}
}
