package model

import "strconv"

func uintToString(id uint64) string {
	return strconv.FormatUint(id, 10)
}
