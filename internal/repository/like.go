package repository

import "strings"

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// containsPattern is an ILIKE operand matching value literally as a
// substring; pair it with ESCAPE '\'.
func containsPattern(value string) string {
	return "%" + likeEscaper.Replace(value) + "%"
}
