package device

import "strings"

// MatchesService reports whether target is among the advertised service UUIDs. The comparison
// is exact but case-insensitive.
func MatchesService(uuids []string, target string) bool {
  for _, uuid := range uuids {
    if strings.EqualFold(uuid, target) {
      return true
    }
  }

  return false
}
