package device

import (
	"strings"

	"github.com/rs/zerolog/log"
)

// ProfileSpec holds the `key=value,key=value` overrides passed on the command line.
type ProfileSpec map[string]string

const (
  ProfileSpecFieldService = "service"
  ProfileSpecFieldCharacteristic = "characteristic"
)

func NewProfileSpec(s string) ProfileSpec {
  spec := ProfileSpec{}

  if strings.TrimSpace(s) == "" {
    return spec
  }

  entries := strings.Split(s, ",")

  for _, entry := range entries {
    parts := strings.SplitN(entry, "=", 2)

    if len(parts) != 2 {
      log.Warn().Str("Entry", entry).Msg("Skipping invalid profile spec entry")
      continue
    }

    spec[strings.ToLower(strings.TrimSpace(parts[0]))] = strings.TrimSpace(parts[1])
  }

  return spec
}

func (ps ProfileSpec) Service() string {
  return ps[ProfileSpecFieldService]
}

func (ps ProfileSpec) Characteristic() string {
  return ps[ProfileSpecFieldCharacteristic]
}
