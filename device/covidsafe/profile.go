package covidsafe

import (
  "fmt"

  "github.com/google/uuid"
  "github.com/robertof/go-proximity-scanner/device"
  "github.com/rs/zerolog/log"
)

// ServiceUUID is advertised by COVIDSafe peers. The app exposes a single characteristic under
// the same UUID.
const ServiceUUID = "b82ab3fc-1595-4f6a-80f0-fe094cc218f9"

type Profile struct {
  service string
  characteristic string
}

func DefaultProfile() *Profile {
  return &Profile{
    service: ServiceUUID,
    characteristic: ServiceUUID,
  }
}

func (p *Profile) Name() string {
  return "covidsafe"
}

func (p *Profile) ServiceUUID() string {
  return p.service
}

func (p *Profile) CharacteristicUUID() string {
  return p.characteristic
}

func (p *Profile) Decode(raw []byte) (device.ProximityRecord, error) {
  return Decode(raw)
}

func (p *Profile) String() string {
  return fmt.Sprintf("covidsafe[service=%v, characteristic=%v]", p.service, p.characteristic)
}

type Factory struct{}

func parseUUID(field string, s string) (string, error) {
  u, err := uuid.Parse(s)

  if err != nil {
    return "", fmt.Errorf("invalid %s UUID %q: %w", field, s, err)
  }

  return u.String(), nil
}

func (f *Factory) FromSpec(spec device.ProfileSpec) (device.Profile, error) {
  p := DefaultProfile()

  if s := spec.Service(); s != "" {
    u, err := parseUUID(device.ProfileSpecFieldService, s)
    if err != nil {
      return nil, err
    }

    // the characteristic follows the service unless overridden.
    p.service, p.characteristic = u, u
  }

  if c := spec.Characteristic(); c != "" {
    u, err := parseUUID(device.ProfileSpecFieldCharacteristic, c)
    if err != nil {
      return nil, err
    }

    p.characteristic = u
  }

  log.Debug().Stringer("Profile", p).Msg("covidsafe: built profile from spec")

  return p, nil
}

func (f *Factory) Help() string {
  return `Supported parameters:
service (uuid): Service UUID to look for (default ` + ServiceUUID + `)
characteristic (uuid): Characteristic UUID to read (default: same as service)`
}
